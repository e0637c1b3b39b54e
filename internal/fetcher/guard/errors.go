package guard

import (
	"errors"
	"fmt"
)

var errCircuitOpen = errors.New("guard: circuit open for roaster")

func errHTTPStatus(status int) error {
	return fmt.Errorf("guard: http status %d", status)
}
