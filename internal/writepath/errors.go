package writepath

import (
	"github.com/brewradar/coffeescan/internal/scanerr"
)

func writePathRateLimitErr(op string, cause error) error {
	return scanerr.Retryable(scanerr.KindWritePathRateLimit, "writepath."+op, cause, 0)
}

func writePathPersistentErr(op string, cause error) error {
	return scanerr.New(scanerr.KindWritePathPersistent, "writepath."+op, cause)
}
