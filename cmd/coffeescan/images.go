package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// sqlHashIndex implements imagepipeline.HashIndex directly against the
// images table, so the CDN pipeline can skip a re-upload whenever a byte-
// identical image already landed under a different coffee or roaster.
type sqlHashIndex struct {
	db      *sqlx.DB
	timeout time.Duration
}

func newSQLHashIndex(db *sqlx.DB, timeout time.Duration) *sqlHashIndex {
	return &sqlHashIndex{db: db, timeout: timeout}
}

func (h *sqlHashIndex) Lookup(ctx context.Context, contentHash string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var cdnURL string
	err := h.db.GetContext(ctx, &cdnURL, `SELECT cdn_url FROM images WHERE content_hash = $1 LIMIT 1`, contentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return cdnURL, true, nil
}
