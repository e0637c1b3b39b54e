// Package writepath implements spec §4.7: change-detection between a
// freshly normalized product and the stored coffee row, and the four
// idempotent server-side procedure calls the core treats as atomic and
// safe to retry. Grounded on the teacher's persistence/postgres package
// (sqlx query/scan shape, pq error-code classification) generalized from its trades/regime/premove tables to this
// spec's coffee/variant/price/image procedures.
package writepath

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/brewradar/coffeescan/internal/model"
)

// Repo is the write path's RPC surface: four idempotent procedure calls
// plus the lookup change-detection needs, per spec §4.7's table. The core
// calls these procedures; it never implements them (they are server-side).
type Repo interface {
	// GetCoffee looks up the stored coffee by (roasterId, platformProductId).
	// Returns (nil, false, nil) on a clean miss (new product).
	GetCoffee(ctx context.Context, roasterID, platformProductID string) (*model.Coffee, bool, error)

	// GetVariant looks up a stored variant by (coffeeId, platformVariantId).
	GetVariant(ctx context.Context, coffeeID, platformVariantID string) (*model.Variant, bool, error)

	// CountVariants returns how many variants are currently stored for a
	// coffee, used to compute spec §4.7 step 4's variant-count delta.
	CountVariants(ctx context.Context, coffeeID string) (int, error)

	// UpsertCoffee is idempotent on (roasterId, platformProductId).
	UpsertCoffee(ctx context.Context, c model.Coffee) (coffeeID string, err error)

	// UpsertVariant is idempotent on (coffeeId, platformVariantId).
	UpsertVariant(ctx context.Context, v model.Variant) error

	// InsertPrice appends one price point and atomically updates the
	// variant's priceCurrent within the same transaction. Append-only;
	// calling twice with an identical point appends twice, so callers
	// must only call this once per genuinely new observation.
	InsertPrice(ctx context.Context, p model.PricePoint) error

	// UpdateVariantCheckedAt touches priceLastCheckedAt/lastSeenAt without
	// appending a price row, for the unchanged-price branch of §4.7 step 2.
	UpdateVariantCheckedAt(ctx context.Context, coffeeID, platformVariantID string, checkedAt time.Time) error

	// UpsertImage is idempotent on (coffeeId, contentHash).
	UpsertImage(ctx context.Context, img model.Image) error
}

type postgresRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresRepo builds a Repo backed by Postgres stored procedures,
// following the teacher's pattern of one *sqlx.DB plus a per-call timeout
// rather than a context deadline baked into the pool.
func NewPostgresRepo(db *sqlx.DB, timeout time.Duration) Repo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &postgresRepo{db: db, timeout: timeout}
}

func (r *postgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *postgresRepo) GetCoffee(ctx context.Context, roasterID, platformProductID string) (*model.Coffee, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row struct {
		ID                 string         `db:"id"`
		RoasterID          string         `db:"roaster_id"`
		PlatformProductID  string         `db:"platform_product_id"`
		NameClean          string         `db:"name_clean"`
		DescriptionMdClean string         `db:"description_md_clean"`
		ContentHash        string         `db:"content_hash"`
		RawPayloadHash     string         `db:"raw_payload_hash"`
		ProcessingStatus   string         `db:"processing_status"`
		TagsJSON           []byte         `db:"tags_json"`
		WarningsJSON       []byte         `db:"warnings_json"`
		RawMetaJSON        []byte         `db:"raw_meta_json"`
		LastSeenAt         time.Time      `db:"last_seen_at"`
	}

	err := r.db.GetContext(ctx, &row, `
		SELECT id, roaster_id, platform_product_id, name_clean, description_md_clean,
		       content_hash, raw_payload_hash, processing_status, tags_json, warnings_json,
		       raw_meta_json, last_seen_at
		FROM coffees
		WHERE roaster_id = $1 AND platform_product_id = $2`,
		roasterID, platformProductID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("writepath: get coffee: %w", err)
	}

	coffee := &model.Coffee{
		ID:                 row.ID,
		RoasterID:          row.RoasterID,
		PlatformProductID:  row.PlatformProductID,
		NameClean:          row.NameClean,
		DescriptionMdClean: row.DescriptionMdClean,
		ContentHash:        row.ContentHash,
		RawPayloadHash:     row.RawPayloadHash,
		ProcessingStatus:   model.ProcessingStatus(row.ProcessingStatus),
		LastSeenAt:         row.LastSeenAt,
	}
	_ = json.Unmarshal(row.TagsJSON, &coffee.TagsNormalized)
	_ = json.Unmarshal(row.WarningsJSON, &coffee.Warnings)
	_ = json.Unmarshal(row.RawMetaJSON, &coffee.RawMeta)
	return coffee, true, nil
}

func (r *postgresRepo) GetVariant(ctx context.Context, coffeeID, platformVariantID string) (*model.Variant, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var row struct {
		CoffeeID           string    `db:"coffee_id"`
		PlatformVariantID  string    `db:"platform_variant_id"`
		SKU                string    `db:"sku"`
		WeightG            int       `db:"weight_g"`
		Grind              string    `db:"grind"`
		Currency           string    `db:"currency"`
		InStock            bool      `db:"in_stock"`
		PriceCurrent       float64   `db:"price_current"`
		PriceLastCheckedAt time.Time `db:"price_last_checked_at"`
		LastSeenAt         time.Time `db:"last_seen_at"`
		Status             string    `db:"status"`
	}

	err := r.db.GetContext(ctx, &row, `
		SELECT coffee_id, platform_variant_id, sku, weight_g, grind, currency, in_stock,
		       price_current, price_last_checked_at, last_seen_at, status
		FROM variants
		WHERE coffee_id = $1 AND platform_variant_id = $2`,
		coffeeID, platformVariantID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("writepath: get variant: %w", err)
	}

	return &model.Variant{
		CoffeeID:           row.CoffeeID,
		PlatformVariantID:  row.PlatformVariantID,
		SKU:                row.SKU,
		WeightG:            row.WeightG,
		Grind:              model.Grind(row.Grind),
		Currency:           row.Currency,
		InStock:            row.InStock,
		PriceCurrent:       decimal.NewFromFloat(row.PriceCurrent),
		PriceLastCheckedAt: row.PriceLastCheckedAt,
		LastSeenAt:         row.LastSeenAt,
		Status:             model.VariantStatus(row.Status),
	}, true, nil
}

func (r *postgresRepo) CountVariants(ctx context.Context, coffeeID string) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM variants WHERE coffee_id = $1`, coffeeID); err != nil {
		return 0, fmt.Errorf("writepath: count variants: %w", err)
	}
	return count, nil
}

// UpsertCoffee calls the upsert_coffee stored procedure, idempotent on
// (roasterId, platformProductId) per spec §4.7's table. Errors are not
// special-cased here: classifyPostgresErr returns class 53 as a retryable
// rate-limit error and anything else, duplicate-key code 23505 included,
// as a persistent write-path error.
func (r *postgresRepo) UpsertCoffee(ctx context.Context, c model.Coffee) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tagsJSON, _ := json.Marshal(c.TagsNormalized)
	warningsJSON, _ := json.Marshal(c.Warnings)
	rawMetaJSON, _ := json.Marshal(c.RawMeta)

	var coffeeID string
	err := r.db.QueryRowxContext(ctx, `SELECT upsert_coffee($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.RoasterID, c.PlatformProductID, c.NameClean, c.DescriptionMdClean,
		tagsJSON, string(c.RoastLevel), string(c.Process), string(c.BeanSpecies),
		c.Region, c.Country, c.ContentHash, c.RawPayloadHash,
		string(c.ProcessingStatus), warningsJSON, rawMetaJSON,
	).Scan(&coffeeID)
	if err != nil {
		return "", classifyPostgresErr("upsertCoffee", err)
	}
	return coffeeID, nil
}

func (r *postgresRepo) UpsertVariant(ctx context.Context, v model.Variant) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `SELECT upsert_variant($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.CoffeeID, v.PlatformVariantID, v.SKU, v.WeightG, string(v.Grind),
		v.Currency, v.InStock, string(v.Status),
	)
	if err != nil {
		return classifyPostgresErr("upsertVariant", err)
	}
	return nil
}

// InsertPrice calls insert_price, which per spec §4.7 updates the
// variant's priceCurrent atomically within the same server-side
// transaction; the variant row remains the source of truth for
// priceCurrent, not this append-only table.
func (r *postgresRepo) InsertPrice(ctx context.Context, p model.PricePoint) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `SELECT insert_price($1, $2, $3, $4, $5, $6)`,
		p.VariantID, p.Price, p.Currency, p.IsSale, p.ScrapedAt, p.SourceURL,
	)
	if err != nil {
		return classifyPostgresErr("insertPrice", err)
	}
	return nil
}

func (r *postgresRepo) UpdateVariantCheckedAt(ctx context.Context, coffeeID, platformVariantID string, checkedAt time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE variants SET price_last_checked_at = $3, last_seen_at = $3
		WHERE coffee_id = $1 AND platform_variant_id = $2`,
		coffeeID, platformVariantID, checkedAt)
	if err != nil {
		return classifyPostgresErr("updateVariantCheckedAt", err)
	}
	return nil
}

func (r *postgresRepo) UpsertImage(ctx context.Context, img model.Image) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `SELECT upsert_image($1, $2, $3, $4, $5, $6, $7)`,
		img.CoffeeID, img.SourceURL, img.CDNURL, img.ContentHash, img.Width, img.Height, img.SortOrder,
	)
	if err != nil {
		return classifyPostgresErr("upsertImage", err)
	}
	return nil
}

// classifyPostgresErr maps a driver error onto the write path's two
// failure kinds from spec §4.7: a rate-limit/throttling condition backs
// pressure the orchestrator, anything else persistent quarantines the
// single product.
func classifyPostgresErr(op string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code.Class() {
		case "53": // insufficient resources (includes too_many_connections)
			return writePathRateLimitErr(op, err)
		}
	}
	return writePathPersistentErr(op, err)
}
