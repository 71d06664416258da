package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/retail-orders/internal/domain/cart"
	"github.com/xenking/retail-orders/internal/domain/promotion"
)

const (
	getPromotionSQL         = `SELECT document FROM promotions WHERE id = $1 AND active = TRUE`
	listActivePromotionsSQL = `SELECT document FROM promotions WHERE active = TRUE ORDER BY id`

	upsertPromotionSQL = `INSERT INTO promotions (id, type, document, active, updated_at)
		VALUES ($1, $2, $3, TRUE, now())
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, document = EXCLUDED.document, active = TRUE, updated_at = now()`
)

var _ cart.PromotionStore = (*PromotionRepository)(nil)

// PromotionRecord is a parsed promotion together with the raw document it
// was parsed from.
type PromotionRecord struct {
	Document *promotion.Document
	Raw      []byte
}

// PromotionRepository stores promotion documents as JSONB.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Get returns the active promotion id or promotion.ErrNotFound.
func (r *PromotionRepository) Get(ctx context.Context, id string) (*promotion.Document, error) {
	rows, err := r.pool.Query(ctx, getPromotionSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get promotion %q", id)
	}

	doc, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get promotion %q", id)
	}
	return &doc, nil
}

// ListActive returns the active promotions usable on channel, ordered by id.
func (r *PromotionRepository) ListActive(ctx context.Context, channel promotion.Channel) ([]promotion.Document, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	docs, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}

	out := docs[:0]
	for _, doc := range docs {
		if doc.AllowsChannel(channel) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Upsert stores records in a single batch, reactivating existing ids.
func (r *PromotionRepository) Upsert(ctx context.Context, records []PromotionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertPromotionSQL, rec.Document.ID, string(rec.Document.Type), rec.Raw)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d promotions", len(records))
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Document, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return promotion.Document{}, err
	}
	doc, err := promotion.ParseDocument(raw)
	if err != nil {
		return promotion.Document{}, err
	}
	return *doc, nil
}
