package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/mercadona-scraper/internal/models"
)

const (
	insertRunSQL = `INSERT INTO crawl_runs (run_id, started_at, finished_at, leaves, succeeded, missing, product_rows, dropped, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			leaves = EXCLUDED.leaves,
			succeeded = EXCLUDED.succeeded,
			missing = EXCLUDED.missing,
			product_rows = EXCLUDED.product_rows,
			dropped = EXCLUDED.dropped,
			errors = EXCLUDED.errors`

	insertProductSQL = `INSERT INTO products (run_id, category, subcategory, product_code, product, product_type,
			product_volume, price_per_unit_label, unit_price, unit_label, product_url, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, category, subcategory, product_code) DO NOTHING`

	insertMissingSQL = `INSERT INTO missing_leaves (run_id, category, subcategory)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	upsertOrderLineSQL = `INSERT INTO order_history (order_number, product, units, price, delivery_date, product_code, price_per_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_number, product, units, price) DO UPDATE SET
			delivery_date = EXCLUDED.delivery_date,
			product_code = EXCLUDED.product_code,
			price_per_unit = EXCLUDED.price_per_unit`
)

// batchSize bounds the number of statements sent in one round trip.
const batchSize = 500

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Exporter copies finished datasets into Postgres. The CSV files stay the
// primary output; the export is an optional mirror.
type Exporter struct {
	db     *DB
	logger *slog.Logger
}

func NewExporter(db *DB, logger *slog.Logger) *Exporter {
	return &Exporter{
		db:     db,
		logger: logger.With("component", "db_exporter"),
	}
}

// ExportRun stores a crawl run with its products and missing leaves in one
// transaction.
func (e *Exporter) ExportRun(ctx context.Context, summary models.RunSummary, products []models.ProductRecord, missing []models.MissingLeaf) error {
	err := e.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertRunSQL, runArgs(summary)...); err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		inserted, err := sendBatches(ctx, tx, productBatches(summary.RunID, products))
		if err != nil {
			return fmt.Errorf("failed to insert products: %w", err)
		}
		if _, err := sendBatches(ctx, tx, missingBatches(summary.RunID, missing)); err != nil {
			return fmt.Errorf("failed to insert missing leaves: %w", err)
		}
		e.logger.Info("run exported",
			"run_id", summary.RunID,
			"products", len(products),
			"inserted", inserted,
			"missing", len(missing))
		return nil
	})
	return err
}

// ExportOrderHistory upserts the normalized order history.
func (e *Exporter) ExportOrderHistory(ctx context.Context, lines []models.NormalizedOrderLine) error {
	return e.db.Transaction(ctx, func(tx pgx.Tx) error {
		affected, err := sendBatches(ctx, tx, orderBatches(lines))
		if err != nil {
			return fmt.Errorf("failed to upsert order history: %w", err)
		}
		e.logger.Info("order history exported", "lines", len(lines), "affected", affected)
		return nil
	})
}

func runArgs(s models.RunSummary) []any {
	return []any{s.RunID, s.StartedAt, s.FinishedAt, s.Leaves, s.Succeeded, s.Missing, s.Rows, s.Dropped, s.Errors}
}

func productBatches(runID string, products []models.ProductRecord) []*pgx.Batch {
	return chunk(len(products), func(b *pgx.Batch, i int) {
		p := products[i]
		b.Queue(insertProductSQL,
			runID, p.Category, p.Subcategory, p.Code, p.Name, p.Type,
			p.Volume, p.PricePerUnitLabel, p.UnitPrice, p.UnitLabel, p.URL, p.CollectedAt)
	})
}

func missingBatches(runID string, missing []models.MissingLeaf) []*pgx.Batch {
	return chunk(len(missing), func(b *pgx.Batch, i int) {
		b.Queue(insertMissingSQL, runID, missing[i].Category, missing[i].Subcategory)
	})
}

func orderBatches(lines []models.NormalizedOrderLine) []*pgx.Batch {
	return chunk(len(lines), func(b *pgx.Batch, i int) {
		l := lines[i]
		b.Queue(upsertOrderLineSQL,
			l.OrderNumber, l.Product, l.Units, l.Price, l.DeliveryDate, l.ProductCode, l.PricePerUnit)
	})
}

func chunk(n int, queue func(b *pgx.Batch, i int)) []*pgx.Batch {
	var batches []*pgx.Batch
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		b := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(b, i)
		}
		batches = append(batches, b)
	}
	return batches
}

// sendBatches executes every queued statement and returns the rows affected.
func sendBatches(ctx context.Context, s batchSender, batches []*pgx.Batch) (int64, error) {
	var affected int64
	for _, b := range batches {
		n, err := sendBatch(ctx, s, b)
		affected += n
		if err != nil {
			return affected, err
		}
	}
	return affected, nil
}

func sendBatch(ctx context.Context, s batchSender, b *pgx.Batch) (affected int64, err error) {
	br := s.SendBatch(ctx, b)
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close batch: %w", cerr)
		}
	}()

	for k := 0; k < b.Len(); k++ {
		tag, err := br.Exec()
		if err != nil {
			return affected, fmt.Errorf("batch statement %d: %w", k, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}
