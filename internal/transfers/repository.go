package transfers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexopos/sucursalsync/internal/platform/db"
)

// PGRepository persists pending transfers in PostgreSQL. The header and its
// item snapshots live in separate tables and are written in one transaction.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, p *Pending) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO pending_transfers (code, kind, status, manifest_xml, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, p.Code, p.Kind, p.Status, p.ManifestXML, p.CreatedAt).Scan(&id)
		if err != nil {
			return err
		}
		for _, it := range p.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO pending_transfer_items
					(transfer_id, product_id, name, barcode, quantity, available, standard_price, list_price, tracking, available_in_pos)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, id, it.ProductID, it.Name, it.Barcode, it.Quantity, it.Available, it.StandardPrice, it.ListPrice, it.Tracking, it.AvailableInPOS)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.ConstraintName == "uq_pending_transfers_code" {
			return 0, ErrDuplicateTransfer
		}
		return 0, err
	}
	return id, nil
}

func (r *PGRepository) FindByCode(ctx context.Context, code string) (*Pending, error) {
	var p Pending
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, kind, status, manifest_xml, created_at, confirmed_at
		FROM pending_transfers
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Kind, &p.Status, &p.ManifestXML, &p.CreatedAt, &p.ConfirmedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return &p, nil
}

func (r *PGRepository) List(ctx context.Context, limit int) ([]Pending, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, kind, status, manifest_xml, created_at, confirmed_at
		FROM pending_transfers
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.ID, &p.Code, &p.Kind, &p.Status, &p.ManifestXML, &p.CreatedAt, &p.ConfirmedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *PGRepository) MarkConfirmed(ctx context.Context, code string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_transfers
		SET status = $1, confirmed_at = $2
		WHERE code = $3 AND status = $4
	`, StatusConfirmed, at, code, StatusPrepared)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *PGRepository) MarkCancelled(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pending_transfers
		SET status = $1
		WHERE code = $2 AND status = $3
	`, StatusCancelled, code, StatusPrepared)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *PGRepository) loadItems(ctx context.Context, transferID int64) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, name, barcode, quantity, available, standard_price, list_price, tracking, available_in_pos
		FROM pending_transfer_items
		WHERE transfer_id = $1
		ORDER BY id
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Snapshot
	for rows.Next() {
		var it Snapshot
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Barcode, &it.Quantity, &it.Available, &it.StandardPrice, &it.ListPrice, &it.Tracking, &it.AvailableInPOS); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
