package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

func (r *Repo) CreateBranch(ctx context.Context, b *Branch) (*Branch, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	_, err := r.DB.Exec(ctx, `
		INSERT INTO branches(id, address, working_hours, contact, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)`,
		b.ID, b.Address, b.WorkingHours, b.Contact, now)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repo) GetBranch(ctx context.Context, id string) (*Branch, error) {
	var b Branch
	err := r.DB.QueryRow(ctx, `
		SELECT id, address, working_hours, contact, created_at, updated_at
		FROM branches WHERE id=$1`, id).Scan(
		&b.ID, &b.Address, &b.WorkingHours, &b.Contact, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) ListBranches(ctx context.Context) ([]Branch, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, address, working_hours, contact, created_at, updated_at
		FROM branches ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Address, &b.WorkingHours, &b.Contact, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) UpdateBranch(ctx context.Context, b *Branch) (*Branch, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE branches SET address=$2, working_hours=$3, contact=$4, updated_at=now()
		WHERE id=$1`, b.ID, b.Address, b.WorkingHours, b.Contact)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetBranch(ctx, b.ID)
}

// DeleteBranch: hapus branch + semua baris ledger-nya + re-aggregate produk
// terdampak dalam satu transaksi; tidak boleh ada referensi branch menggantung.
func (r *Repo) DeleteBranch(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	productIDs, err := stock.RemoveBranch(ctx, tx, id)
	if err != nil {
		return err
	}
	// cart item yang menunjuk branch ini ikut hilang via FK cascade; stok
	// yang mereka pegang memang sudah tidak punya baris ledger lagi
	ct, err := tx.Exec(ctx, `DELETE FROM branches WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := stock.ReaggregateProducts(ctx, tx, productIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
