package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

type Repo struct {
	DB  *pgxpool.Pool
	Log *logrus.Logger
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p.ID = uuid.NewString()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.TotalStock = 0
	for i := range p.Variants {
		for _, bs := range p.Variants[i].Stock {
			p.TotalStock += bs.Quantity
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO products(id, name, description, link, brand,
			selling_price_cents, list_price_cents, category_id, subcategory_id,
			total_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
		p.ID, p.Name, p.Description, p.Link, p.Brand,
		p.SellingPriceCents, p.ListPriceCents, p.CategoryID, p.SubcategoryID,
		p.TotalStock, now)
	if err != nil {
		return nil, err
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		v.ID = uuid.NewString()
		if _, err := tx.Exec(ctx, `INSERT INTO variants(id, product_id, name) VALUES ($1,$2,$3)`,
			v.ID, p.ID, v.Name); err != nil {
			return nil, err
		}
		for _, bs := range v.Stock {
			if _, err := tx.Exec(ctx, `
				INSERT INTO branch_stock(variant_id, branch_id, quantity, total_sold)
				VALUES ($1,$2,$3,0)`, v.ID, bs.BranchID, bs.Quantity); err != nil {
				return nil, err
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	return r.getProduct(ctx, `WHERE id=$1`, id)
}

func (r *Repo) GetProductByLink(ctx context.Context, link string) (*Product, error) {
	return r.getProduct(ctx, `WHERE link=$1`, link)
}

func (r *Repo) getProduct(ctx context.Context, where string, arg any) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, description, link, brand, selling_price_cents,
			list_price_cents, category_id, subcategory_id, total_stock,
			created_at, updated_at
		FROM products `+where, arg).Scan(
		&p.ID, &p.Name, &p.Description, &p.Link, &p.Brand, &p.SellingPriceCents,
		&p.ListPriceCents, &p.CategoryID, &p.SubcategoryID, &p.TotalStock,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadVariants(ctx, &p); err != nil {
		return nil, err
	}

	// safety net: kalau rollup tersimpan menyimpang dari ledger, nilai hasil
	// recompute yang dipakai (dan tulis balik best-effort)
	fresh := 0
	for _, v := range p.Variants {
		for _, bs := range v.Stock {
			fresh += bs.Quantity
		}
	}
	if fresh != p.TotalStock {
		r.Log.WithFields(logrus.Fields{"product_id": p.ID, "stored": p.TotalStock, "fresh": fresh}).
			Warn("total_stock drift, using recomputed value")
		p.TotalStock = fresh
		if err := stock.ReaggregateProducts(ctx, r.DB, []string{p.ID}); err != nil {
			r.Log.WithError(err).Warn("reaggregate on read")
		}
	}
	return &p, nil
}

func (r *Repo) loadVariants(ctx context.Context, p *Product) error {
	rows, err := r.DB.Query(ctx, `
		SELECT v.id, v.name, bs.branch_id, bs.quantity, bs.total_sold
		FROM variants v
		LEFT JOIN branch_stock bs ON bs.variant_id = v.id
		WHERE v.product_id=$1
		ORDER BY v.id, bs.branch_id`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := map[string]int{}
	for rows.Next() {
		var (
			vid, name string
			branchID  *string
			qty, sold *int
		)
		if err := rows.Scan(&vid, &name, &branchID, &qty, &sold); err != nil {
			return err
		}
		idx, ok := byID[vid]
		if !ok {
			p.Variants = append(p.Variants, Variant{ID: vid, Name: name})
			idx = len(p.Variants) - 1
			byID[vid] = idx
		}
		if branchID != nil {
			p.Variants[idx].Stock = append(p.Variants[idx].Stock, BranchStock{
				BranchID: *branchID, Quantity: *qty, TotalSold: *sold,
			})
		}
	}
	return rows.Err()
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, link, brand, selling_price_cents,
			list_price_cents, category_id, subcategory_id, total_stock,
			created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Link, &p.Brand, &p.SellingPriceCents,
			&p.ListPriceCents, &p.CategoryID, &p.SubcategoryID, &p.TotalStock,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProduct hanya menyentuh field deskriptif; stok lewat AdjustStock.
func (r *Repo) UpdateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, link=$4, brand=$5,
			selling_price_cents=$6, list_price_cents=$7, category_id=$8,
			subcategory_id=$9, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Link, p.Brand,
		p.SellingPriceCents, p.ListPriceCents, p.CategoryID, p.SubcategoryID)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetProduct(ctx, p.ID)
}

func (r *Repo) DeleteProduct(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdjustStock: tulisan administratif langsung ke ledger (set absolut),
// variant dibuatkan baris branch kalau belum ada, lalu re-aggregate.
func (r *Repo) AdjustStock(ctx context.Context, productID, variantID, branchID string, quantity int) error {
	if quantity < 0 {
		return ErrValidation
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var owner string
	err = tx.QueryRow(ctx, `SELECT product_id FROM variants WHERE id=$1`, variantID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != productID) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO branch_stock(variant_id, branch_id, quantity, total_sold)
		VALUES ($1,$2,$3,0)
		ON CONFLICT (variant_id, branch_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		variantID, branchID, quantity); err != nil {
		return err
	}
	if err := stock.ReaggregateProducts(ctx, tx, []string{productID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
