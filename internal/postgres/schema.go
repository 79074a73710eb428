package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Skema dieksekusi saat boot; semua statement idempotent (IF NOT EXISTS).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		id            UUID PRIMARY KEY,
		address       TEXT NOT NULL,
		working_hours TEXT NOT NULL,
		contact       TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id                  UUID PRIMARY KEY,
		name                TEXT NOT NULL,
		description         TEXT NOT NULL DEFAULT '',
		link                TEXT NOT NULL UNIQUE,
		brand               TEXT NOT NULL DEFAULT '',
		selling_price_cents BIGINT NOT NULL,
		list_price_cents    BIGINT NOT NULL DEFAULT 0,
		category_id         TEXT NOT NULL DEFAULT '',
		subcategory_id      TEXT NOT NULL DEFAULT '',
		total_stock         BIGINT NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS variants (
		id         UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		name       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS variants_product_idx ON variants(product_id)`,
	// quantity adalah sumber kebenaran stok; CHECK jadi pagar terakhir anti-oversell.
	`CREATE TABLE IF NOT EXISTS branch_stock (
		variant_id UUID NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
		branch_id  UUID NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
		quantity   BIGINT NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		total_sold BIGINT NOT NULL DEFAULT 0 CHECK (total_sold >= 0),
		PRIMARY KEY (variant_id, branch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id         UUID PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS carts_updated_idx ON carts(updated_at)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		cart_id    UUID NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id UUID NOT NULL,
		variant_id UUID NOT NULL,
		branch_id  UUID NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
		qty        INT NOT NULL CHECK (qty > 0),
		PRIMARY KEY (cart_id, variant_id, branch_id)
	)`,
	// order_no: nomor urut yang dilihat customer; sequence menggantikan pola
	// "ambil max lalu +1" yang rawan duplikat di bawah concurrency.
	`CREATE SEQUENCE IF NOT EXISTS order_no_seq`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               UUID PRIMARY KEY,
		order_no         BIGINT NOT NULL UNIQUE DEFAULT nextval('order_no_seq'),
		user_id          TEXT NOT NULL DEFAULT '',
		buyer_name       TEXT NOT NULL DEFAULT '',
		buyer_phone      TEXT NOT NULL DEFAULT '',
		total_cents      BIGINT NOT NULL,
		order_status     TEXT NOT NULL DEFAULT 'pending',
		payment_status   TEXT NOT NULL DEFAULT 'pending',
		payment_method   TEXT NOT NULL DEFAULT '',
		payment_ref      TEXT NOT NULL DEFAULT '',
		logistics_method TEXT NOT NULL DEFAULT 'pickup',
		delivery_address TEXT NOT NULL DEFAULT '',
		pickup_branch_id TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// line order dibekukan (tanpa FK ke branch): histori tidak ikut hilang
	// kalau branch-nya dihapus.
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id    UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id  UUID NOT NULL,
		variant_id  UUID NOT NULL,
		branch_id   UUID NOT NULL,
		qty         INT NOT NULL CHECK (qty > 0),
		price_cents BIGINT NOT NULL,
		PRIMARY KEY (order_id, variant_id, branch_id)
	)`,
}

func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
