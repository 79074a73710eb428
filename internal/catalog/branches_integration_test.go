package catalog_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-branch-stock.git/internal/catalog"
	"github.com/ariefcatur/go-branch-stock.git/internal/postgres"
)

// Integration test: jalan hanya kalau TEST_POSTGRES_DSN diset.
func pgRepo(t *testing.T) (*catalog.Repo, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, postgres.EnsureSchema(ctx, db))

	log := logrus.New()
	log.SetOutput(io.Discard)
	return &catalog.Repo{DB: db, Log: log}, db
}

func newBranch(t *testing.T, r *catalog.Repo) *catalog.Branch {
	t.Helper()
	b, err := r.CreateBranch(context.Background(), &catalog.Branch{
		Address: "jl cabang " + uuid.NewString(), WorkingHours: "09-17", Contact: "0812",
	})
	require.NoError(t, err)
	return b
}

// Hapus branch = branch hilang + baris ledger-nya hilang + total_stock produk
// terdampak dihitung ulang, semuanya satu transaksi.
func TestPGDeleteBranchCascade(t *testing.T) {
	r, db := pgRepo(t)
	ctx := context.Background()

	b1 := newBranch(t, r)
	b2 := newBranch(t, r)

	p, err := r.CreateProduct(ctx, &catalog.Product{
		Name: "produk cabang", Link: "produk-" + uuid.NewString(), SellingPriceCents: 1000,
		Variants: []catalog.Variant{{
			Name: "default",
			Stock: []catalog.BranchStock{
				{BranchID: b1.ID, Quantity: 6},
				{BranchID: b2.ID, Quantity: 4},
			},
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Exec(context.Background(), `DELETE FROM products WHERE id=$1`, p.ID)
		_, _ = db.Exec(context.Background(), `DELETE FROM branches WHERE id=$1`, b2.ID)
	})
	require.Equal(t, 10, p.TotalStock)

	require.NoError(t, r.DeleteBranch(ctx, b1.ID))

	// branch hilang
	_, err = r.GetBranch(ctx, b1.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	// tidak ada baris ledger menggantung untuk branch itu
	var leftover int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT COUNT(*) FROM branch_stock WHERE branch_id=$1`, b1.ID).Scan(&leftover))
	assert.Equal(t, 0, leftover)

	// rollup tersimpan ikut turun di transaksi yang sama (cek nilai di DB
	// langsung, bukan lewat GetProduct yang bisa self-heal)
	var stored int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT total_stock FROM products WHERE id=$1`, p.ID).Scan(&stored))
	assert.Equal(t, 4, stored)

	// branch lain tidak tersentuh
	left, err := r.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, left.Variants, 1)
	require.Len(t, left.Variants[0].Stock, 1)
	assert.Equal(t, b2.ID, left.Variants[0].Stock[0].BranchID)
	assert.Equal(t, 4, left.Variants[0].Stock[0].Quantity)
}

func TestPGDeleteBranchNotFound(t *testing.T) {
	r, _ := pgRepo(t)
	assert.ErrorIs(t, r.DeleteBranch(context.Background(), uuid.NewString()), catalog.ErrNotFound)
}
