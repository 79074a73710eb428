package cart_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-branch-stock.git/internal/cart"
	"github.com/ariefcatur/go-branch-stock.git/internal/memstore"
	"github.com/ariefcatur/go-branch-stock.git/internal/stock"
)

const (
	prodA    = "11111111-1111-1111-1111-111111111111"
	variantA = "22222222-2222-2222-2222-222222222222"
	branchX  = "33333333-3333-3333-3333-333333333333"
	branchY  = "44444444-4444-4444-4444-444444444444"
)

func newService(t *testing.T) (*cart.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &cart.Service{Store: st.CartStore(), TTL: 10 * time.Minute, Log: log}, st
}

func line(qty int) stock.Line {
	return stock.Line{ProductID: prodA, VariantID: variantA, BranchID: branchX, Qty: qty}
}

func TestReserveValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "", nil)
	assert.ErrorIs(t, err, cart.ErrValidation)

	_, err = svc.Reserve(ctx, "", []stock.Line{{ProductID: prodA, VariantID: variantA, BranchID: branchX, Qty: 0}})
	assert.ErrorIs(t, err, cart.ErrValidation)

	_, err = svc.Reserve(ctx, "", []stock.Line{{VariantID: variantA, BranchID: branchX, Qty: 1}})
	assert.ErrorIs(t, err, cart.ErrValidation)

	// dua line untuk (variant, branch) yang sama ditolak sebelum menyentuh ledger
	_, err = svc.Reserve(ctx, "", []stock.Line{line(1), line(2)})
	assert.ErrorIs(t, err, cart.ErrValidation)
}

func TestReserveDecrementsLedger(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(7)})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 3, st.Quantity(variantA, branchX))

	c, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
	assert.Equal(t, 7, c.Items[0].Qty)
}

// Skenario dari desain: ledger 10 -> reserve 7 ok -> reserve 5 gagal ->
// expire cart pertama -> reserve 5 ok.
func TestReserveExpireReserveAgain(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	c1, err := svc.Reserve(ctx, "", []stock.Line{line(7)})
	require.NoError(t, err)
	assert.Equal(t, 3, st.Quantity(variantA, branchX))

	_, err = svc.Reserve(ctx, "", []stock.Line{line(5)})
	var insufficient *cart.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortages, 1)
	assert.Equal(t, 5, insufficient.Shortages[0].Required)
	assert.Equal(t, 3, insufficient.Shortages[0].Available)
	assert.Equal(t, 3, st.Quantity(variantA, branchX), "reserve gagal tidak boleh mengubah ledger")

	// paksa expire c1
	n, err := svc.Store.SweepExpired(ctx, time.Now().Add(11*time.Minute), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, st.Quantity(variantA, branchX))
	_, err = svc.Get(ctx, c1)
	assert.ErrorIs(t, err, cart.ErrNotFound)

	_, err = svc.Reserve(ctx, "", []stock.Line{line(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, st.Quantity(variantA, branchX))
}

func TestReserveReplacesNotMerges(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	st.SetStock(prodA, variantA, branchY, 4)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(6)})
	require.NoError(t, err)
	assert.Equal(t, 4, st.Quantity(variantA, branchX))

	// panggilan kedua mengirim ulang set line penuh: holding lama dilepas
	id2, err := svc.Reserve(ctx, id, []stock.Line{
		{ProductID: prodA, VariantID: variantA, BranchID: branchX, Qty: 2},
		{ProductID: prodA, VariantID: variantA, BranchID: branchY, Qty: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, 8, st.Quantity(variantA, branchX))
	assert.Equal(t, 1, st.Quantity(variantA, branchY))

	c, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
}

// Replace boleh memakai kembali stok yang dipegang cart itu sendiri:
// 10 unit, cart pegang 7, minta 9 -> harus berhasil (7 kembali dulu).
func TestReserveReplaceSelfExclusion(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(7)})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, id, []stock.Line{line(9)})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Quantity(variantA, branchX))
}

func TestReserveFailureKeepsOldHoldings(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	st.SetStock(prodA, variantA, branchY, 2)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(7)})
	require.NoError(t, err)

	// line kedua gagal -> seluruh request batal, holding lama tetap utuh
	_, err = svc.Reserve(ctx, id, []stock.Line{
		{ProductID: prodA, VariantID: variantA, BranchID: branchX, Qty: 1},
		{ProductID: prodA, VariantID: variantA, BranchID: branchY, Qty: 5},
	})
	var insufficient *cart.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	assert.Equal(t, 3, st.Quantity(variantA, branchX))
	assert.Equal(t, 2, st.Quantity(variantA, branchY))
	c, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 7, c.Items[0].Qty)
}

// Properti no-oversell: request paralel yang totalnya melebihi stok, yang
// lolos persis sebanyak yang muat dan ledger tidak pernah negatif.
func TestConcurrentReserveNoOversell(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	const attempts = 30 // 30 x qty 1, cuma 10 yang boleh lolos
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, "", []stock.Line{line(1)})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	okCount := 0
	for err := range results {
		if err == nil {
			okCount++
			continue
		}
		var insufficient *cart.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
	}
	assert.Equal(t, 10, okCount)
	assert.Equal(t, 0, st.Quantity(variantA, branchX))
	assert.GreaterOrEqual(t, st.Quantity(variantA, branchX), 0)
}

// Restore harus tepat sekali: sweep kedua tidak boleh menaikkan stok lagi.
func TestSweepRestoreExactlyOnce(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "", []stock.Line{line(4)})
	require.NoError(t, err)
	require.Equal(t, 6, st.Quantity(variantA, branchX))

	later := time.Now().Add(11 * time.Minute)
	n, err := svc.Store.SweepExpired(ctx, later, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, st.Quantity(variantA, branchX))

	n, err = svc.Store.SweepExpired(ctx, later, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 10, st.Quantity(variantA, branchX))
}

func TestReleaseRestoresAndDeletes(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(4)})
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, id))
	assert.Equal(t, 10, st.Quantity(variantA, branchX))
	assert.ErrorIs(t, svc.Release(ctx, id), cart.ErrNotFound)
	assert.Equal(t, 10, st.Quantity(variantA, branchX), "release kedua tidak boleh restore lagi")
}

// Aggregate konsisten: total_stock produk selalu sama dengan jumlah ledger
// setelah operasi apa pun selesai.
func TestTotalStockStaysConsistent(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	st.SetStock(prodA, variantA, branchY, 5)
	ctx := context.Background()

	check := func() {
		t.Helper()
		assert.Equal(t, st.LedgerSum(prodA), st.TotalStock(prodA))
	}
	check()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(3)})
	require.NoError(t, err)
	check()

	_, err = svc.Reserve(ctx, id, []stock.Line{
		{ProductID: prodA, VariantID: variantA, BranchID: branchY, Qty: 2},
	})
	require.NoError(t, err)
	check()

	require.NoError(t, svc.Release(ctx, id))
	check()
	assert.Equal(t, 15, st.TotalStock(prodA))
}

func TestSimulateSideEffectFree(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		out, err := svc.Simulate(ctx, "", []stock.Line{line(4)})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.True(t, out[0].StockAvailable)
		assert.Equal(t, 10, out[0].Available)
	}
	assert.Equal(t, 10, st.Quantity(variantA, branchX))
	assert.Equal(t, 0, st.CartCount())
}

// Self-exclusion: cart tidak melihat holding-nya sendiri sebagai habis.
func TestSimulateSelfExclusion(t *testing.T) {
	svc, st := newService(t)
	st.AddProduct(prodA, 1000)
	st.SetStock(prodA, variantA, branchX, 10)
	ctx := context.Background()

	id, err := svc.Reserve(ctx, "", []stock.Line{line(8)})
	require.NoError(t, err)
	require.Equal(t, 2, st.Quantity(variantA, branchX))

	// tanpa cart id: sisa 2, minta 8 -> tidak tersedia
	out, err := svc.Simulate(ctx, "", []stock.Line{line(8)})
	require.NoError(t, err)
	assert.False(t, out[0].StockAvailable)

	// dengan cart id sendiri: 2 + 8 yang dipegang = 10 -> tersedia
	out, err = svc.Simulate(ctx, id, []stock.Line{line(8)})
	require.NoError(t, err)
	assert.True(t, out[0].StockAvailable)
	assert.Equal(t, 10, out[0].Available)
}

func TestSimulateUnknownLine(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	out, err := svc.Simulate(ctx, "", []stock.Line{line(1)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].StockAvailable)
	assert.Zero(t, out[0].Available)
}

func TestReserveUnknownLineIsNotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "", []stock.Line{line(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cart.ErrNotFound))
}
