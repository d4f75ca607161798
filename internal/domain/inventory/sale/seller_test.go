package sale

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/pkg/numerator"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memStore keeps ordered batches per product+location key.
type memStore struct {
	batches []*batch.Batch
}

func (s *memStore) add(b *batch.Batch) *batch.Batch {
	b.EntrySeq = int64(len(s.batches) + 1)
	s.batches = append(s.batches, b)
	return b
}

func (s *memStore) GetByID(ctx context.Context, batchID id.ID) (batch.Batch, error) {
	for _, b := range s.batches {
		if b.ID == batchID {
			return *b, nil
		}
	}
	return batch.Batch{}, apperror.NewNotFound("batch", batchID)
}

func (s *memStore) ListAvailable(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	var out []batch.Batch
	for _, b := range s.batches {
		if b.ProductID == productID && b.LocationID == locationID && b.AvailableQuantity.IsPositive() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memStore) ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	return s.ListAvailable(ctx, productID, locationID, order)
}

func (s *memStore) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	for _, b := range s.batches {
		if b.ID != batchID {
			continue
		}
		if b.AvailableQuantity < qty {
			return 0, apperror.NewInsufficientBatchQuantity(batchID.String(), qty, b.AvailableQuantity)
		}
		b.AvailableQuantity -= qty
		return b.AvailableQuantity, nil
	}
	return 0, apperror.NewNotFound("batch", batchID)
}

func (s *memStore) Increment(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	for _, b := range s.batches {
		if b.ID == batchID {
			b.AvailableQuantity += qty
			return b.AvailableQuantity, nil
		}
	}
	return 0, apperror.NewNotFound("batch", batchID)
}

func (s *memStore) Create(ctx context.Context, b *batch.Batch) error {
	s.add(b)
	return nil
}

func (s *memStore) FindMatching(ctx context.Context, productID, locationID id.ID, identity batch.Identity) (*batch.Batch, error) {
	for _, b := range s.batches {
		if b.ProductID == productID && b.LocationID == locationID && b.Identity().Matches(identity) {
			return b, nil
		}
	}
	return nil, nil
}

func (s *memStore) TotalAvailable(ctx context.Context, productID id.ID, locationID *id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, b := range s.batches {
		if b.ProductID != productID {
			continue
		}
		if locationID != nil && b.LocationID != *locationID {
			continue
		}
		total += b.AvailableQuantity
	}
	return total, nil
}

func (s *memStore) ListExpiringBefore(ctx context.Context, locationID id.ID, cutoff time.Time) ([]batch.Batch, error) {
	return nil, nil
}

type memLedger struct {
	entries []ledger.Entry
}

func (m *memLedger) Append(ctx context.Context, entry *ledger.Entry) error {
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLedger) AppendAll(ctx context.Context, entries []ledger.Entry) error {
	for i := range entries {
		if err := m.Append(ctx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memLedger) ListByBatch(ctx context.Context, batchID id.ID) ([]ledger.Entry, error) {
	return nil, nil
}

func (m *memLedger) ListByReference(ctx context.Context, referenceNo string) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.ReferenceNo == referenceNo {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLedger) History(ctx context.Context, productID id.ID, filter ledger.HistoryFilter) ([]ledger.Entry, error) {
	return nil, nil
}

// seqRow fakes the sys_sequences UPSERT for reference minting.
type seqRow struct{ val int64 }

func (r seqRow) Scan(dest ...any) error {
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = r.val
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.current++
	return seqRow{val: q.current}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func seedBatch(store *memStore, productID, locationID id.ID, ref string, quantity, cost float64) *batch.Batch {
	b := batch.New(productID, locationID, ref, qty(quantity), types.NewMoney(cost), types.NewMoney(cost*2), nil)
	return store.add(b)
}

func newTestSeller() (*Seller, *memStore, *memLedger) {
	store := &memStore{}
	led := &memLedger{}
	seller := NewSeller(store, ledger.NewService(led), fakeTxManager{}, fakeTxManager{}, numerator.New(&seqQuerier{}), nil)
	return seller, store, led
}

func TestSell_SplitsAcrossBatchesFIFO(t *testing.T) {
	seller, store, led := newTestSeller()
	productID, locationID := id.New(), id.New()

	oldest := seedBatch(store, productID, locationID, "LOT-A", 10, 1.00)
	next := seedBatch(store, productID, locationID, "LOT-B", 20, 1.50)

	result, err := seller.Sell(context.Background(), Request{
		LocationID: locationID,
		Reference:  "SALE-TEST-1",
		Lines:      []LineInput{{ProductID: productID, Quantity: qty(15)}},
	})
	require.NoError(t, err)

	require.Len(t, result.Lines, 1)
	line := result.Lines[0]
	require.Len(t, line.Allocations, 2)
	assert.Equal(t, oldest.ID, line.Allocations[0].BatchID)
	assert.Equal(t, qty(10), line.Allocations[0].Quantity)
	assert.Equal(t, next.ID, line.Allocations[1].BatchID)
	assert.Equal(t, qty(5), line.Allocations[1].Quantity)

	// 10 * 1.00 + 5 * 1.50 = 17.50, exact provenance-based COGS.
	assert.True(t, result.CostOfGoods.Equal(types.NewMoney(17.50)),
		"want 17.50, got %s", result.CostOfGoods)

	// Stock drained in place.
	assert.True(t, oldest.AvailableQuantity.IsZero())
	assert.Equal(t, qty(15), next.AvailableQuantity)

	// One OUT entry per consumed batch, correlated by reference.
	entries, _ := led.ListByReference(context.Background(), "SALE-TEST-1")
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, ledger.MovementOut, e.Type)
	}
	assert.Equal(t, qty(0), entries[0].RemainingAfter)
	assert.Equal(t, qty(15), entries[1].RemainingAfter)
}

func TestSell_MintsReferenceWhenEmpty(t *testing.T) {
	seller, store, _ := newTestSeller()
	productID, locationID := id.New(), id.New()
	seedBatch(store, productID, locationID, "LOT-A", 10, 1.00)

	result, err := seller.Sell(context.Background(), Request{
		LocationID: locationID,
		Lines:      []LineInput{{ProductID: productID, Quantity: qty(1)}},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Reference, "SALE-")
}

func TestSell_OversellRejectedBeforeAnyDecrement(t *testing.T) {
	seller, store, led := newTestSeller()
	productID, locationID := id.New(), id.New()
	b := seedBatch(store, productID, locationID, "LOT-A", 10, 1.00)

	_, err := seller.Sell(context.Background(), Request{
		LocationID: locationID,
		Reference:  "SALE-TEST-2",
		Lines:      []LineInput{{ProductID: productID, Quantity: qty(11)}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	// All-or-nothing planning fails before the first decrement.
	assert.Equal(t, qty(10), b.AvailableQuantity)
	assert.Empty(t, led.entries)
}

func TestSell_MultiLineSharesOneReference(t *testing.T) {
	seller, store, led := newTestSeller()
	locationID := id.New()
	productA, productB := id.New(), id.New()
	seedBatch(store, productA, locationID, "LOT-A", 10, 1.00)
	seedBatch(store, productB, locationID, "LOT-B", 10, 2.00)

	result, err := seller.Sell(context.Background(), Request{
		LocationID: locationID,
		Reference:  "SALE-TEST-3",
		Lines: []LineInput{
			{ProductID: productA, Quantity: qty(2)},
			{ProductID: productB, Quantity: qty(3)},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)

	// 2 * 1.00 + 3 * 2.00 = 8.00
	assert.True(t, result.CostOfGoods.Equal(types.NewMoney(8.00)))

	entries, _ := led.ListByReference(context.Background(), "SALE-TEST-3")
	assert.Len(t, entries, 2)
}

func TestSell_Validation(t *testing.T) {
	seller, _, _ := newTestSeller()
	ctx := context.Background()

	_, err := seller.Sell(ctx, Request{Lines: []LineInput{{ProductID: id.New(), Quantity: qty(1)}}})
	require.Error(t, err)

	_, err = seller.Sell(ctx, Request{LocationID: id.New()})
	require.Error(t, err)

	_, err = seller.Sell(ctx, Request{
		LocationID: id.New(),
		Lines:      []LineInput{{ProductID: id.New(), Quantity: qty(0)}},
	})
	require.Error(t, err)
}

func TestPreview_DoesNotMoveStock(t *testing.T) {
	seller, store, led := newTestSeller()
	productID, locationID := id.New(), id.New()
	b := seedBatch(store, productID, locationID, "LOT-A", 10, 1.00)

	plan, err := seller.Preview(context.Background(), productID, locationID, qty(4), batch.OrderFIFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, qty(4), plan.Total())

	assert.Equal(t, qty(10), b.AvailableQuantity)
	assert.Empty(t, led.entries)
}

// lockedStore serializes store calls the way row locks do, so the
// conditional decrement is the only oversell guard under contention.
type lockedStore struct {
	mu sync.Mutex
	memStore
}

func (s *lockedStore) ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memStore.ListAvailableForUpdate(ctx, productID, locationID, order)
}

func (s *lockedStore) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memStore.Decrement(ctx, batchID, qty)
}

type lockedLedger struct {
	mu sync.Mutex
	memLedger
}

func (m *lockedLedger) Append(ctx context.Context, entry *ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memLedger.Append(ctx, entry)
}

func TestSell_ConcurrentSalesNeverOversell(t *testing.T) {
	store := &lockedStore{}
	led := &lockedLedger{}
	seller := NewSeller(store, ledger.NewService(led), fakeTxManager{}, fakeTxManager{}, numerator.New(&seqQuerier{}), nil)
	productID, locationID := id.New(), id.New()
	b := seedBatch(&store.memStore, productID, locationID, "LOT-A", 10, 1.00)

	// Two checkouts race for the same batch. 6 + 6 > 10, so at most one of
	// them may commit.
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := seller.Sell(context.Background(), Request{
				LocationID: locationID,
				Reference:  "SALE-RACE-" + string(rune('1'+i)),
				Lines:      []LineInput{{ProductID: productID, Quantity: qty(6)}},
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, apperror.IsInsufficientStock(err) || apperror.IsInsufficientBatchQuantity(err),
				"unexpected failure: %v", err)
		}
	}
	require.Equal(t, 1, successes)

	// Consumption never exceeds what was seeded and never goes negative.
	assert.Equal(t, qty(4), b.AvailableQuantity)
	assert.False(t, b.AvailableQuantity.IsNegative())

	led.mu.Lock()
	defer led.mu.Unlock()
	var consumed types.Quantity
	for _, e := range led.entries {
		consumed += e.Quantity
	}
	assert.Equal(t, qty(6), consumed)
}
