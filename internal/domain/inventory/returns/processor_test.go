package returns

import (
	"context"
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
	return nil, nil
}

func (s *memStore) ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order batch.Ordering) ([]batch.Batch, error) {
	return nil, nil
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
		if b.ProductID == productID {
			total += b.AvailableQuantity
		}
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

type fixedPricing struct {
	cost  types.Money
	price types.Money
}

func (p fixedPricing) DefaultPricing(ctx context.Context, productID id.ID) (types.Money, types.Money, error) {
	return p.cost, p.price, nil
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func newTestProcessor() (*Processor, *memStore, *memLedger) {
	store := &memStore{}
	led := &memLedger{}
	pricing := fixedPricing{cost: types.NewMoney(9.99), price: types.NewMoney(19.99)}
	p := NewProcessor(store, ledger.NewService(led), fakeTxManager{}, numerator.New(&seqQuerier{}), pricing, nil)
	return p, store, led
}

// sellFrom simulates the original consumption: decrement the batch and write
// the OUT entry the sale path would have written.
func sellFrom(t *testing.T, store *memStore, led *memLedger, b *batch.Batch, quantity types.Quantity, reference string) {
	t.Helper()
	remaining, err := store.Decrement(context.Background(), b.ID, quantity)
	require.NoError(t, err)
	entry := ledger.NewEntry(b.ProductID, b.ID, b.LocationID, ledger.MovementOut, quantity, remaining, reference)
	require.NoError(t, led.Append(context.Background(), &entry))
}

func TestProcess_RoundTripRestoresOriginalBatch(t *testing.T) {
	p, store, led := newTestProcessor()
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	b := store.add(batch.New(productID, locationID, "LOT-A", qty(50), types.NewMoney(2.00), types.NewMoney(4.00), nil))
	sellFrom(t, store, led, b, qty(20), "SALE-1")
	require.Equal(t, qty(30), b.AvailableQuantity)

	result, err := p.Process(ctx, Request{
		OriginalReference: "SALE-1",
		ProductID:         productID,
		LocationID:        locationID,
		Quantity:          qty(20),
	})
	require.NoError(t, err)
	assert.Contains(t, result.Reference, "RET-")

	// Stock is back in the batch it left.
	assert.Equal(t, qty(50), b.AvailableQuantity)
	require.Len(t, result.Restorations, 1)
	assert.Equal(t, b.ID, result.Restorations[0].BatchID)
	assert.False(t, result.Restorations[0].ProvenanceLost)

	// The RETURN entry is chained to the original reference.
	chained, _ := led.ListByReference(ctx, "RET:SALE-1")
	require.Len(t, chained, 1)
	assert.Equal(t, ledger.MovementReturn, chained[0].Type)
	assert.Equal(t, qty(20), chained[0].Quantity)
}

func TestProcess_CapSurvivesPartialReturns(t *testing.T) {
	p, store, led := newTestProcessor()
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	b := store.add(batch.New(productID, locationID, "LOT-A", qty(50), types.NewMoney(2.00), types.NewMoney(4.00), nil))
	sellFrom(t, store, led, b, qty(20), "SALE-1")

	req := Request{OriginalReference: "SALE-1", ProductID: productID, LocationID: locationID}

	req.Quantity = qty(15)
	_, err := p.Process(ctx, req)
	require.NoError(t, err)

	// Only 5 of the original 20 remain returnable.
	req.Quantity = qty(10)
	_, err = p.Process(ctx, req)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, qty(5).String(), appErr.Details["returnable"])

	req.Quantity = qty(5)
	_, err = p.Process(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, qty(50), b.AvailableQuantity)
}

func TestProcess_RestoresMostRecentConsumptionFirst(t *testing.T) {
	p, store, led := newTestProcessor()
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	older := store.add(batch.New(productID, locationID, "LOT-A", qty(10), types.NewMoney(1.00), types.NewMoney(2.00), nil))
	newer := store.add(batch.New(productID, locationID, "LOT-B", qty(10), types.NewMoney(1.50), types.NewMoney(3.00), nil))
	sellFrom(t, store, led, older, qty(10), "SALE-1")
	sellFrom(t, store, led, newer, qty(6), "SALE-1")

	result, err := p.Process(ctx, Request{
		OriginalReference: "SALE-1",
		ProductID:         productID,
		LocationID:        locationID,
		Quantity:          qty(8),
	})
	require.NoError(t, err)

	// 6 back into the last-consumed batch, the remaining 2 into the older one.
	require.Len(t, result.Restorations, 2)
	assert.Equal(t, newer.ID, result.Restorations[0].BatchID)
	assert.Equal(t, qty(6), result.Restorations[0].Quantity)
	assert.Equal(t, older.ID, result.Restorations[1].BatchID)
	assert.Equal(t, qty(2), result.Restorations[1].Quantity)
	assert.Equal(t, qty(10), newer.AvailableQuantity)
	assert.Equal(t, qty(2), older.AvailableQuantity)
}

func TestProcess_ReturnAtOtherLocationCarriesIdentity(t *testing.T) {
	p, store, led := newTestProcessor()
	ctx := context.Background()
	productID, soldAt, returnedAt := id.New(), id.New(), id.New()

	expiry := time.Now().AddDate(0, 1, 0)
	b := store.add(batch.New(productID, soldAt, "LOT-A", qty(30), types.NewMoney(2.00), types.NewMoney(4.00), &expiry))
	sellFrom(t, store, led, b, qty(10), "SALE-1")

	result, err := p.Process(ctx, Request{
		OriginalReference: "SALE-1",
		ProductID:         productID,
		LocationID:        returnedAt,
		Quantity:          qty(10),
	})
	require.NoError(t, err)

	// Original batch untouched; a new batch at the return location carries
	// the lot reference, cost, price and expiration.
	assert.Equal(t, qty(20), b.AvailableQuantity)
	require.Len(t, result.Restorations, 1)
	restored, err := store.GetByID(ctx, result.Restorations[0].BatchID)
	require.NoError(t, err)
	assert.Equal(t, returnedAt, restored.LocationID)
	assert.Equal(t, "LOT-A", restored.BatchReference)
	assert.True(t, restored.Identity().Matches(b.Identity()))
	assert.Equal(t, qty(10), restored.AvailableQuantity)
	assert.False(t, result.Restorations[0].ProvenanceLost)
}

func TestProcess_LostProvenanceUsesDefaultPricing(t *testing.T) {
	p, store, led := newTestProcessor()
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	// Consumption entry points at a batch row that no longer exists.
	gone := id.New()
	entry := ledger.NewEntry(productID, gone, locationID, ledger.MovementOut, qty(4), qty(0), "SALE-1")
	require.NoError(t, led.Append(ctx, &entry))

	result, err := p.Process(ctx, Request{
		OriginalReference: "SALE-1",
		ProductID:         productID,
		LocationID:        locationID,
		Quantity:          qty(4),
	})
	require.NoError(t, err)

	require.Len(t, result.Restorations, 1)
	assert.True(t, result.Restorations[0].ProvenanceLost)
	restored, err := store.GetByID(ctx, result.Restorations[0].BatchID)
	require.NoError(t, err)
	assert.True(t, restored.UnitCost.Equal(types.NewMoney(9.99)))
	assert.True(t, restored.SellingPrice.Equal(types.NewMoney(19.99)))
	assert.Nil(t, restored.ExpirationDate)
}

func TestProcess_UnknownReference(t *testing.T) {
	p, _, _ := newTestProcessor()

	_, err := p.Process(context.Background(), Request{
		OriginalReference: "SALE-MISSING",
		ProductID:         id.New(),
		LocationID:        id.New(),
		Quantity:          qty(1),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestProcess_Validation(t *testing.T) {
	p, _, _ := newTestProcessor()
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing reference", Request{ProductID: id.New(), LocationID: id.New(), Quantity: qty(1)}},
		{"missing product", Request{OriginalReference: "SALE-1", LocationID: id.New(), Quantity: qty(1)}},
		{"missing location", Request{OriginalReference: "SALE-1", ProductID: id.New(), Quantity: qty(1)}},
		{"zero quantity", Request{OriginalReference: "SALE-1", ProductID: id.New(), LocationID: id.New()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(ctx, tc.req)
			require.Error(t, err)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
		})
	}
}
