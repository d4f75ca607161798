package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/ledger"
)

// fakeTxManager runs the callback directly; domain tests assert on the
// calls the service makes, not on transaction mechanics.
type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memStore is an in-memory Store.
type memStore struct {
	batches map[id.ID]*Batch
	seq     int64
}

func newMemStore() *memStore {
	return &memStore{batches: make(map[id.ID]*Batch)}
}

func (s *memStore) GetByID(ctx context.Context, batchID id.ID) (Batch, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return Batch{}, apperror.NewNotFound("batch", batchID)
	}
	return *b, nil
}

func (s *memStore) list(productID, locationID id.ID, includeEmpty bool) []Batch {
	var out []Batch
	for _, b := range s.batches {
		if b.ProductID != productID || b.LocationID != locationID {
			continue
		}
		if !includeEmpty && !b.AvailableQuantity.IsPositive() {
			continue
		}
		out = append(out, *b)
	}
	// FIFO by entry sequence; good enough for map-backed fixtures.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].EntrySeq < out[i].EntrySeq {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (s *memStore) ListAvailable(ctx context.Context, productID, locationID id.ID, order Ordering) ([]Batch, error) {
	return s.list(productID, locationID, false), nil
}

func (s *memStore) ListAvailableForUpdate(ctx context.Context, productID, locationID id.ID, order Ordering) ([]Batch, error) {
	return s.list(productID, locationID, false), nil
}

func (s *memStore) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return 0, apperror.NewNotFound("batch", batchID)
	}
	if b.AvailableQuantity < qty {
		return 0, apperror.NewInsufficientBatchQuantity(batchID.String(), qty, b.AvailableQuantity)
	}
	b.AvailableQuantity -= qty
	return b.AvailableQuantity, nil
}

func (s *memStore) Increment(ctx context.Context, batchID id.ID, qty types.Quantity) (types.Quantity, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return 0, apperror.NewNotFound("batch", batchID)
	}
	b.AvailableQuantity += qty
	return b.AvailableQuantity, nil
}

func (s *memStore) Create(ctx context.Context, b *Batch) error {
	for _, existing := range s.batches {
		if existing.ProductID == b.ProductID && existing.LocationID == b.LocationID &&
			existing.BatchReference == b.BatchReference {
			if existing.Identity().Matches(b.Identity()) {
				return apperror.NewDuplicate("batch", "identity", b.BatchReference)
			}
			return apperror.NewDuplicateLot(b.ProductID.String(), b.LocationID.String(), b.BatchReference)
		}
	}
	s.seq++
	b.EntrySeq = s.seq
	clone := *b
	s.batches[b.ID] = &clone
	return nil
}

func (s *memStore) FindMatching(ctx context.Context, productID, locationID id.ID, identity Identity) (*Batch, error) {
	for _, b := range s.batches {
		if b.ProductID == productID && b.LocationID == locationID && b.Identity().Matches(identity) {
			clone := *b
			return &clone, nil
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

func (s *memStore) ListExpiringBefore(ctx context.Context, locationID id.ID, cutoff time.Time) ([]Batch, error) {
	var out []Batch
	for _, b := range s.batches {
		if b.LocationID != locationID || !b.AvailableQuantity.IsPositive() {
			continue
		}
		if b.ExpirationDate != nil && b.ExpirationDate.Before(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

// memLedger is an in-memory ledger.Repository.
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
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
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
	var out []ledger.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ProductID == productID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func newTestService() (*Service, *memStore, *memLedger) {
	store := newMemStore()
	led := &memLedger{}
	svc := NewService(store, ledger.NewService(led), fakeTxManager{}, nil)
	return svc, store, led
}

func receiveReq(productID, locationID id.ID, ref string, qty float64) ReceiveRequest {
	return ReceiveRequest{
		ProductID:      productID,
		LocationID:     locationID,
		BatchReference: ref,
		Quantity:       types.NewQuantityFromFloat64(qty),
		UnitCost:       types.NewMoney(2.50),
		SellingPrice:   types.NewMoney(4.99),
		ReferenceNo:    "GRN-001",
	}
}

func TestReceive_CreatesBatchAndLedgerEntry(t *testing.T) {
	svc, store, led := newTestService()
	productID, locationID := id.New(), id.New()

	b, err := svc.Receive(context.Background(), receiveReq(productID, locationID, "LOT-1", 50))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, types.NewQuantityFromFloat64(50), b.AvailableQuantity)
	assert.Len(t, store.batches, 1)

	require.Len(t, led.entries, 1)
	entry := led.entries[0]
	assert.Equal(t, ledger.MovementIn, entry.Type)
	assert.Equal(t, b.ID, entry.BatchID)
	assert.Equal(t, types.NewQuantityFromFloat64(50), entry.RemainingAfter)
	assert.Equal(t, "GRN-001", entry.ReferenceNo)
}

func TestReceive_TopsUpSameIdentity(t *testing.T) {
	svc, store, led := newTestService()
	productID, locationID := id.New(), id.New()
	ctx := context.Background()

	first, err := svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 50))
	require.NoError(t, err)

	second, err := svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 25))
	require.NoError(t, err)

	// Same row topped up, not a second batch.
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.batches, 1)
	assert.Equal(t, types.NewQuantityFromFloat64(75), second.AvailableQuantity)

	require.Len(t, led.entries, 2)
	assert.Equal(t, types.NewQuantityFromFloat64(75), led.entries[1].RemainingAfter)
}

func TestReceive_DifferentIdentitySameReferenceFails(t *testing.T) {
	svc, _, _ := newTestService()
	productID, locationID := id.New(), id.New()
	ctx := context.Background()

	_, err := svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 50))
	require.NoError(t, err)

	// Same lot reference, different cost.
	req := receiveReq(productID, locationID, "LOT-1", 25)
	req.UnitCost = types.NewMoney(3.10)
	_, err = svc.Receive(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsDuplicateLot(err))
}

func TestReceive_RejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Receive(context.Background(), receiveReq(id.New(), id.New(), "LOT-1", 0))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestAdjust_SignedDelta(t *testing.T) {
	svc, _, led := newTestService()
	ctx := context.Background()

	b, err := svc.Receive(ctx, receiveReq(id.New(), id.New(), "LOT-1", 50))
	require.NoError(t, err)

	entry, err := svc.Adjust(ctx, AdjustRequest{
		BatchID:     b.ID,
		Quantity:    types.NewQuantityFromFloat64(-8),
		ReferenceNo: "ADJ-001",
		Reason:      "stock take shrinkage",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.MovementAdjustment, entry.Type)
	assert.Equal(t, types.NewQuantityFromFloat64(42), entry.RemainingAfter)

	entry, err = svc.Adjust(ctx, AdjustRequest{
		BatchID:     b.ID,
		Quantity:    types.NewQuantityFromFloat64(3),
		ReferenceNo: "ADJ-002",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(45), entry.RemainingAfter)

	assert.Len(t, led.entries, 3) // IN + two adjustments
}

func TestAdjust_ZeroRejected(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Adjust(context.Background(), AdjustRequest{BatchID: id.New(), ReferenceNo: "ADJ-001"})
	require.Error(t, err)
}

func TestAdjust_CannotDriveBelowZero(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	b, err := svc.Receive(ctx, receiveReq(id.New(), id.New(), "LOT-1", 10))
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustRequest{
		BatchID:     b.ID,
		Quantity:    types.NewQuantityFromFloat64(-11),
		ReferenceNo: "ADJ-001",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientBatchQuantity(err))
}

func TestAvailability_DerivedFromBatches(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	productID := id.New()
	locA, locB := id.New(), id.New()

	_, err := svc.Receive(ctx, receiveReq(productID, locA, "LOT-1", 40))
	require.NoError(t, err)
	_, err = svc.Receive(ctx, receiveReq(productID, locA, "LOT-2", 10))
	require.NoError(t, err)
	_, err = svc.Receive(ctx, receiveReq(productID, locB, "LOT-1", 5))
	require.NoError(t, err)

	total, err := svc.Availability(ctx, productID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(55), total)

	atA, err := svc.Availability(ctx, productID, &locA)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(50), atA)
}

func TestReconcile_ReplaysLedger(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	b, err := svc.Receive(ctx, receiveReq(id.New(), id.New(), "LOT-1", 50))
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustRequest{
		BatchID:     b.ID,
		Quantity:    types.NewQuantityFromFloat64(-10),
		ReferenceNo: "ADJ-001",
	})
	require.NoError(t, err)

	rec, err := svc.Reconcile(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, types.NewQuantityFromFloat64(40), rec.ReplaySum)
}

// notFoundStore reports "no matching batch" as a NotFound error instead of
// the contract's nil result, the way a lookup-style store might.
type notFoundStore struct {
	*memStore
}

func (s *notFoundStore) FindMatching(ctx context.Context, productID, locationID id.ID, identity Identity) (*Batch, error) {
	b, err := s.memStore.FindMatching(ctx, productID, locationID, identity)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperror.NewNotFound("batch", identity.BatchReference)
	}
	return b, nil
}

func TestReceive_FirstLotWhenStoreSignalsNoMatchAsNotFound(t *testing.T) {
	store := &notFoundStore{memStore: newMemStore()}
	led := &memLedger{}
	svc := NewService(store, ledger.NewService(led), fakeTxManager{}, nil)
	ctx := context.Background()

	b, err := svc.Receive(ctx, receiveReq(id.New(), id.New(), "LOT-1", 30))
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, types.NewQuantityFromFloat64(30), b.AvailableQuantity)
	require.Len(t, led.entries, 1)
	assert.Equal(t, ledger.MovementIn, led.entries[0].Type)
}

// recordingCache is an in-memory AvailabilityCache that counts hits and
// misses.
type recordingCache struct {
	totals map[string]types.Quantity
	gets   int
	sets   int
	hits   int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{totals: make(map[string]types.Quantity)}
}

func (c *recordingCache) key(locationID, productID id.ID) string {
	return locationID.String() + ":" + productID.String()
}

func (c *recordingCache) GetTotal(ctx context.Context, locationID, productID id.ID) (types.Quantity, bool) {
	c.gets++
	total, ok := c.totals[c.key(locationID, productID)]
	if ok {
		c.hits++
	}
	return total, ok
}

func (c *recordingCache) SetTotal(ctx context.Context, locationID, productID id.ID, total types.Quantity) {
	c.sets++
	c.totals[c.key(locationID, productID)] = total
}

func (c *recordingCache) Invalidate(ctx context.Context, locationID, productID id.ID) {
	delete(c.totals, c.key(locationID, productID))
}

func TestAvailability_PopulatesAndServesFromCache(t *testing.T) {
	store := newMemStore()
	led := &memLedger{}
	cache := newRecordingCache()
	svc := NewService(store, ledger.NewService(led), fakeTxManager{}, cache)
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	_, err := svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 40))
	require.NoError(t, err)

	// First read misses and repopulates.
	total, err := svc.Availability(ctx, productID, &locationID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(40), total)
	assert.Equal(t, 1, cache.gets)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from the snapshot without another write.
	total, err = svc.Availability(ctx, productID, &locationID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(40), total)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.sets)
}

func TestAvailability_MutationInvalidatesSnapshot(t *testing.T) {
	store := newMemStore()
	led := &memLedger{}
	cache := newRecordingCache()
	svc := NewService(store, ledger.NewService(led), fakeTxManager{}, cache)
	ctx := context.Background()
	productID, locationID := id.New(), id.New()

	_, err := svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 40))
	require.NoError(t, err)

	_, err = svc.Availability(ctx, productID, &locationID)
	require.NoError(t, err)

	// Receiving more stock drops the stale snapshot.
	_, err = svc.Receive(ctx, receiveReq(productID, locationID, "LOT-1", 10))
	require.NoError(t, err)

	total, err := svc.Availability(ctx, productID, &locationID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(50), total)
}

func TestAvailability_UnscopedSkipsCache(t *testing.T) {
	store := newMemStore()
	led := &memLedger{}
	cache := newRecordingCache()
	svc := NewService(store, ledger.NewService(led), fakeTxManager{}, cache)
	ctx := context.Background()
	productID := id.New()

	_, err := svc.Receive(ctx, receiveReq(productID, id.New(), "LOT-1", 10))
	require.NoError(t, err)
	_, err = svc.Receive(ctx, receiveReq(productID, id.New(), "LOT-2", 15))
	require.NoError(t, err)

	total, err := svc.Availability(ctx, productID, nil)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(25), total)
	assert.Equal(t, 0, cache.gets)
	assert.Equal(t, 0, cache.sets)
}
