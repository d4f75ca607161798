package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/inventory/batch"
)

func makeBatch(ref string, qty float64, cost float64, entryOffset time.Duration) batch.Batch {
	now := time.Now().UTC()
	return batch.Batch{
		ID:                id.New(),
		ProductID:         id.New(),
		LocationID:        id.New(),
		BatchReference:    ref,
		AvailableQuantity: types.NewQuantityFromFloat64(qty),
		UnitCost:          types.NewMoney(cost),
		SellingPrice:      types.NewMoney(cost * 2),
		EntryDate:         now.Add(entryOffset),
	}
}

func TestBuild_ConsumesInGivenOrder(t *testing.T) {
	productID := id.New()
	locationID := id.New()

	// Store returns batches already in FIFO order.
	batches := []batch.Batch{
		makeBatch("LOT-A", 10, 1.00, -3*time.Hour),
		makeBatch("LOT-B", 20, 2.00, -2*time.Hour),
		makeBatch("LOT-C", 30, 3.00, -1*time.Hour),
	}

	plan, err := Build(productID, locationID, batch.OrderFIFO, batches, types.NewQuantityFromFloat64(25))
	require.NoError(t, err)

	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "LOT-A", plan.Allocations[0].BatchReference)
	assert.Equal(t, types.NewQuantityFromFloat64(10), plan.Allocations[0].Quantity)
	assert.Equal(t, "LOT-B", plan.Allocations[1].BatchReference)
	assert.Equal(t, types.NewQuantityFromFloat64(15), plan.Allocations[1].Quantity)

	assert.Equal(t, types.NewQuantityFromFloat64(25), plan.Total())

	// 10 * 1.00 + 15 * 2.00 = 40.00
	assert.True(t, plan.TotalCost().Equal(types.NewMoney(40.00)),
		"want cost 40.00, got %s", plan.TotalCost())
}

func TestBuild_ExactlyDrainsLastBatch(t *testing.T) {
	batches := []batch.Batch{
		makeBatch("LOT-A", 10, 1.00, -2*time.Hour),
		makeBatch("LOT-B", 5, 1.50, -1*time.Hour),
	}

	plan, err := Build(id.New(), id.New(), batch.OrderFIFO, batches, types.NewQuantityFromFloat64(15))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, types.NewQuantityFromFloat64(5), plan.Allocations[1].Quantity)
	assert.Equal(t, plan.Requested, plan.Total())
}

func TestBuild_ZeroRequestYieldsEmptyPlan(t *testing.T) {
	batches := []batch.Batch{makeBatch("LOT-A", 10, 1.00, 0)}

	plan, err := Build(id.New(), id.New(), batch.OrderFIFO, batches, 0)
	require.NoError(t, err)
	assert.Empty(t, plan.Allocations)
	assert.True(t, plan.Total().IsZero())
}

func TestBuild_NegativeRequestRejected(t *testing.T) {
	_, err := Build(id.New(), id.New(), batch.OrderFIFO, nil, types.NewQuantityFromFloat64(-1))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestBuild_InsufficientStockAllOrNothing(t *testing.T) {
	productID := id.New()
	locationID := id.New()
	batches := []batch.Batch{
		makeBatch("LOT-A", 10, 1.00, -2*time.Hour),
		makeBatch("LOT-B", 5, 1.50, -1*time.Hour),
	}

	plan, err := Build(productID, locationID, batch.OrderFIFO, batches, types.NewQuantityFromFloat64(16))
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	// No partial plan escapes.
	assert.Empty(t, plan.Allocations)

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, types.NewQuantityFromFloat64(15).String(), appErr.Details["available"])
}

func TestBuild_SkipsExhaustedBatches(t *testing.T) {
	empty := makeBatch("LOT-EMPTY", 0, 1.00, -3*time.Hour)
	batches := []batch.Batch{
		empty,
		makeBatch("LOT-A", 10, 1.00, -2*time.Hour),
	}

	plan, err := Build(id.New(), id.New(), batch.OrderFIFO, batches, types.NewQuantityFromFloat64(10))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "LOT-A", plan.Allocations[0].BatchReference)
}

func TestBuild_Deterministic(t *testing.T) {
	batches := []batch.Batch{
		makeBatch("LOT-A", 10, 1.00, -2*time.Hour),
		makeBatch("LOT-B", 20, 2.00, -1*time.Hour),
	}

	first, err := Build(id.New(), id.New(), batch.OrderFIFO, batches, types.NewQuantityFromFloat64(15))
	require.NoError(t, err)
	second, err := Build(id.New(), id.New(), batch.OrderFIFO, batches, types.NewQuantityFromFloat64(15))
	require.NoError(t, err)

	require.Len(t, second.Allocations, len(first.Allocations))
	for i := range first.Allocations {
		assert.Equal(t, first.Allocations[i].BatchID, second.Allocations[i].BatchID)
		assert.Equal(t, first.Allocations[i].Quantity, second.Allocations[i].Quantity)
	}
}

func TestBuild_CarriesProvenanceIdentity(t *testing.T) {
	expiry := time.Now().AddDate(0, 1, 0)
	b := makeBatch("LOT-A", 10, 1.25, 0)
	b.ExpirationDate = &expiry

	plan, err := Build(id.New(), id.New(), batch.OrderFIFO, []batch.Batch{b}, types.NewQuantityFromFloat64(4))
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)

	identity := plan.Allocations[0].Identity
	assert.Equal(t, "LOT-A", identity.BatchReference)
	assert.True(t, identity.UnitCost.Equal(types.NewMoney(1.25)))
	require.NotNil(t, identity.ExpirationDate)
	assert.True(t, identity.ExpirationDate.Equal(expiry))
}
