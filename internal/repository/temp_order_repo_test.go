package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

func setupTempOrderRepo(t *testing.T) (TempOrderRepository, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewTempOrderRepository(client), mr
}

func sampleTempOrder() *model.TempOrder {
	now := time.Now().Truncate(time.Second)
	return &model.TempOrder{
		ID:      "to-1",
		BuyerID: 42,
		Lines: []model.TempOrderLine{
			{ProductID: 1, SellerID: 10, Quantity: 2, UnitPrice: 1500, LineTotal: 3000},
			{ProductID: 2, SellerID: 20, Quantity: 1, UnitPrice: 500, LineTotal: 500},
		},
		Address: model.Address{
			Line1:      "1 Test St",
			City:       "Springfield",
			State:      "IL",
			PostalCode: "62704",
			Country:    "US",
		},
		TotalPrice: 3500,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestTempOrderRepository_SaveAndGet(t *testing.T) {
	repo, _ := setupTempOrderRepo(t)
	ctx := context.Background()

	original := sampleTempOrder()
	require.NoError(t, repo.Save(ctx, original, time.Hour))

	loaded, err := repo.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.BuyerID, loaded.BuyerID)
	assert.Equal(t, original.TotalPrice, loaded.TotalPrice)
	assert.Len(t, loaded.Lines, 2)
	assert.Equal(t, original.Lines[0].SellerID, loaded.Lines[0].SellerID)
}

func TestTempOrderRepository_Expiry(t *testing.T) {
	repo, mr := setupTempOrderRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTempOrder(), time.Hour))

	// Advance past the TTL; the snapshot vanishes
	mr.FastForward(2 * time.Hour)

	_, err := repo.Get(ctx, "to-1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestTempOrderRepository_Delete(t *testing.T) {
	repo, _ := setupTempOrderRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleTempOrder(), time.Hour))
	require.NoError(t, repo.Delete(ctx, "to-1"))

	_, err := repo.Get(ctx, "to-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	// Deleting an already-gone snapshot is not an error
	assert.NoError(t, repo.Delete(ctx, "to-1"))
}

func TestTempOrderRepository_GetMissing(t *testing.T) {
	repo, _ := setupTempOrderRepo(t)

	_, err := repo.Get(context.Background(), "never-existed")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
