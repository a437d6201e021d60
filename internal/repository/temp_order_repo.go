package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/model"
	"marketplace/pkg/apperr"
)

const tempOrderKeyPrefix = "temporder:"

// TempOrderRepository staging repository backed by redis. The TTL given at
// save time is the only expiry mechanism; expired snapshots simply vanish.
type TempOrderRepository interface {
	// Save staging snapshot with TTL
	Save(ctx context.Context, tempOrder *model.TempOrder, ttl time.Duration) error

	// Get staging snapshot
	Get(ctx context.Context, id string) (*model.TempOrder, error)

	// Delete staging snapshot
	Delete(ctx context.Context, id string) error
}

// tempOrderRepository implementation
type tempOrderRepository struct {
	client *redis.Client
}

// NewTempOrderRepository creates a temp order repository
func NewTempOrderRepository(client *redis.Client) TempOrderRepository {
	return &tempOrderRepository{client: client}
}

// Save saves a staging snapshot with TTL
func (r *tempOrderRepository) Save(ctx context.Context, tempOrder *model.TempOrder, ttl time.Duration) error {
	data, err := json.Marshal(tempOrder)
	if err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "failed to encode temp order")
	}

	key := tempOrderKey(tempOrder.ID)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "failed to save temp order")
	}
	return nil
}

// Get gets a staging snapshot
func (r *tempOrderRepository) Get(ctx context.Context, id string) (*model.TempOrder, error) {
	data, err := r.client.Get(ctx, tempOrderKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.NotFound("temp order not found or expired").WithDetail("temp_order_id", id)
		}
		return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to load temp order")
	}

	var tempOrder model.TempOrder
	if err := json.Unmarshal(data, &tempOrder); err != nil {
		return nil, apperr.Wrap(err, apperr.KindDatabase, "failed to decode temp order")
	}
	return &tempOrder, nil
}

// Delete deletes a staging snapshot
func (r *tempOrderRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, tempOrderKey(id)).Err(); err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "failed to delete temp order")
	}
	return nil
}

func tempOrderKey(id string) string {
	return fmt.Sprintf("%s%s", tempOrderKeyPrefix, id)
}
