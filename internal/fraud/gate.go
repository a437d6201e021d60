package fraud

import (
	"context"
	"fmt"
	"time"

	"marketplace/pkg/apperr"
	"marketplace/pkg/log"
)

// Store records order attempts and answers sliding-window counts. Backends:
// in-process memory (default, per-instance only) or redis for deployments
// that need the windows shared across instances.
type Store interface {
	// Count returns how many recorded events for key fall inside the window
	// ending now
	Count(ctx context.Context, key string, window time.Duration) (int, error)

	// Record appends an event for key at the given time
	Record(ctx context.Context, key string, at time.Time) error
}

// Config gate thresholds
type Config struct {
	IPWindow   time.Duration
	IPLimit    int
	UserWindow time.Duration
	UserLimit  int
}

// Gate order-velocity gate. Advisory, best-effort protection that runs before
// stock checks and staging; a rejected request mutates nothing downstream.
type Gate struct {
	store Store
	cfg   Config
}

// NewGate creates a velocity gate
func NewGate(store Store, cfg Config) *Gate {
	return &Gate{store: store, cfg: cfg}
}

// CheckAndRecord verifies both windows and records the attempt. An attempt is
// rejected when either window is already at its limit; rejected attempts are
// not recorded.
func (g *Gate) CheckAndRecord(ctx context.Context, ip string, userID uint64) error {
	now := time.Now()
	ipKey := "ip:" + ip
	userKey := fmt.Sprintf("user:%d", userID)

	ipCount, err := g.store.Count(ctx, ipKey, g.cfg.IPWindow)
	if err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "fraud store query failed")
	}
	if ipCount >= g.cfg.IPLimit {
		log.WithFields(map[string]interface{}{
			"ip":    ip,
			"count": ipCount,
			"limit": g.cfg.IPLimit,
		}).Warn("Order velocity limit reached for IP")
		return apperr.RateExceeded("too many orders from this address, try again later").WithDetail("scope", "ip")
	}

	userCount, err := g.store.Count(ctx, userKey, g.cfg.UserWindow)
	if err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "fraud store query failed")
	}
	if userCount >= g.cfg.UserLimit {
		log.WithFields(map[string]interface{}{
			"user_id": userID,
			"count":   userCount,
			"limit":   g.cfg.UserLimit,
		}).Warn("Order velocity limit reached for user")
		return apperr.RateExceeded("too many orders for this account, try again later").WithDetail("scope", "user")
	}

	if err := g.store.Record(ctx, ipKey, now); err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "fraud store record failed")
	}
	if err := g.store.Record(ctx, userKey, now); err != nil {
		return apperr.Wrap(err, apperr.KindDatabase, "fraud store record failed")
	}

	return nil
}
