package host

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/frontend/handlers"
	"github.com/cory-johannsen/foundation/internal/scheduler"
	"github.com/cory-johannsen/foundation/internal/storage/postgres"
)

// PlayerStore is the part of the player data repository the tracker uses.
type PlayerStore interface {
	PlayerLookup
	RecordJoin(ctx context.Context, id uuid.UUID, name string) (postgres.PlayerData, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Tracker records player joins and quits in a PlayerStore. It implements
// handlers.PlayerListener.
type Tracker struct {
	store  PlayerStore
	logger *zap.Logger
}

// NewTracker creates a Tracker.
//
// Precondition: store and logger must be non-nil.
func NewTracker(store PlayerStore, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// PlayerJoined records the join of p.
func (t *Tracker) PlayerJoined(ctx context.Context, p *handlers.Player) error {
	if !p.IsPlayer() {
		return nil
	}
	d, err := t.store.RecordJoin(ctx, p.UniqueID(), p.Name())
	if err != nil {
		return err
	}
	t.logger.Debug("player data recorded",
		zap.String("player", p.Name()),
		zap.Stringer("id", p.UniqueID()),
		zap.Any("joins", d.Data[postgres.KeyJoins]),
	)
	return nil
}

// PlayerQuit marks p as last seen now.
func (t *Tracker) PlayerQuit(ctx context.Context, p *handlers.Player) error {
	if !p.IsPlayer() {
		return nil
	}
	return t.store.Touch(ctx, p.UniqueID())
}

// SchedulePurge removes data older than olderThan every period. Each purge
// runs off the primary goroutine.
//
// Precondition: period and olderThan must be positive.
// Postcondition: Returns the repeating task; cancel it to stop purging.
func (t *Tracker) SchedulePurge(sched *scheduler.Scheduler, period, olderThan time.Duration) *scheduler.Task {
	return sched.RunTimer(period, period, func() {
		sched.RunAsync(func() { t.Purge(context.Background(), olderThan) })
	})
}

// Purge removes data older than olderThan and logs the result.
func (t *Tracker) Purge(ctx context.Context, olderThan time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := t.store.Purge(ctx, olderThan)
	if err != nil {
		t.logger.Error("purging player data", zap.Error(err))
		return
	}
	if n > 0 {
		t.logger.Info("purged player data",
			zap.Int64("players", n),
			zap.Duration("older_than", olderThan),
		)
	}
}
