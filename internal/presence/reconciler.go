package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/hangout/internal/model"
)

// StatusStore is the slice of repository.Store the reconciler needs.
type StatusStore interface {
	ListUsersByStatus(ctx context.Context, status model.Status) ([]model.User, error)
	ResetIfBound(ctx context.Context, userID int64, roomName string) (bool, error)
}

// RoomDeleter removes an orphaned room at the provider.
type RoomDeleter interface {
	DeleteRoom(ctx context.Context, roomName string) error
}

// CallReleaser drops the room binding held by a user's live sessions.
type CallReleaser interface {
	LeaveCall(userID int64)
}

// Sweeper is anything with idle entries to drop on each tick, such as the
// session manager.
type Sweeper interface {
	Sweep() int
}

// ReconcilerConfig controls the background loop.
type ReconcilerConfig struct {
	Interval time.Duration
	// Timeout bounds a single pass. Defaults to Interval.
	Timeout time.Duration
}

// Reconciler periodically resets busy users whose heartbeat has lapsed.
//
// It runs as a single background goroutine with the same lifecycle as any
// long-lived worker here: Start is idempotent, Stop closes done and waits.
type Reconciler struct {
	store     StatusStore
	rooms     RoomDeleter
	beats     Heartbeats
	release   CallReleaser
	sweepers  []Sweeper
	config    ReconcilerConfig
	logger    *slog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewReconciler wires the loop. rooms may be nil to skip room deletion and
// release may be nil when no sessions hold room bindings.
func NewReconciler(store StatusStore, rooms RoomDeleter, beats Heartbeats, release CallReleaser, cfg ReconcilerConfig, logger *slog.Logger, sweepers ...Sweeper) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	return &Reconciler{
		store:    store,
		rooms:    rooms,
		beats:    beats,
		release:  release,
		sweepers: sweepers,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the loop. Calling it again does nothing.
func (r *Reconciler) Start() {
	r.startOnce.Do(func() {
		r.logger.Info("starting presence reconciler", slog.Duration("interval", r.config.Interval))
		r.wg.Add(1)
		go r.loop()
	})
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("shutting down presence reconciler")
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("presence reconcile failed", slog.String("error", err.Error()))
			}
			cancel()
		}
	}
}

// RunOnce performs a single pass and returns how many users were reset.
//
// A user is reset when the store says busy but no heartbeat is alive. The
// reset only applies while the user is still bound to the room that was
// read, so a call started since the listing is left alone. The room delete
// is best effort afterwards and skipped while another busy user in the same
// room is still alive.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	for _, s := range r.sweepers {
		if n := s.Sweep(); n > 0 {
			r.logger.Info("dropped idle sessions", slog.Int("count", n))
		}
	}

	busy, err := r.store.ListUsersByStatus(ctx, model.StatusBusy)
	if err != nil {
		return 0, err
	}
	if len(busy) == 0 {
		return 0, nil
	}

	ids := make([]int64, len(busy))
	for i, u := range busy {
		ids[i] = u.ID
	}
	alive, err := r.beats.AliveMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	// A room stays up while anyone in it is still beating.
	occupied := make(map[string]bool)
	for _, u := range busy {
		if alive[u.ID] && u.ActiveRoom != "" {
			occupied[u.ActiveRoom] = true
		}
	}

	reset := 0
	for _, u := range busy {
		if alive[u.ID] {
			continue
		}

		changed, err := r.store.ResetIfBound(ctx, u.ID, u.ActiveRoom)
		if err != nil {
			r.logger.Error("failed to reset stale busy user",
				slog.Int64("userID", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !changed {
			r.logger.Debug("busy user moved on before reset",
				slog.Int64("userID", u.ID),
				slog.String("room", u.ActiveRoom),
			)
			continue
		}
		reset++
		if r.release != nil {
			r.release.LeaveCall(u.ID)
		}
		r.logger.Info("reset stale busy user",
			slog.Int64("userID", u.ID),
			slog.String("room", u.ActiveRoom),
		)

		if r.rooms != nil && u.ActiveRoom != "" && !occupied[u.ActiveRoom] {
			occupied[u.ActiveRoom] = true // delete once per room
			if err := r.rooms.DeleteRoom(ctx, u.ActiveRoom); err != nil {
				r.logger.Warn("failed to delete orphaned room",
					slog.String("room", u.ActiveRoom),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return reset, nil
}
