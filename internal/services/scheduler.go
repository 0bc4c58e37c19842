package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	logging "github.com/ipfs/go-log/v2"

	"promptpot-backend/internal/models"
)

var schedLog = logging.Logger("scheduler")

type SchedulerConfig struct {
	DeadlineCheck time.Duration
	StateSync     time.Duration
}

// Scheduler runs the periodic jobs around a game: announcing the close of
// the window and syncing ledger snapshots to the store.
type Scheduler struct {
	sched  gocron.Scheduler
	ledger *GameLedger
	events Broadcaster
	store  SnapshotStore
	now    func() time.Time

	mu        sync.Mutex
	announced bool
}

func NewScheduler(ledger *GameLedger, events Broadcaster, store SnapshotStore, cfg SchedulerConfig) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = nopBroadcaster{}
	}
	s := &Scheduler{
		sched:  sched,
		ledger: ledger,
		events: events,
		store:  store,
		now:    time.Now,
	}

	if cfg.DeadlineCheck > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.DeadlineCheck),
			gocron.NewTask(func() { s.CheckDeadline() }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}
	if cfg.StateSync > 0 && store != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.StateSync),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.StateSync)
				defer cancel()
				s.SyncState(ctx)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// CheckDeadline announces GAME_CLOSED once the window has elapsed. It
// reports whether the announcement happened on this call.
func (s *Scheduler) CheckDeadline() bool {
	if !s.ledger.Closed() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announced {
		return false
	}
	s.announced = true

	stats := s.ledger.Stats()
	pending := len(s.ledger.PendingRequests())
	schedLog.Infow("game window closed",
		"pool", stats.Pool.String(), "attempts", stats.TotalAttempts,
		"winner", stats.Winner != nil, "pending_requests", pending)
	s.events.Broadcast(models.NewEvent(models.EventGameClosed, s.now(), models.GameClosedData{
		Pool:            models.NewAmount(stats.Pool),
		Winner:          stats.Winner,
		PendingRequests: pending,
	}))
	return true
}

func (s *Scheduler) SyncState(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(ctx, s.ledger.Snapshot()); err != nil {
		schedLog.Warnw("state sync failed", "err", err)
	}
}
