package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"

	"promptpot-backend/internal/config"
	"promptpot-backend/internal/models"
)

var storeLog = logging.Logger("store")

// SnapshotStore persists ledger state between restarts.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *models.LedgerSnapshot) error
}

// EventReader serves the notification history.
type EventReader interface {
	GetEvents(ctx context.Context, limit int64) ([]json.RawMessage, error)
}

type RedisService struct {
	client *redis.Client
	// game namespaces every key of this game instance.
	game string
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{
		client: client,
		game:   cfg.ContractAddress.Hex(),
	}, nil
}

func (s *RedisService) Client() *redis.Client {
	return s.client
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) SaveSnapshot(ctx context.Context, snap *models.LedgerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %v", err)
	}

	key := fmt.Sprintf(KeyLedgerSnapshot, s.game)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %v", err)
	}
	return nil
}

// LoadSnapshot returns nil without error when no game was saved yet.
func (s *RedisService) LoadSnapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	key := fmt.Sprintf(KeyLedgerSnapshot, s.game)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %v", err)
	}

	var snap models.LedgerSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %v", err)
	}
	return &snap, nil
}

func (s *RedisService) DeleteSnapshot(ctx context.Context) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyLedgerSnapshot, s.game)).Err()
}

func (s *RedisService) AppendEvent(ctx context.Context, event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	key := fmt.Sprintf(KeyEventJournal, s.game)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, EventJournalSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %v", err)
	}
	return nil
}

// GetEvents returns the newest events first.
func (s *RedisService) GetEvents(ctx context.Context, limit int64) ([]json.RawMessage, error) {
	if limit <= 0 || limit > EventJournalSize {
		limit = 50
	}

	key := fmt.Sprintf(KeyEventJournal, s.game)
	raw, err := s.client.LRange(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %v", err)
	}

	events := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		events = append(events, json.RawMessage(r))
	}
	return events, nil
}

func (s *RedisService) DeleteEvents(ctx context.Context) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyEventJournal, s.game)).Err()
}

func (s *RedisService) CheckRateLimit(ctx context.Context, addr common.Address, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, addr.Hex(), action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, addr common.Address, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, addr.Hex(), action)).Err()
}

// EventJournal records every notification in redis. Broadcast only queues
// the event; a single writer appends them in the order they were queued.
type EventJournal struct {
	redis     *RedisService
	queue     chan *models.Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewEventJournal(redis *RedisService) *EventJournal {
	j := &EventJournal{
		redis:   redis,
		queue:   make(chan *models.Event, journalBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go j.run()

	return j
}

func (j *EventJournal) Broadcast(event *models.Event) {
	select {
	case j.queue <- event:
	default:
		storeLog.Warnw("event journal behind, event dropped", "event", event.ID, "type", event.Type)
	}
}

// Close writes out whatever is still queued and stops the writer.
func (j *EventJournal) Close() {
	j.closeOnce.Do(func() { close(j.done) })
	<-j.stopped
}

func (j *EventJournal) run() {
	defer close(j.stopped)
	for {
		select {
		case event := <-j.queue:
			j.append(event)
		case <-j.done:
			for {
				select {
				case event := <-j.queue:
					j.append(event)
				default:
					return
				}
			}
		}
	}
}

func (j *EventJournal) append(event *models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if err := j.redis.AppendEvent(ctx, event); err != nil {
		storeLog.Warnw("event not journaled", "event", event.ID, "type", event.Type, "err", err)
	}
}
