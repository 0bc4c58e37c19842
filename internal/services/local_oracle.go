package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"promptpot-backend/internal/models"
)

var oracleLog = logging.Logger("oracle")

// Scorer produces the raw oracle output for one input.
type Scorer interface {
	Score(ctx context.Context, modelID uint64, input string) (string, error)
}

type FixedScorer struct {
	Output string
}

func (s FixedScorer) Score(context.Context, uint64, string) (string, error) {
	return s.Output, nil
}

// PhraseScorer answers 100 when the input contains Phrase and otherwise a
// stable score below 100 derived from the input.
type PhraseScorer struct {
	Phrase string
}

func (s PhraseScorer) Score(_ context.Context, modelID uint64, input string) (string, error) {
	if s.Phrase != "" && strings.Contains(strings.ToLower(input), strings.ToLower(s.Phrase)) {
		return "100", nil
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%s", modelID, input)
	return fmt.Sprintf("%d", h.Sum32()%100), nil
}

type LocalOracleConfig struct {
	Address common.Address
	// Fees per model; models without an entry cost nothing.
	Fees    map[uint64]*big.Int
	Workers int
	Queue   int
	Delay   time.Duration
}

type oracleJob struct {
	id      models.RequestID
	modelID uint64
	input   string
}

// LocalOracle is an in-process oracle. Requests are queued and scored by a
// worker pool which then calls back into the ResultSink as Address.
type LocalOracle struct {
	cfg    LocalOracleConfig
	scorer Scorer

	mu   sync.RWMutex
	sink ResultSink

	jobs   chan oracleJob
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewLocalOracle(cfg LocalOracleConfig, scorer Scorer) *LocalOracle {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	return &LocalOracle{
		cfg:    cfg,
		scorer: scorer,
		jobs:   make(chan oracleJob, cfg.Queue),
		stop:   make(chan struct{}),
	}
}

// Attach sets where results are delivered and starts the workers.
func (o *LocalOracle) Attach(sink ResultSink) {
	o.mu.Lock()
	o.sink = sink
	o.mu.Unlock()

	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.work()
	}
}

func (o *LocalOracle) Address() common.Address {
	return o.cfg.Address
}

func (o *LocalOracle) EstimateCallbackFee(_ context.Context, modelID uint64) (*big.Int, error) {
	if fee, ok := o.cfg.Fees[modelID]; ok {
		return new(big.Int).Set(fee), nil
	}
	return new(big.Int), nil
}

// RequestCallback never blocks: a full queue is reported as an error.
func (o *LocalOracle) RequestCallback(_ context.Context, call OracleCall) (models.RequestID, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return "", errors.New("oracle stopped")
	}

	id := models.GenerateRequestID()
	select {
	case o.jobs <- oracleJob{id: id, modelID: call.ModelID, input: call.Input}:
		oracleLog.Debugw("request queued", "request_id", id, "model", call.ModelID, "gas", call.GasBudget)
		return id, nil
	default:
		return "", errors.Errorf("oracle queue full (%d)", cap(o.jobs))
	}
}

func (o *LocalOracle) work() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case job := <-o.jobs:
			o.handle(job)
		}
	}
}

func (o *LocalOracle) handle(job oracleJob) {
	if o.cfg.Delay > 0 {
		select {
		case <-time.After(o.cfg.Delay):
		case <-o.stop:
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	output, err := o.scorer.Score(ctx, job.modelID, job.input)
	if err != nil {
		// The answer still has to be delivered; an empty output settles as failed.
		oracleLog.Warnw("scorer failed", "request_id", job.id, "err", err)
		output = ""
	}

	o.mu.RLock()
	sink := o.sink
	o.mu.RUnlock()
	if sink == nil {
		oracleLog.Errorw("no result sink attached", "request_id", job.id)
		return
	}
	if _, err := sink.DeliverResult(ctx, o.cfg.Address, job.id, []byte(output)); err != nil {
		oracleLog.Errorw("callback rejected", "request_id", job.id, "err", err)
		return
	}
	oracleLog.Debugw("callback delivered", "request_id", job.id, "output", output)
}

// Close stops the workers. Queued requests are dropped and stay unscored.
func (o *LocalOracle) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.stop)
	o.mu.Unlock()
	o.wg.Wait()
}
