package models

import (
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MaxScore     = 100
	WinningScore = 100

	// SentinelScore is reported for an oracle answer that did not decode.
	SentinelScore = 200
)

// RequestID is the opaque correlation handle the oracle allocates.
type RequestID string

type ScoreState uint8

const (
	ScorePending ScoreState = iota
	ScoreSettled
	ScoreDecodeFailed
)

// Score is the outcome of an oracle round-trip. The zero value is pending.
type Score struct {
	State ScoreState
	Value uint8
}

// ParseScore matches output exactly against "0".."100". Anything else,
// including surrounding whitespace or leading zeros, is a decode failure.
func ParseScore(output []byte) Score {
	s := string(output)
	for i := 0; i <= MaxScore; i++ {
		if s == strconv.Itoa(i) {
			return Score{State: ScoreSettled, Value: uint8(i)}
		}
	}
	return Score{State: ScoreDecodeFailed}
}

func (s Score) Pending() bool {
	return s.State == ScorePending
}

// Number is the numeric score, SentinelScore for a decode failure.
func (s Score) Number() (int, bool) {
	switch s.State {
	case ScoreSettled:
		return int(s.Value), true
	case ScoreDecodeFailed:
		return SentinelScore, true
	default:
		return 0, false
	}
}

func (s Score) MarshalJSON() ([]byte, error) {
	n, ok := s.Number()
	if !ok {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(n)), nil
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var n *int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	switch {
	case n == nil:
		*s = Score{}
	case *n >= 0 && *n <= MaxScore:
		*s = Score{State: ScoreSettled, Value: uint8(*n)}
	default:
		*s = Score{State: ScoreDecodeFailed}
	}
	return nil
}

// Attempt is one paid submission. Score, Won and Failed are written once by
// the oracle callback; Refunded is written once by a refund claim.
type Attempt struct {
	Player      common.Address `json:"player"`
	Sequence    uint64         `json:"sequence"`
	RequestID   RequestID      `json:"request_id"`
	Fee         *big.Int       `json:"fee"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Score       Score          `json:"score"`
	Won         bool           `json:"won"`
	Failed      bool           `json:"failed"`
	Refunded    bool           `json:"refunded"`
}

func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	out := *a
	out.Fee = cloneInt(a.Fee)
	return &out
}

// OracleRequest correlates a RequestID with the attempt that issued it.
type OracleRequest struct {
	ID        RequestID      `json:"id"`
	Player    common.Address `json:"player"`
	Sequence  uint64         `json:"sequence"`
	ModelID   uint64         `json:"model_id"`
	Prompt    string         `json:"prompt"`
	Input     string         `json:"input"`
	Output    []byte         `json:"output,omitempty"`
	Fulfilled bool           `json:"fulfilled"`
}

func (r *OracleRequest) Clone() *OracleRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.Output != nil {
		out.Output = append([]byte(nil), r.Output...)
	}
	return &out
}
