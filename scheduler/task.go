package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/agreement"
)

// Kind tags the payload of a task. The set is closed: adding a task kind
// means adding a constant here and a case in the dispatcher.
type Kind string

const (
	KindInitEvmState     Kind = "init_evm_state"
	KindCollectEvmEvents Kind = "collect_evm_events"
	KindRemoveMintOrder  Kind = "remove_mint_order"
	KindMintBtc          Kind = "mint_btc"
)

// Payload is the tagged variant carried by a task. Minted is set only for
// KindRemoveMintOrder and Burnt only for KindMintBtc.
type Payload struct {
	Kind   Kind                   `json:"kind"`
	Minted *agreement.MintedEvent `json:"minted,omitempty"`
	Burnt  *agreement.BurntEvent  `json:"burnt,omitempty"`
}

func InitEvmState() Payload     { return Payload{Kind: KindInitEvmState} }
func CollectEvmEvents() Payload { return Payload{Kind: KindCollectEvmEvents} }

func RemoveMintOrder(ev *agreement.MintedEvent) Payload {
	return Payload{Kind: KindRemoveMintOrder, Minted: ev}
}

func MintBtc(ev *agreement.BurntEvent) Payload {
	return Payload{Kind: KindMintBtc, Burnt: ev}
}

func (p Payload) Validate() error {
	switch p.Kind {
	case KindInitEvmState, KindCollectEvmEvents:
		if p.Minted != nil || p.Burnt != nil {
			return errors.Newf("%s carries an event", p.Kind)
		}
	case KindRemoveMintOrder:
		if p.Minted == nil || p.Burnt != nil {
			return errors.Newf("%s needs a minted event", p.Kind)
		}
	case KindMintBtc:
		if p.Burnt == nil || p.Minted != nil {
			return errors.Newf("%s needs a burnt event", p.Kind)
		}
	default:
		return errors.Newf("unknown task kind %q", p.Kind)
	}
	return nil
}

type Status string

const (
	Pending        Status = "pending"
	Running        Status = "running"
	Completed      Status = "completed"
	Failed         Status = "failed"
	TimeoutOrPanic Status = "timeout_or_panic"
)

type RetryPolicy struct {
	Infinite   bool
	MaxRetries uint32
}

func Infinite() RetryPolicy { return RetryPolicy{Infinite: true} }

// MaxRetries allows n retries, so at most n+1 executions.
func MaxRetries(n uint32) RetryPolicy { return RetryPolicy{MaxRetries: n} }

// CanRetry tells whether a task that has failed `failures` times may run again.
func (r RetryPolicy) CanRetry(failures uint32) bool {
	return r.Infinite || failures <= r.MaxRetries
}

func (r RetryPolicy) String() string {
	if r.Infinite {
		return "infinite"
	}
	return fmt.Sprintf("max_retries(%d)", r.MaxRetries)
}

// upper bound of any backoff delay
const maxBackoff = 24 * time.Hour

type BackoffPolicy struct {
	Exponential bool
	Secs        uint32
	Multiplier  uint32
}

func Fixed(secs uint32) BackoffPolicy { return BackoffPolicy{Secs: secs} }

func Exponential(baseSecs, multiplier uint32) BackoffPolicy {
	return BackoffPolicy{Exponential: true, Secs: baseSecs, Multiplier: multiplier}
}

// Delay is the wait before the next execution after `failures` failures.
// Exponential backoff waits base, base*m, base*m^2, ...
func (b BackoffPolicy) Delay(failures uint32) time.Duration {
	secs := float64(b.Secs)
	if b.Exponential && failures > 1 {
		secs *= math.Pow(float64(b.Multiplier), float64(failures-1))
	}
	if secs >= maxBackoff.Seconds() {
		return maxBackoff
	}
	return time.Duration(secs * float64(time.Second))
}

func (b BackoffPolicy) String() string {
	if b.Exponential {
		return fmt.Sprintf("exponential(%ds, x%d)", b.Secs, b.Multiplier)
	}
	return fmt.Sprintf("fixed(%ds)", b.Secs)
}

// Task is a durable unit of work. The zero policies mean a single attempt
// with no backoff.
type Task struct {
	ID          uint32
	Payload     Payload
	Status      Status
	Failures    uint32
	Retry       RetryPolicy
	Backoff     BackoffPolicy
	ScheduledAt time.Time // not executed before
	LastError   string
}

func NewTask(p Payload) *Task {
	return &Task{Payload: p, Status: Pending}
}

func (t *Task) WithRetry(r RetryPolicy) *Task {
	t.Retry = r
	return t
}

func (t *Task) WithBackoff(b BackoffPolicy) *Task {
	t.Backoff = b
	return t
}

// After delays the first execution.
func (t *Task) After(at time.Time) *Task {
	t.ScheduledAt = at
	return t
}

func (t *Task) String() string {
	return fmt.Sprintf("#%d %s (%s, %s, failures=%d)", t.ID, t.Payload.Kind, t.Retry, t.Backoff, t.Failures)
}
