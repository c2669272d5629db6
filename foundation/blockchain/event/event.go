// Package event defines the closed set of events the simulation pushes to
// its consumer. Every kind carries one fixed payload type.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/chain"
)

// Kind identifies an event.
type Kind string

// Set of event kinds.
const (
	KindSimulationStart  Kind = "simulation_start"
	KindSimulationStop   Kind = "simulation_stop"
	KindSimulationPause  Kind = "simulation_pause"
	KindSimulationResume Kind = "simulation_resume"
	KindBlockFound       Kind = "block_found"
	KindBlockAccepted    Kind = "block_accepted"
	KindBlockStale       Kind = "block_stale"
	KindDifficultyUpdate Kind = "difficulty_update"
	KindLog              Kind = "log"
)

// Sink receives events. An error returned by the sink is logged by the
// simulation and otherwise ignored.
//
// The sink is called while the session holds its event ordering lock. It
// must not call back into the session or simulator, directly or by waiting
// on a goroutine that does, or it deadlocks against the next state change.
// Hand events off without blocking when they need further work.
type Sink func(evt Event) error

// =============================================================================

// Payload is implemented only by the payload types in this package.
type Payload interface {
	payload()
}

// LifecyclePayload is carried by the simulation_* kinds.
type LifecyclePayload struct {
	Miners     int     `json:"miners"`
	HashRate   float64 `json:"hash_rate"`
	Difficulty uint    `json:"difficulty"`
	Height     uint64  `json:"height"`
	Cancelled  int     `json:"cancelled,omitempty"`
}

// BlockPayload is carried by block_found, block_accepted and block_stale.
type BlockPayload struct {
	Block  chain.Block `json:"block"`
	Reason string      `json:"reason,omitempty"`
}

// DifficultyPayload is carried by difficulty_update.
type DifficultyPayload struct {
	Previous    uint    `json:"previous"`
	Current     uint    `json:"current"`
	Trigger     string  `json:"trigger"`
	Probability float64 `json:"probability"`
}

// LogPayload is carried by log.
type LogPayload struct {
	Level string `json:"level"`
}

func (LifecyclePayload) payload()  {}
func (BlockPayload) payload()      {}
func (DifficultyPayload) payload() {}
func (LogPayload) payload()        {}

// =============================================================================

// Event is a single notification from the simulation.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Payload Payload   `json:"payload"`
}

// Lifecycle constructs one of the simulation_* events.
func Lifecycle(kind Kind, t time.Time, msg string, p LifecyclePayload) Event {
	return Event{Kind: kind, Time: t, Message: msg, Payload: p}
}

// BlockFound constructs the event for a candidate that is not yet accepted.
func BlockFound(t time.Time, b chain.Block) Event {
	return Event{
		Kind:    KindBlockFound,
		Time:    t,
		Message: fmt.Sprintf("block #%d found by %s", b.Height, b.MinerID),
		Payload: BlockPayload{Block: b},
	}
}

// BlockAccepted constructs the event for a block that became the tip.
func BlockAccepted(t time.Time, b chain.Block) Event {
	return Event{
		Kind:    KindBlockAccepted,
		Time:    t,
		Message: fmt.Sprintf("block #%d by %s accepted", b.Height, b.MinerID),
		Payload: BlockPayload{Block: b},
	}
}

// BlockStale constructs the event for a block that was rejected or stored
// off the canonical chain.
func BlockStale(t time.Time, b chain.Block, reason string) Event {
	return Event{
		Kind:    KindBlockStale,
		Time:    t,
		Message: fmt.Sprintf("block #%d by %s stale: %s", b.Height, b.MinerID, reason),
		Payload: BlockPayload{Block: b, Reason: reason},
	}
}

// DifficultyUpdate constructs the event for a difficulty change.
func DifficultyUpdate(t time.Time, p DifficultyPayload) Event {
	return Event{
		Kind:    KindDifficultyUpdate,
		Time:    t,
		Message: fmt.Sprintf("difficulty %d -> %d (%s)", p.Previous, p.Current, p.Trigger),
		Payload: p,
	}
}

// Log constructs a free form log event.
func Log(t time.Time, level string, msg string) Event {
	return Event{
		Kind:    KindLog,
		Time:    t,
		Message: msg,
		Payload: LogPayload{Level: level},
	}
}

// UnmarshalJSON decodes an event, choosing the payload type from the kind.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind    Kind            `json:"kind"`
		Time    time.Time       `json:"time"`
		Message string          `json:"message"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var p Payload
	var err error

	switch raw.Kind {
	case KindSimulationStart, KindSimulationStop, KindSimulationPause, KindSimulationResume:
		p, err = decode[LifecyclePayload](raw.Payload)
	case KindBlockFound, KindBlockAccepted, KindBlockStale:
		p, err = decode[BlockPayload](raw.Payload)
	case KindDifficultyUpdate:
		p, err = decode[DifficultyPayload](raw.Payload)
	case KindLog:
		p, err = decode[LogPayload](raw.Payload)
	default:
		return fmt.Errorf("unknown event kind %q", raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("decoding %s payload: %w", raw.Kind, err)
	}

	*e = Event{
		Kind:    raw.Kind,
		Time:    raw.Time,
		Message: raw.Message,
		Payload: p,
	}

	return nil
}

func decode[T Payload](data json.RawMessage) (Payload, error) {
	var p T
	if len(data) == 0 || string(data) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
