package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStoreOp EventType = "store_op"
	EventOutcome EventType = "outcome"
)

// Outcome classifies how a request left its flow.
type Outcome string

const (
	OutcomeComplete Outcome = "complete" // own record finished, destroyed if persisted
	OutcomeSurvive  Outcome = "survive"  // record handed to the returnTo target
	OutcomeContinue Outcome = "continue" // flow still in progress (render, explicit redirect, pass-through)
	OutcomeYield    Outcome = "yield"    // child record created for a sub-flow
	OutcomeResume   Outcome = "resume"   // child consumed, parent resumed
	OutcomeRestore  Outcome = "restore"  // preserved record restored after an external round-trip
	OutcomeError    Outcome = "error"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// StoreEvent is emitted after every StateStore call made by the dispatcher.
type StoreEvent struct {
	EventBase
	Op     string `json:"op"`
	Handle string `json:"handle,omitempty"`
	Err    error  `json:"-"`
}

// OutcomeEvent is emitted once per dispatched request.
type OutcomeEvent struct {
	EventBase
	Flow     string        `json:"flow"`
	Handle   string        `json:"handle,omitempty"`
	Outcome  Outcome       `json:"outcome"`
	Location string        `json:"location,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Hooks defines callbacks for dispatcher observability.
type Hooks struct {
	OnStoreOp func(context.Context, *StoreEvent)
	OnOutcome func(context.Context, *OutcomeEvent)
}
