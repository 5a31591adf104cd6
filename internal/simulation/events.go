package simulation

import (
	"routing-simulator/internal/types"
)

type EventType string

const (
	EventState   EventType = "state"
	EventTick    EventType = "tick"
	EventSummary EventType = "summary"
)

// Event is published to observers after every state change, committed tick
// and finished summary.
type Event struct {
	Type     EventType                   `json:"type"`
	RunID    string                      `json:"runId"`
	State    types.RunState              `json:"state"`
	Snapshot *Snapshot                   `json:"snapshot,omitempty"`
	Entries  []types.TransactionLogEntry `json:"entries,omitempty"`
	Outcomes []types.PaymentOutcome      `json:"-"`
	Summary  *types.SummaryResult        `json:"summary,omitempty"`
}

// Observer receives engine events. Observe must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Snapshot is a consistent view of a run.
type Snapshot struct {
	RunID             string                   `json:"runId"`
	State             types.RunState           `json:"state"`
	Stopping          bool                     `json:"stopping"`
	InFlight          bool                     `json:"inFlight"`
	Target            int                      `json:"target"`
	Processed         int64                    `json:"processed"`
	Config            types.SimulationConfig   `json:"config"`
	Connectors        []types.ConnectorMetrics `json:"connectors"`
	Global            types.GlobalStats        `json:"global"`
	OverallSR         float64                  `json:"overallSR"`
	SuccessRateSeries []types.TimeSeriesPoint  `json:"successRateSeries"`
	VolumeSeries      []types.TimeSeriesPoint  `json:"volumeSeries"`
	Summary           *types.SummaryResult     `json:"summary,omitempty"`
}
