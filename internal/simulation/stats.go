package simulation

import (
	"sort"
	"time"

	"routing-simulator/internal/types"
)

// Stats is the accumulated statistics of one run. Values are treated as
// immutable: every update returns a fresh copy.
type Stats struct {
	Processors map[string]types.ProcessorStats `json:"processors"`
	Global     types.GlobalStats               `json:"global"`
}

// NewStats returns empty statistics.
func NewStats() Stats {
	return Stats{Processors: map[string]types.ProcessorStats{}}
}

// Clone returns a deep copy.
func (s Stats) Clone() Stats {
	out := Stats{Processors: make(map[string]types.ProcessorStats, len(s.Processors)), Global: s.Global}
	for id, p := range s.Processors {
		out.Processors[id] = p
	}

	return out
}

func applyInPlace(s *Stats, o types.PaymentOutcome) {
	if o.IsSuccess {
		s.Global.TotalSuccessful++
	} else {
		s.Global.TotalFailed++
	}

	if !o.Attributed() {
		return
	}

	p := s.Processors[o.RoutedProcessorID]
	if o.IsSuccess {
		p.Successful++
	} else {
		p.Failed++
	}
	s.Processors[o.RoutedProcessorID] = p
}

// ApplyOutcome counts one completed outcome. Global counters always move,
// the connector counters only when the outcome is attributed.
func ApplyOutcome(s Stats, o types.PaymentOutcome) Stats {
	out := s.Clone()
	applyInPlace(&out, o)

	return out
}

// ApplyOutcomes counts a whole batch with a single copy.
func ApplyOutcomes(s Stats, outcomes []types.PaymentOutcome) Stats {
	out := s.Clone()
	for _, o := range outcomes {
		applyInPlace(&out, o)
	}

	return out
}

// DeriveVolumeShare returns each connector's percentage of attributed attempts.
func DeriveVolumeShare(processors map[string]types.ProcessorStats) map[string]float64 {
	var sum int64
	for _, p := range processors {
		sum += p.Total()
	}

	share := make(map[string]float64, len(processors))
	for id, p := range processors {
		if sum == 0 {
			share[id] = 0
			continue
		}
		share[id] = float64(p.Total()) / float64(sum) * 100
	}

	return share
}

// DeriveOverallSR returns the global success rate in percent, 0 without attempts.
func DeriveOverallSR(g types.GlobalStats) float64 {
	return percent(g.TotalSuccessful, g.Total())
}

// DeriveSuccessRate returns a connector's success rate in percent.
func DeriveSuccessRate(p types.ProcessorStats) float64 {
	return percent(p.Successful, p.Total())
}

func percent(a, b int64) float64 {
	if b == 0 {
		return 0
	}

	return float64(a) / float64(b) * 100
}

// DeriveConnectorMetrics flattens the per-connector stats, sorted by connector id.
// name resolves display names and may be nil.
func DeriveConnectorMetrics(s Stats, name func(id string) string) []types.ConnectorMetrics {
	share := DeriveVolumeShare(s.Processors)

	ids := make([]string, 0, len(s.Processors))
	for id := range s.Processors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]types.ConnectorMetrics, 0, len(ids))
	for _, id := range ids {
		p := s.Processors[id]
		m := types.ConnectorMetrics{
			ConnectorID: id,
			Name:        id,
			Successful:  p.Successful,
			Failed:      p.Failed,
			SuccessRate: DeriveSuccessRate(p),
			VolumeShare: share[id],
		}
		if name != nil {
			if n := name(id); n != "" {
				m.Name = n
			}
		}
		out = append(out, m)
	}

	return out
}

// DeriveSeriesPoints builds the success rate and volume share points for one batch.
func DeriveSeriesPoints(at time.Time, s Stats) (successRate, volume types.TimeSeriesPoint) {
	successRate = types.TimeSeriesPoint{Time: at, Values: make(map[string]float64, len(s.Processors))}
	for id, p := range s.Processors {
		successRate.Values[id] = DeriveSuccessRate(p)
	}

	volume = types.TimeSeriesPoint{Time: at, Values: DeriveVolumeShare(s.Processors)}

	return successRate, volume
}

// DeriveIncidents lists the connectors configured to fail, sorted by connector id.
func DeriveIncidents(cfg types.SimulationConfig) []types.Incident {
	out := make([]types.Incident, 0, len(cfg.FailurePercent))
	for id, pct := range cfg.FailurePercent {
		if pct <= 0 {
			continue
		}
		out = append(out, types.Incident{ConnectorID: id, FailurePercent: pct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })

	return out
}
