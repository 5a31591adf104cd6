package types

import "time"

// RoutingApproach classifies how the decision service picked a connector.
type RoutingApproach string

const (
	RoutingExploitation RoutingApproach = "exploitation"
	RoutingExploration  RoutingApproach = "exploration"
	RoutingDefault      RoutingApproach = "default"
	RoutingUnknown      RoutingApproach = "unknown"
	RoutingNotApplied   RoutingApproach = "N/A"
)

// RunState is the coarse state of a simulation run.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
)

// FallbackPolicy decides which connector is used when the decision service
// does not select one.
type FallbackPolicy string

const (
	FallbackNone        FallbackPolicy = "none"
	FallbackFirstActive FallbackPolicy = "first_active"
	FallbackConnector   FallbackPolicy = "connector"
)

// SessionContext carries the credentials every outbound request needs.
type SessionContext struct {
	APIKey     string `json:"apiKey" mapstructure:"api_key" validate:"required"`
	ProfileID  string `json:"profileId" mapstructure:"profile_id" validate:"required"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id" validate:"required"`
}

// CardProfile is a synthetic card used for simulated payments.
type CardProfile struct {
	Number      string `json:"cardNumber" mapstructure:"number" validate:"required,numeric,min=12,max=19"`
	ExpiryMonth string `json:"cardExpMonth" mapstructure:"expiry_month" validate:"required,len=2,numeric"`
	ExpiryYear  string `json:"cardExpYear" mapstructure:"expiry_year" validate:"required,numeric"`
	HolderName  string `json:"cardHolderName" mapstructure:"holder_name"`
	CVC         string `json:"cardCvc" mapstructure:"cvc" validate:"required,numeric,min=3,max=4"`
}

// SimulationConfig is the immutable per-run configuration snapshot.
type SimulationConfig struct {
	TargetTotal         int                `json:"targetTotal" mapstructure:"target_total" validate:"required,gt=0"`
	BatchSize           int                `json:"batchSize" mapstructure:"batch_size" validate:"required,gt=0"`
	FailurePercent      map[string]float64 `json:"failurePercent" mapstructure:"failure_percent" validate:"omitempty,dive,gte=0,lte=100"`
	ExplorationPercent  float64            `json:"explorationPercent" mapstructure:"exploration_percent" validate:"gte=0,lte=100"`
	BucketSize          int                `json:"bucketSize" mapstructure:"bucket_size" validate:"gte=0"`
	RankingAlgorithm    string             `json:"rankingAlgorithm" mapstructure:"ranking_algorithm" validate:"required"`
	Amount              int64              `json:"amount" mapstructure:"amount" validate:"required,gt=0"`
	Currency            string             `json:"currency" mapstructure:"currency" validate:"required,len=3"`
	SuccessCard         CardProfile        `json:"successCard" mapstructure:"success_card"`
	FailureCard         CardProfile        `json:"failureCard" mapstructure:"failure_card"`
	Fallback            FallbackPolicy     `json:"fallback" mapstructure:"fallback" validate:"omitempty,oneof=none first_active connector"`
	FallbackConnectorID string             `json:"fallbackConnectorId" mapstructure:"fallback_connector_id" validate:"required_if=Fallback connector"`
}

// FailureFor returns the configured failure percentage for a connector, 0 when unset.
func (c SimulationConfig) FailureFor(connectorID string) float64 {
	if c.FailurePercent == nil {
		return 0
	}

	return c.FailurePercent[connectorID]
}

// Clone returns a deep copy so a running engine never shares the map with its caller.
func (c SimulationConfig) Clone() SimulationConfig {
	out := c
	if c.FailurePercent != nil {
		out.FailurePercent = make(map[string]float64, len(c.FailurePercent))
		for k, v := range c.FailurePercent {
			out.FailurePercent[k] = v
		}
	}

	return out
}

// ConnectorState is one known payment connector.
type ConnectorState struct {
	ID      string `json:"connectorId" mapstructure:"connector_id" validate:"required"`
	Name    string `json:"connectorName" mapstructure:"connector_name"`
	Label   string `json:"displayLabel" mapstructure:"display_label"`
	Type    string `json:"connectorType" mapstructure:"connector_type"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// DisplayName prefers the label and falls back to the connector name.
func (c ConnectorState) DisplayName() string {
	if c.Label != "" {
		return c.Label
	}

	return c.Name
}

// PaymentContext describes the simulated payment being routed.
type PaymentContext struct {
	Index      int64  `json:"index"`
	PaymentID  string `json:"paymentId"`
	CustomerID string `json:"customerId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// PaymentOutcome is the result of one completed simulated payment.
// RoutedProcessorID is empty when no connector could be attributed.
type PaymentOutcome struct {
	IsSuccess         bool                 `json:"isSuccess"`
	RoutedProcessorID string               `json:"routedProcessorId,omitempty"`
	Log               *TransactionLogEntry `json:"log,omitempty"`
}

// Attributed reports whether the outcome can be charged to a connector.
func (o PaymentOutcome) Attributed() bool {
	return o.RoutedProcessorID != ""
}

// TransactionLogEntry is one append-only record of a completed payment.
type TransactionLogEntry struct {
	Sequence        int64              `json:"sequence"`
	PaymentID       string             `json:"paymentId"`
	Status          string             `json:"status"`
	ConnectorID     string             `json:"connectorId,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	RoutingApproach RoutingApproach    `json:"routingApproach"`
	Scores          map[string]float64 `json:"scores,omitempty"`
}

// ProcessorStats accumulates outcomes for a single connector.
type ProcessorStats struct {
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

// Total returns the number of attempts charged to the connector.
func (p ProcessorStats) Total() int64 {
	return p.Successful + p.Failed
}

// GlobalStats accumulates outcomes across all connectors.
type GlobalStats struct {
	TotalSuccessful int64 `json:"totalSuccessful"`
	TotalFailed     int64 `json:"totalFailed"`
}

// Total returns the number of completed outcomes.
func (g GlobalStats) Total() int64 {
	return g.TotalSuccessful + g.TotalFailed
}

// TimeSeriesPoint is a per-batch snapshot keyed by connector id.
type TimeSeriesPoint struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
}

// ConnectorMetrics is the per-connector view handed to consumers.
type ConnectorMetrics struct {
	ConnectorID string  `json:"connectorId"`
	Name        string  `json:"name"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"successRate"`
	VolumeShare float64 `json:"volumeShare"`
}

// Incident is a connector with injected failures during a run.
type Incident struct {
	ConnectorID    string  `json:"connectorId"`
	FailurePercent float64 `json:"failurePercent"`
}

// SummaryResult is the outcome of a summary request.
type SummaryResult struct {
	Text        string    `json:"text"`
	Failed      bool      `json:"failed"`
	GeneratedAt time.Time `json:"generatedAt"`
}
