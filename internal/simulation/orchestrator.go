package simulation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"routing-simulator/internal/gateway"
	"routing-simulator/internal/payment"
	"routing-simulator/internal/types"
)

// Decider picks a connector for a payment.
type Decider interface {
	Decide(ctx context.Context, req gateway.DecisionRequest) gateway.Decision
}

// Submitter sends a simulated payment.
type Submitter interface {
	Submit(ctx context.Context, req payment.SubmitRequest) (payment.SubmitResult, error)
}

// FeedbackSink accepts feedback without blocking.
type FeedbackSink interface {
	Submit(fb gateway.Feedback) bool
}

// ConnectorSource is the read side of the connector registry plus the lazy loader.
type ConnectorSource interface {
	Load(ctx context.Context, session types.SessionContext) error
	Enabled() []types.ConnectorState
	Lookup(idOrName string) (types.ConnectorState, bool)
	Len() int
}

// Attempt is one unit of work handed to a Runner.
type Attempt struct {
	Session  types.SessionContext
	Config   types.SimulationConfig
	Eligible []types.ConnectorState
	Index    int64
}

// Runner executes a single simulated payment.
type Runner interface {
	Run(ctx context.Context, attempt Attempt) (types.PaymentOutcome, error)
}

// Orchestrator runs decide, submit and report for one payment.
type Orchestrator struct {
	decider    Decider
	submitter  Submitter
	feedback   FeedbackSink
	connectors ConnectorSource
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrchestrator(decider Decider, submitter Submitter, feedback FeedbackSink, connectors ConnectorSource, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		decider:    decider,
		submitter:  submitter,
		feedback:   feedback,
		connectors: connectors,
		logger:     logger,
		now:        time.Now,
	}
}

func newPaymentContext(cfg types.SimulationConfig, index int64) types.PaymentContext {
	return types.PaymentContext{
		Index:      index,
		PaymentID:  uuid.NewString(),
		CustomerID: fmt.Sprintf("sim_cust_%d", index),
		Amount:     cfg.Amount,
		Currency:   cfg.Currency,
	}
}

// Run only returns an error on cancellation; every other failure becomes a
// failed, unattributed outcome.
func (o *Orchestrator) Run(ctx context.Context, attempt Attempt) (types.PaymentOutcome, error) {
	pc := newPaymentContext(attempt.Config, attempt.Index)

	decision := o.decider.Decide(ctx, gateway.DecisionRequest{
		Session:          attempt.Session,
		Eligible:         attempt.Eligible,
		RankingAlgorithm: attempt.Config.RankingAlgorithm,
		Payment:          pc,
	})
	if err := ctx.Err(); err != nil {
		return types.PaymentOutcome{}, err
	}

	connector, approach := o.route(attempt, decision)

	req := payment.SubmitRequest{
		Session:     attempt.Session,
		SuccessCard: attempt.Config.SuccessCard,
		FailureCard: attempt.Config.FailureCard,
		Payment:     pc,
	}
	if connector != nil {
		req.Connector = connector
		req.FailurePercent = attempt.Config.FailureFor(connector.ID)
	}

	result, err := o.submitter.Submit(ctx, req)
	if err != nil {
		if IsCancellation(err) || ctx.Err() != nil {
			return types.PaymentOutcome{}, context.Canceled
		}

		o.logger.Warn("payment submission failed", zap.String("payment_id", pc.PaymentID), zap.Error(err))

		return FailedOutcome(pc.PaymentID, approach, decision.Scores, o.now()), nil
	}

	resolved := ""
	if connector != nil {
		resolved = connector.ID
	} else if ref := result.RawResponse.ResolvedConnector(); ref != "" {
		if c, ok := o.connectors.Lookup(ref); ok {
			resolved = c.ID
		}
	}

	if resolved != "" && o.feedback != nil {
		o.feedback.Submit(gateway.NewFeedback(attempt.Session, resolved, pc.PaymentID, result.IsSuccess))
	}

	status := strings.ToLower(result.RawResponse.Status)
	if status == "" {
		status = statusText(result.IsSuccess)
	}

	return types.PaymentOutcome{
		IsSuccess:         result.IsSuccess,
		RoutedProcessorID: resolved,
		Log: &types.TransactionLogEntry{
			PaymentID:       pc.PaymentID,
			Status:          status,
			ConnectorID:     resolved,
			Timestamp:       o.now(),
			RoutingApproach: approach,
			Scores:          decision.Scores,
		},
	}, nil
}

// route applies the decision or the configured fallback.
func (o *Orchestrator) route(attempt Attempt, decision gateway.Decision) (*types.ConnectorState, types.RoutingApproach) {
	if decision.Decided() {
		for _, c := range attempt.Eligible {
			if c.ID == decision.SelectedConnector {
				c := c
				return &c, decision.RoutingApproach
			}
		}
		if c, ok := o.connectors.Lookup(decision.SelectedConnector); ok {
			return &c, decision.RoutingApproach
		}
	}

	switch attempt.Config.Fallback {
	case types.FallbackFirstActive:
		if len(attempt.Eligible) > 0 {
			c := attempt.Eligible[0]
			return &c, types.RoutingNotApplied
		}
	case types.FallbackConnector:
		if c, ok := o.connectors.Lookup(attempt.Config.FallbackConnectorID); ok {
			return &c, types.RoutingNotApplied
		}
	}

	approach := decision.RoutingApproach
	if approach == "" {
		approach = types.RoutingUnknown
	}

	return nil, approach
}

func statusText(success bool) string {
	if success {
		return "succeeded"
	}

	return "failed"
}

// FailedOutcome is the outcome recorded when a payment could not be completed normally.
func FailedOutcome(paymentID string, approach types.RoutingApproach, scores map[string]float64, at time.Time) types.PaymentOutcome {
	if approach == "" {
		approach = types.RoutingUnknown
	}

	return types.PaymentOutcome{
		Log: &types.TransactionLogEntry{
			PaymentID:       paymentID,
			Status:          "error",
			Timestamp:       at,
			RoutingApproach: approach,
			Scores:          scores,
		},
	}
}
