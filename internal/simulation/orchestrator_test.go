package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"routing-simulator/internal/gateway"
	"routing-simulator/internal/types"
)

func newTestOrchestrator(decider Decider, sub *fakeSubmitter, fb *fakeFeedback) *Orchestrator {
	o := NewOrchestrator(decider, sub, fb, twoConnectors(), zap.NewNop())
	o.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return o
}

func testAttempt(cfg types.SimulationConfig) Attempt {
	return Attempt{Session: testSession, Config: cfg, Eligible: twoConnectors().Enabled(), Index: 7}
}

func TestOrchestratorRoutesToDecidedConnector(t *testing.T) {
	decider := alwaysDecide("B")
	sub := &fakeSubmitter{rand: fixedRand(0.99)}
	fb := &fakeFeedback{}
	o := newTestOrchestrator(decider, sub, fb)

	cfg := testConfig(1, 1)
	cfg.FailurePercent = map[string]float64{"B": 50}

	outcome, err := o.Run(context.Background(), testAttempt(cfg))
	require.NoError(t, err)

	assert.True(t, outcome.IsSuccess)
	assert.Equal(t, "B", outcome.RoutedProcessorID)
	require.NotNil(t, outcome.Log)
	assert.Equal(t, "succeeded", outcome.Log.Status)
	assert.Equal(t, types.RoutingExploitation, outcome.Log.RoutingApproach)
	assert.Equal(t, map[string]float64{"B": 0.9}, outcome.Log.Scores)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), outcome.Log.Timestamp)

	reqs := sub.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Connector)
	assert.Equal(t, "B", reqs[0].Connector.ID)
	assert.Equal(t, 50.0, reqs[0].FailurePercent)
	assert.Equal(t, "sim_cust_7", reqs[0].Payment.CustomerID)
	assert.Equal(t, int64(1000), reqs[0].Payment.Amount)
	assert.Equal(t, outcome.Log.PaymentID, reqs[0].Payment.PaymentID)

	reports := fb.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "B", reports[0].ConnectorID)
	assert.Equal(t, gateway.StatusCharged, reports[0].Status)
	assert.Equal(t, outcome.Log.PaymentID, reports[0].PaymentID)
}

func TestOrchestratorPassesEligibleToDecider(t *testing.T) {
	var seen gateway.DecisionRequest
	decider := &fakeDecider{decide: func(req gateway.DecisionRequest) gateway.Decision {
		seen = req
		return gateway.Decision{RoutingApproach: types.RoutingUnknown}
	}}
	o := newTestOrchestrator(decider, &fakeSubmitter{rand: fixedRand(0)}, &fakeFeedback{})

	_, err := o.Run(context.Background(), testAttempt(testConfig(1, 1)))
	require.NoError(t, err)

	assert.Equal(t, testSession, seen.Session)
	assert.Equal(t, "SR_BASED_ROUTING", seen.RankingAlgorithm)
	assert.Len(t, seen.Eligible, 2)
	assert.Equal(t, int64(7), seen.Payment.Index)
}

func TestOrchestratorFallbackConnector(t *testing.T) {
	o := newTestOrchestrator(neverDecide(), &fakeSubmitter{rand: fixedRand(0)}, &fakeFeedback{})

	cfg := testConfig(1, 1)
	cfg.Fallback = types.FallbackConnector
	cfg.FallbackConnectorID = "B"

	outcome, err := o.Run(context.Background(), testAttempt(cfg))
	require.NoError(t, err)

	assert.Equal(t, "B", outcome.RoutedProcessorID)
	assert.Equal(t, types.RoutingNotApplied, outcome.Log.RoutingApproach)
}

func TestOrchestratorUnroutedPaymentResolvedFromResponse(t *testing.T) {
	sub := &fakeSubmitter{rand: fixedRand(0), resolved: "adyen"}
	fb := &fakeFeedback{}
	o := newTestOrchestrator(neverDecide(), sub, fb)

	outcome, err := o.Run(context.Background(), testAttempt(testConfig(1, 1)))
	require.NoError(t, err)

	assert.Nil(t, sub.Requests()[0].Connector)
	assert.Equal(t, 0.0, sub.Requests()[0].FailurePercent)
	assert.Equal(t, "B", outcome.RoutedProcessorID)
	assert.Equal(t, types.RoutingUnknown, outcome.Log.RoutingApproach)
	assert.Len(t, fb.Reports(), 1)
}

func TestOrchestratorCancelledBeforeSubmit(t *testing.T) {
	sub := &fakeSubmitter{rand: fixedRand(0)}
	fb := &fakeFeedback{}
	o := newTestOrchestrator(alwaysDecide("A"), sub, fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, testAttempt(testConfig(1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(err))
	assert.Empty(t, sub.Requests())
	assert.Empty(t, fb.Reports())
}

func TestFailedOutcome(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	outcome := FailedOutcome("pay_1", "", nil, at)

	assert.False(t, outcome.IsSuccess)
	assert.False(t, outcome.Attributed())
	assert.Equal(t, "error", outcome.Log.Status)
	assert.Equal(t, types.RoutingUnknown, outcome.Log.RoutingApproach)
	assert.Equal(t, at, outcome.Log.Timestamp)
}
