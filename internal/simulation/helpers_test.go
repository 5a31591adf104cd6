package simulation

import (
	"context"
	"sync"
	"sync/atomic"

	"routing-simulator/internal/gateway"
	"routing-simulator/internal/payment"
	"routing-simulator/internal/summary"
	"routing-simulator/internal/types"
)

var testSession = types.SessionContext{APIKey: "key", ProfileID: "pro_1", MerchantID: "mer_1"}

func testCard(number string) types.CardProfile {
	return types.CardProfile{Number: number, ExpiryMonth: "10", ExpiryYear: "2030", HolderName: "Sim", CVC: "123"}
}

func testConfig(target, batch int) types.SimulationConfig {
	return types.SimulationConfig{
		TargetTotal:      target,
		BatchSize:        batch,
		RankingAlgorithm: "SR_BASED_ROUTING",
		Amount:           1000,
		Currency:         "USD",
		SuccessCard:      testCard("4242424242424242"),
		FailureCard:      testCard("4000000000000002"),
		Fallback:         types.FallbackNone,
	}
}

type fixedRand float64

func (r fixedRand) Float64() float64 {
	return float64(r)
}

type fakeConnectors struct {
	list    []types.ConnectorState
	loadErr error
}

func (f *fakeConnectors) Load(context.Context, types.SessionContext) error {
	return f.loadErr
}

func (f *fakeConnectors) Enabled() []types.ConnectorState {
	out := make([]types.ConnectorState, 0, len(f.list))
	for _, c := range f.list {
		if c.Enabled {
			out = append(out, c)
		}
	}

	return out
}

func (f *fakeConnectors) Lookup(idOrName string) (types.ConnectorState, bool) {
	for _, c := range f.list {
		if c.ID == idOrName || c.Name == idOrName {
			return c, true
		}
	}

	return types.ConnectorState{}, false
}

func (f *fakeConnectors) Len() int {
	return len(f.list)
}

func twoConnectors() *fakeConnectors {
	return &fakeConnectors{list: []types.ConnectorState{
		{ID: "A", Name: "stripe", Enabled: true},
		{ID: "B", Name: "adyen", Enabled: true},
	}}
}

type fakeDecider struct {
	decide func(req gateway.DecisionRequest) gateway.Decision
	calls  atomic.Int64
}

func (f *fakeDecider) Decide(_ context.Context, req gateway.DecisionRequest) gateway.Decision {
	f.calls.Add(1)

	return f.decide(req)
}

func alwaysDecide(id string) *fakeDecider {
	return &fakeDecider{decide: func(gateway.DecisionRequest) gateway.Decision {
		return gateway.Decision{
			SelectedConnector: id,
			RoutingApproach:   types.RoutingExploitation,
			Scores:            map[string]float64{id: 0.9},
		}
	}}
}

func neverDecide() *fakeDecider {
	return &fakeDecider{decide: func(gateway.DecisionRequest) gateway.Decision {
		return gateway.Decision{RoutingApproach: types.RoutingUnknown}
	}}
}

// fakeSubmitter fails exactly when the failure card would be used.
type fakeSubmitter struct {
	rand     payment.Rand
	err      error
	resolved string

	mu       sync.Mutex
	requests []payment.SubmitRequest
}

func (f *fakeSubmitter) Submit(ctx context.Context, req payment.SubmitRequest) (payment.SubmitResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return payment.SubmitResult{}, err
	}
	if f.err != nil {
		return payment.SubmitResult{}, f.err
	}

	_, failed := payment.SelectCard(f.rand, req.FailurePercent, req.SuccessCard, req.FailureCard)
	status := "succeeded"
	if failed {
		status = "failed"
	}

	return payment.SubmitResult{
		IsSuccess:   !failed,
		RawResponse: payment.Response{Status: status, ConnectorName: f.resolved},
	}, nil
}

func (f *fakeSubmitter) Requests() []payment.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]payment.SubmitRequest(nil), f.requests...)
}

type fakeFeedback struct {
	mu      sync.Mutex
	reports []gateway.Feedback
}

func (f *fakeFeedback) Submit(fb gateway.Feedback) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reports = append(f.reports, fb)

	return true
}

func (f *fakeFeedback) Reports() []gateway.Feedback {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]gateway.Feedback(nil), f.reports...)
}

type fakeSummarizer struct {
	calls atomic.Int64

	mu   sync.Mutex
	last summary.Request
}

func (f *fakeSummarizer) Summarize(_ context.Context, req summary.Request) types.SummaryResult {
	f.calls.Add(1)

	f.mu.Lock()
	f.last = req
	f.mu.Unlock()

	return types.SummaryResult{Text: "all good"}
}

func (f *fakeSummarizer) Last() summary.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.last
}

// gatedRunner completes even indices immediately and holds odd indices until
// released or cancelled.
type gatedRunner struct {
	started chan int64
	release chan struct{}
}

func newGatedRunner(capacity int) *gatedRunner {
	return &gatedRunner{started: make(chan int64, capacity), release: make(chan struct{})}
}

func (g *gatedRunner) Run(ctx context.Context, a Attempt) (types.PaymentOutcome, error) {
	g.started <- a.Index

	if a.Index%2 == 1 {
		select {
		case <-ctx.Done():
			return types.PaymentOutcome{}, ctx.Err()
		case <-g.release:
		}
	}

	return types.PaymentOutcome{
		IsSuccess:         true,
		RoutedProcessorID: "A",
		Log:               &types.TransactionLogEntry{Status: "succeeded", ConnectorID: "A", RoutingApproach: types.RoutingExploitation},
	}, nil
}
