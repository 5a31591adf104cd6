package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"routing-simulator/internal/helpers/request"
	"routing-simulator/internal/types"
)

const (
	StatusCharged = "CHARGED"
	StatusFailure = "FAILURE"
)

// Feedback reports the outcome of a routed payment.
type Feedback struct {
	Session     types.SessionContext `json:"-"`
	ConnectorID string               `json:"connectorId"`
	Status      string               `json:"status"`
	PaymentID   string               `json:"paymentId"`
}

// NewFeedback builds a feedback record from a payment result.
func NewFeedback(session types.SessionContext, connectorID, paymentID string, success bool) Feedback {
	status := StatusFailure
	if success {
		status = StatusCharged
	}

	return Feedback{Session: session, ConnectorID: connectorID, Status: status, PaymentID: paymentID}
}

// FeedbackClient posts outcomes to the decision service.
type FeedbackClient struct {
	url    string
	client *http.Client
}

func NewFeedbackClient(url string, client *http.Client) *FeedbackClient {
	return &FeedbackClient{url: url, client: client}
}

// Report sends one feedback record. The response body is ignored.
func (f *FeedbackClient) Report(ctx context.Context, fb Feedback) error {
	if err := request.PostJSON(ctx, f.client, f.url, request.Headers(fb.Session), fb, nil); err != nil {
		return fmt.Errorf("failed to report feedback for %s: %w", fb.PaymentID, err)
	}

	return nil
}

// Reporter is anything that can deliver feedback.
type Reporter interface {
	Report(ctx context.Context, fb Feedback) error
}

// FeedbackPool delivers feedback in the background so reporting never blocks a batch.
type FeedbackPool struct {
	numWorkers   int
	feedbackChan chan Feedback
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closed       bool
	timeout      time.Duration
	reporter     Reporter
	logger       *zap.Logger
}

// NewFeedbackPool creates a pool of numWorkers draining a queue of queueSize.
func NewFeedbackPool(reporter Reporter, numWorkers, queueSize int, timeout time.Duration, logger *zap.Logger) *FeedbackPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	return &FeedbackPool{
		numWorkers:   numWorkers,
		feedbackChan: make(chan Feedback, queueSize),
		timeout:      timeout,
		reporter:     reporter,
		logger:       logger,
	}
}

// Start launches the workers.
func (fp *FeedbackPool) Start() {
	for i := 0; i < fp.numWorkers; i++ {
		fp.wg.Add(1)
		go fp.worker()
	}
}

// Stop closes the queue and waits for pending reports to drain.
func (fp *FeedbackPool) Stop() {
	fp.mu.Lock()
	if fp.closed {
		fp.mu.Unlock()
		return
	}
	fp.closed = true
	close(fp.feedbackChan)
	fp.mu.Unlock()

	fp.wg.Wait()
}

// Submit queues a report. It returns false when the queue is full or closed.
func (fp *FeedbackPool) Submit(fb Feedback) bool {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	if fp.closed {
		return false
	}

	select {
	case fp.feedbackChan <- fb:
		return true
	default:
		fp.logger.Warn("feedback queue full, dropping report", zap.String("payment_id", fb.PaymentID))
		return false
	}
}

func (fp *FeedbackPool) worker() {
	defer fp.wg.Done()

	for fb := range fp.feedbackChan {
		ctx, cancel := context.WithTimeout(context.Background(), fp.timeout)
		if err := fp.reporter.Report(ctx, fb); err != nil {
			fp.logger.Warn("feedback not delivered", zap.String("connector_id", fb.ConnectorID), zap.Error(err))
		}
		cancel()
	}
}
