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

// DefaultDebounce is the delay between the last rule change and the push.
const DefaultDebounce = 900 * time.Millisecond

// RoutingRule is the tunable part of the decision service configuration.
type RoutingRule struct {
	ExplorationPercent float64 `json:"explorationPercent" validate:"gte=0,lte=100"`
	BucketSize         int     `json:"bucketSize" validate:"gte=0"`
}

// RuleConfigurer pushes routing rule changes with a debounce. Only the last
// change within the window is sent.
type RuleConfigurer struct {
	url     string
	client  *http.Client
	delay   time.Duration
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending *pendingRule
	pushed  func(RoutingRule, error)
}

type pendingRule struct {
	session types.SessionContext
	rule    RoutingRule
}

func NewRuleConfigurer(url string, client *http.Client, delay, timeout time.Duration, logger *zap.Logger) *RuleConfigurer {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	return &RuleConfigurer{url: url, client: client, delay: delay, timeout: timeout, logger: logger}
}

// OnPushed registers a hook called after every push attempt.
func (r *RuleConfigurer) OnPushed(fn func(RoutingRule, error)) {
	r.mu.Lock()
	r.pushed = fn
	r.mu.Unlock()
}

// Update schedules rule to be pushed once no further change arrives within the debounce window.
func (r *RuleConfigurer) Update(session types.SessionContext, rule RoutingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = &pendingRule{session: session, rule: rule}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, r.fire)
}

func (r *RuleConfigurer) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_ = r.Flush(ctx)
}

// Flush pushes the pending rule immediately, if any.
func (r *RuleConfigurer) Flush(ctx context.Context) error {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	hook := r.pushed
	r.mu.Unlock()

	if p == nil {
		return nil
	}

	err := request.PostJSON(ctx, r.client, r.url, request.Headers(p.session), p.rule, nil)
	if err != nil {
		err = fmt.Errorf("failed to push routing rule: %w", err)
		r.logger.Warn("routing rule update failed", zap.Error(err))
	} else {
		r.logger.Info("routing rule updated",
			zap.Float64("exploration_percent", p.rule.ExplorationPercent),
			zap.Int("bucket_size", p.rule.BucketSize))
	}

	if hook != nil {
		hook(p.rule, err)
	}

	return err
}
