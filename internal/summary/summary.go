package summary

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"routing-simulator/internal/helpers/request"
	"routing-simulator/internal/types"
)

// FailureText replaces the summary when generation fails.
const FailureText = "Summary could not be generated for this run."

// Request is what the summarisation service receives.
type Request struct {
	TargetTotal    int                         `json:"targetTotal"`
	Processed      int64                       `json:"processed"`
	OverallSR      float64                     `json:"overallSR"`
	PerConnector   []types.ConnectorMetrics    `json:"perConnectorMetrics"`
	Incidents      []types.Incident            `json:"incidents"`
	TransactionLog []types.TransactionLogEntry `json:"transactionLog"`
}

type response struct {
	SummaryText string `json:"summaryText"`
}

// Requester asks an external text generation service for a run summary.
type Requester struct {
	url     string
	client  *http.Client
	session func() types.SessionContext
	logger  *zap.Logger
	now     func() time.Time
}

func NewRequester(url string, client *http.Client, session func() types.SessionContext, logger *zap.Logger) *Requester {
	return &Requester{url: url, client: client, session: session, logger: logger, now: time.Now}
}

// Summarize never returns an error; failures produce FailureText.
func (r *Requester) Summarize(ctx context.Context, req Request) types.SummaryResult {
	var resp response

	var headers map[string]string
	if r.session != nil {
		headers = request.Headers(r.session())
	}

	err := request.PostJSON(ctx, r.client, r.url, headers, req, &resp)
	if err == nil && strings.TrimSpace(resp.SummaryText) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		r.logger.Warn("summary generation failed", zap.Error(err))

		return types.SummaryResult{Text: FailureText, Failed: true, GeneratedAt: r.now()}
	}

	return types.SummaryResult{Text: strings.TrimSpace(resp.SummaryText), GeneratedAt: r.now()}
}
