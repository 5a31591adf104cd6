package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"routing-simulator/internal/helpers/request"
	"routing-simulator/internal/types"
)

// ErrUnexpectedStatus is returned when the payments API answers with a shape we cannot interpret.
var ErrUnexpectedStatus = errors.New("unexpected payment status")

// Rand is the random source used for card selection. Float64 returns a value in [0,1).
type Rand interface {
	Float64() float64
}

// DefaultRand draws from the process-wide generator, which is safe for concurrent use.
type DefaultRand struct{}

func (DefaultRand) Float64() float64 {
	return rand.Float64()
}

// SubmitRequest describes one simulated payment.
type SubmitRequest struct {
	Session        types.SessionContext
	Connector      *types.ConnectorState
	FailurePercent float64
	SuccessCard    types.CardProfile
	FailureCard    types.CardProfile
	Payment        types.PaymentContext
}

// SubmitResult is the interpreted payments API answer.
type SubmitResult struct {
	IsSuccess   bool
	RawResponse Response
}

type routingSelection struct {
	Type                string `json:"type"`
	ConnectorName       string `json:"connectorName"`
	MerchantConnectorID string `json:"merchantConnectorId"`
}

type billing struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Line1     string `json:"line1"`
	City      string `json:"city"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

// Payload is the body posted to the payments API.
type Payload struct {
	PaymentID     string            `json:"paymentId"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Confirm       bool              `json:"confirm"`
	CaptureMethod string            `json:"captureMethod"`
	ProfileID     string            `json:"profileId"`
	CustomerID    string            `json:"customerId"`
	PaymentMethod string            `json:"paymentMethod"`
	Card          types.CardProfile `json:"card"`
	Billing       billing           `json:"billing"`
	Routing       *routingSelection `json:"routing,omitempty"`
}

// Response is the subset of the payments API answer the simulator reads.
type Response struct {
	PaymentID           string `json:"paymentId"`
	Status              string `json:"status"`
	ConnectorName       string `json:"connectorName"`
	MerchantConnectorID string `json:"merchantConnectorId"`
	ErrorMessage        string `json:"errorMessage"`
}

// ResolvedConnector returns the connector reference the API reported, if any.
func (r Response) ResolvedConnector() string {
	if r.MerchantConnectorID != "" {
		return r.MerchantConnectorID
	}

	return r.ConnectorName
}

// processing is not final and falls through to ErrUnexpectedStatus, so it is
// never counted as a success.
var successStatuses = map[string]bool{
	"succeeded":          true,
	"requires_capture":   true,
	"partially_captured": true,
}

var failureStatuses = map[string]bool{
	"failed":                   true,
	"cancelled":                true,
	"requires_payment_method":  true,
	"requires_customer_action": true,
}

// Submitter posts simulated payments.
type Submitter struct {
	url    string
	client *http.Client
	rand   Rand
	logger *zap.Logger
}

func NewSubmitter(url string, client *http.Client, rand Rand, logger *zap.Logger) *Submitter {
	return &Submitter{url: url, client: client, rand: rand, logger: logger}
}

// SelectCard draws from rng and returns the failure card when the draw falls
// below failurePercent.
func SelectCard(rng Rand, failurePercent float64, success, failure types.CardProfile) (types.CardProfile, bool) {
	draw := rng.Float64() * 100
	if draw < failurePercent {
		return failure, true
	}

	return success, false
}

// Submit sends one payment. Cancellation is returned as the context error.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	card, useFailure := SelectCard(s.rand, req.FailurePercent, req.SuccessCard, req.FailureCard)

	payload := s.preparePaymentData(req, card)

	var resp Response
	if err := request.PostJSON(ctx, s.client, s.url, request.Headers(req.Session), payload, &resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SubmitResult{}, ctxErr
		}

		return SubmitResult{}, fmt.Errorf("failed to submit payment %s: %w", req.Payment.PaymentID, err)
	}

	status := strings.ToLower(strings.TrimSpace(resp.Status))
	switch {
	case successStatuses[status]:
		return SubmitResult{IsSuccess: true, RawResponse: resp}, nil
	case failureStatuses[status]:
		return SubmitResult{IsSuccess: false, RawResponse: resp}, nil
	default:
		s.logger.Debug("unrecognised payment status",
			zap.String("payment_id", req.Payment.PaymentID),
			zap.String("status", resp.Status),
			zap.Bool("failure_card", useFailure))

		return SubmitResult{RawResponse: resp}, fmt.Errorf("%w: %q", ErrUnexpectedStatus, resp.Status)
	}
}

// Helper function to prepare payment data
func (s *Submitter) preparePaymentData(req SubmitRequest, card types.CardProfile) Payload {
	payload := Payload{
		PaymentID:     req.Payment.PaymentID,
		Amount:        req.Payment.Amount,
		Currency:      req.Payment.Currency,
		Confirm:       true,
		CaptureMethod: "automatic",
		ProfileID:     req.Session.ProfileID,
		CustomerID:    req.Payment.CustomerID,
		PaymentMethod: "card",
		Card:          card,
		Billing: billing{
			FirstName: "Sim",
			LastName:  "Customer",
			Line1:     "1 Simulation Way",
			City:      "San Francisco",
			Zip:       "94122",
			Country:   "US",
		},
	}

	if req.Connector != nil {
		payload.Routing = &routingSelection{
			Type:                "single",
			ConnectorName:       req.Connector.Name,
			MerchantConnectorID: req.Connector.ID,
		}
	}

	return payload
}
