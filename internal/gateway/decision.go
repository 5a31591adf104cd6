package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"routing-simulator/internal/helpers/request"
	"routing-simulator/internal/types"
)

// DecisionRequest asks the decision service to pick one of Eligible.
type DecisionRequest struct {
	Session          types.SessionContext
	Eligible         []types.ConnectorState
	RankingAlgorithm string
	Payment          types.PaymentContext
}

// Decision is the routing answer. SelectedConnector is empty when nothing was decided.
type Decision struct {
	SelectedConnector string
	RoutingApproach   types.RoutingApproach
	Scores            map[string]float64
}

// Decided reports whether a connector was selected.
func (d Decision) Decided() bool {
	return d.SelectedConnector != ""
}

type decisionPayload struct {
	EligibleConnectors []string             `json:"eligibleConnectors"`
	RankingAlgorithm   string               `json:"rankingAlgorithm"`
	PaymentContext     types.PaymentContext `json:"paymentContext"`
	MerchantID         string               `json:"merchantId"`
	ProfileID          string               `json:"profileId"`
}

type decisionResponse struct {
	DecidedGateway      *string            `json:"decidedGateway"`
	GatewayPriorityMap  map[string]float64 `json:"gatewayPriorityMap"`
	RoutingApproachCode *string            `json:"routingApproachCode"`
}

// approachCodes maps provider routing approach codes into the closed classification.
var approachCodes = map[string]types.RoutingApproach{
	"SR_SELECTION_V3_ROUTING": types.RoutingExploitation,
	"SR_SELECTION":            types.RoutingExploitation,
	"EXPLOITATION":            types.RoutingExploitation,
	"SR_V3_HEDGING":           types.RoutingExploration,
	"HEDGING":                 types.RoutingExploration,
	"EXPLORATION":             types.RoutingExploration,
	"DEFAULT":                 types.RoutingDefault,
	"PRIORITY_LOGIC":          types.RoutingDefault,
	"DEFAULT_SELECTION":       types.RoutingDefault,
}

// ClassifyApproach maps a provider code. Empty codes are unknown, unrecognised
// codes fall back to default.
func ClassifyApproach(code string) types.RoutingApproach {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return types.RoutingUnknown
	}
	if approach, ok := approachCodes[code]; ok {
		return approach
	}

	return types.RoutingDefault
}

// DecisionClient calls the gateway decision endpoint.
type DecisionClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewDecisionClient(url string, client *http.Client, logger *zap.Logger) *DecisionClient {
	return &DecisionClient{url: url, client: client, logger: logger}
}

func noDecision() Decision {
	return Decision{RoutingApproach: types.RoutingUnknown}
}

// Decide never fails: precondition and transport problems both yield an empty decision.
func (d *DecisionClient) Decide(ctx context.Context, req DecisionRequest) Decision {
	if len(req.Eligible) == 0 || req.Session.ProfileID == "" || req.Session.MerchantID == "" {
		return noDecision()
	}

	byName := make(map[string]string, len(req.Eligible)*2)
	names := make([]string, 0, len(req.Eligible))
	for _, c := range req.Eligible {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		names = append(names, name)
		byName[name] = c.ID
		byName[c.ID] = c.ID
	}

	payload := decisionPayload{
		EligibleConnectors: names,
		RankingAlgorithm:   req.RankingAlgorithm,
		PaymentContext:     req.Payment,
		MerchantID:         req.Session.MerchantID,
		ProfileID:          req.Session.ProfileID,
	}

	var resp decisionResponse
	if err := request.PostJSON(ctx, d.client, d.url, request.Headers(req.Session), payload, &resp); err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("gateway decision failed", zap.String("payment_id", req.Payment.PaymentID), zap.Error(err))
		}

		return noDecision()
	}

	return interpret(resp, byName)
}

func interpret(resp decisionResponse, byName map[string]string) Decision {
	if resp.DecidedGateway == nil {
		return noDecision()
	}

	selected, ok := byName[*resp.DecidedGateway]
	if !ok {
		return noDecision()
	}

	decision := Decision{SelectedConnector: selected, RoutingApproach: types.RoutingUnknown}
	if resp.RoutingApproachCode != nil {
		decision.RoutingApproach = ClassifyApproach(*resp.RoutingApproachCode)
	}

	if len(resp.GatewayPriorityMap) > 0 {
		decision.Scores = make(map[string]float64, len(resp.GatewayPriorityMap))
		for name, score := range resp.GatewayPriorityMap {
			id, known := byName[name]
			if !known || math.IsNaN(score) || math.IsInf(score, 0) {
				continue
			}
			decision.Scores[id] = score
		}
	}

	return decision
}
