package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"routing-simulator/internal/helpers/request"
	"routing-simulator/internal/types"
)

// ErrUnknownConnector is returned when toggling a connector that was never listed.
var ErrUnknownConnector = errors.New("unknown connector")

const processorType = "payment_processor"

// listingEntry is one element of the connector listing response.
type listingEntry struct {
	ConnectorID   string `json:"connectorId"`
	ConnectorName string `json:"connectorName"`
	DisplayLabel  string `json:"displayLabel"`
	Disabled      bool   `json:"disabled"`
	ConnectorType string `json:"connectorType"`
}

// Registry holds the known connectors and their enabled flags.
type Registry struct {
	mu         sync.RWMutex
	url        string
	client     *http.Client
	listings   *cache.Cache
	logger     *zap.Logger
	order      []string
	connectors map[string]*types.ConnectorState
}

// NewRegistry creates a registry that fetches listings from url. Listings are
// cached per merchant for ttl.
func NewRegistry(url string, client *http.Client, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		url:        url,
		client:     client,
		listings:   cache.New(ttl, 2*ttl),
		logger:     logger,
		connectors: make(map[string]*types.ConnectorState),
	}
}

// Load fetches the listing when the registry is still empty.
func (r *Registry) Load(ctx context.Context, session types.SessionContext) error {
	r.mu.RLock()
	loaded := len(r.order) > 0
	r.mu.RUnlock()

	if loaded {
		return nil
	}

	return r.fetch(ctx, session, false)
}

// Refresh forces a new fetch. Enabled flags toggled by the user survive.
func (r *Registry) Refresh(ctx context.Context, session types.SessionContext) error {
	return r.fetch(ctx, session, true)
}

func (r *Registry) fetch(ctx context.Context, session types.SessionContext, force bool) error {
	if session.MerchantID == "" {
		return fmt.Errorf("merchant id is required to list connectors")
	}

	var entries []listingEntry
	if cached, ok := r.listings.Get(session.MerchantID); ok && !force {
		entries = cached.([]listingEntry)
	} else {
		if err := request.GetJSON(ctx, r.client, r.url, request.Headers(session), &entries); err != nil {
			return fmt.Errorf("failed to list connectors: %w", err)
		}
		r.listings.SetDefault(session.MerchantID, entries)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if e.ConnectorType != "" && e.ConnectorType != processorType {
			continue
		}
		if e.ConnectorID == "" {
			continue
		}

		if existing, ok := r.connectors[e.ConnectorID]; ok {
			existing.Name = e.ConnectorName
			existing.Label = e.DisplayLabel
			existing.Type = e.ConnectorType
			continue
		}

		r.connectors[e.ConnectorID] = &types.ConnectorState{
			ID:      e.ConnectorID,
			Name:    e.ConnectorName,
			Label:   e.DisplayLabel,
			Type:    e.ConnectorType,
			Enabled: !e.Disabled,
		}
		r.order = append(r.order, e.ConnectorID)
	}

	r.logger.Debug("connector listing loaded", zap.Int("connectors", len(r.order)))

	return nil
}

// Set replaces the registry content with a fixed list, such as the
// configured static connectors. Load does not fetch once it is set.
func (r *Registry) Set(list []types.ConnectorState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.connectors = make(map[string]*types.ConnectorState, len(list))
	for _, c := range list {
		c := c
		r.connectors[c.ID] = &c
		r.order = append(r.order, c.ID)
	}
}

// List returns all connectors in listing order.
func (r *Registry) List() []types.ConnectorState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ConnectorState, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.connectors[id])
	}

	return out
}

// Enabled returns the enabled connectors in listing order.
func (r *Registry) Enabled() []types.ConnectorState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ConnectorState, 0, len(r.order))
	for _, id := range r.order {
		if c := r.connectors[id]; c.Enabled {
			out = append(out, *c)
		}
	}

	return out
}

// SetEnabled flips the enabled flag of a connector.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.connectors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, id)
	}
	c.Enabled = enabled

	return nil
}

// Lookup resolves a connector by id or by name.
func (r *Registry) Lookup(idOrName string) (types.ConnectorState, bool) {
	if idOrName == "" {
		return types.ConnectorState{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.connectors[idOrName]; ok {
		return *c, true
	}
	for _, id := range r.order {
		if c := r.connectors[id]; c.Name == idOrName {
			return *c, true
		}
	}

	return types.ConnectorState{}, false
}

// Len returns the number of known connectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
