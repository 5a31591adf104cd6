package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"routing-simulator/internal/types"
)

var testSession = types.SessionContext{APIKey: "key", ProfileID: "pro_1", MerchantID: "mer_1"}

const listing = `[
	{"connectorId":"mca_1","connectorName":"stripe","displayLabel":"Stripe EU","connectorType":"payment_processor"},
	{"connectorId":"mca_2","connectorName":"adyen","disabled":true,"connectorType":"payment_processor"},
	{"connectorId":"mca_3","connectorName":"riskified","connectorType":"payment_method_auth"},
	{"connectorId":"","connectorName":"broken"},
	{"connectorId":"mca_4","connectorName":"checkout"}
]`

func listingServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "mer_1", r.Header.Get("x-merchant-id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestRegistryLoadFiltersListing(t *testing.T) {
	var calls atomic.Int64
	srv := listingServer(t, &calls)
	r := NewRegistry(srv.URL, http.DefaultClient, time.Minute, zap.NewNop())

	require.NoError(t, r.Load(context.Background(), testSession))
	require.NoError(t, r.Load(context.Background(), testSession))
	assert.Equal(t, int64(1), calls.Load())

	assert.Equal(t, []types.ConnectorState{
		{ID: "mca_1", Name: "stripe", Label: "Stripe EU", Type: "payment_processor", Enabled: true},
		{ID: "mca_2", Name: "adyen", Type: "payment_processor", Enabled: false},
		{ID: "mca_4", Name: "checkout", Enabled: true},
	}, r.List())

	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "mca_1", enabled[0].ID)
	assert.Equal(t, "mca_4", enabled[1].ID)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryRefreshKeepsToggles(t *testing.T) {
	var calls atomic.Int64
	srv := listingServer(t, &calls)
	r := NewRegistry(srv.URL, http.DefaultClient, time.Minute, zap.NewNop())

	require.NoError(t, r.Load(context.Background(), testSession))
	require.NoError(t, r.SetEnabled("mca_1", false))
	require.NoError(t, r.SetEnabled("mca_2", true))

	require.NoError(t, r.Refresh(context.Background(), testSession))
	assert.Equal(t, int64(2), calls.Load())

	c, ok := r.Lookup("mca_1")
	require.True(t, ok)
	assert.False(t, c.Enabled)

	c, ok = r.Lookup("adyen")
	require.True(t, ok)
	assert.True(t, c.Enabled)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryRequiresMerchant(t *testing.T) {
	var calls atomic.Int64
	srv := listingServer(t, &calls)
	r := NewRegistry(srv.URL, http.DefaultClient, time.Minute, zap.NewNop())

	assert.Error(t, r.Load(context.Background(), types.SessionContext{APIKey: "key"}))
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryListingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := NewRegistry(srv.URL, http.DefaultClient, time.Minute, zap.NewNop())

	assert.Error(t, r.Load(context.Background(), testSession))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryStaticListSkipsListing(t *testing.T) {
	var calls atomic.Int64
	srv := listingServer(t, &calls)
	r := NewRegistry(srv.URL, http.DefaultClient, time.Minute, zap.NewNop())
	r.Set([]types.ConnectorState{{ID: "mca_9", Name: "paypal", Enabled: true}})

	require.NoError(t, r.Load(context.Background(), testSession))
	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, []types.ConnectorState{{ID: "mca_9", Name: "paypal", Enabled: true}}, r.List())
}

func TestRegistrySetAndLookup(t *testing.T) {
	r := NewRegistry("", http.DefaultClient, time.Minute, zap.NewNop())
	r.Set([]types.ConnectorState{
		{ID: "A", Name: "stripe", Enabled: true},
		{ID: "B", Name: "adyen"},
	})

	_, ok := r.Lookup("")
	assert.False(t, ok)

	c, ok := r.Lookup("stripe")
	require.True(t, ok)
	assert.Equal(t, "A", c.ID)

	_, ok = r.Lookup("paypal")
	assert.False(t, ok)

	assert.ErrorIs(t, r.SetEnabled("C", true), ErrUnknownConnector)
	assert.Len(t, r.Enabled(), 1)

	require.NoError(t, r.Load(context.Background(), testSession))
	assert.Equal(t, 2, r.Len())
}
