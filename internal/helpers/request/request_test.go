package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routing-simulator/internal/types"
)

func TestDoSendsHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("x-profile-id"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"ping"}`, string(body))

		_, _ = w.Write([]byte(`{"name":"pong"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	headers := Headers(types.SessionContext{APIKey: "key"})

	require.NoError(t, PostJSON(context.Background(), http.DefaultClient, srv.URL, headers, map[string]string{"name": "ping"}, &out))
	assert.Equal(t, "pong", out.Name)
}

func TestDoStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), http.DefaultClient, srv.URL, nil, nil)

	assert.ErrorIs(t, err, ErrStatus)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Len(t, statusErr.Body, maxErrorBody)
}

func TestDoEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var out map[string]any
	assert.NoError(t, GetJSON(context.Background(), http.DefaultClient, srv.URL, nil, &out))
	assert.Nil(t, out)
}
