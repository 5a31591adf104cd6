package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentsProxyInjectsKey(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_1", r.URL.Path)
		assert.Equal(t, "expand=attempts", r.URL.RawQuery)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Cookie"))

		_, _ = w.Write([]byte(`{"status":"succeeded"}`))
	}))
	defer backend.Close()

	app := fiber.New()
	NewPaymentsProxy(backend.URL+"/", time.Second, func() string { return "secret" }).Register(app)

	req := httptest.NewRequest(http.MethodGet, "/proxy/payments/pay_1?expand=attempts", nil)
	req.Header.Set("Cookie", "session=abc")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"succeeded"}`, string(body))
}

func TestPaymentsProxyWithoutKey(t *testing.T) {
	app := fiber.New()
	NewPaymentsProxy("http://127.0.0.1:1", time.Second, func() string { return "" }).Register(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/proxy/payments/pay_1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}
