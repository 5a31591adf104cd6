package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/valyala/fasthttp"
)

// PaymentsProxy forwards dashboard calls to the sandbox payments API and
// injects the session API key.
type PaymentsProxy struct {
	target  string
	client  *fasthttp.Client
	session func() string
}

func NewPaymentsProxy(target string, timeout time.Duration, apiKey func() string) *PaymentsProxy {
	return &PaymentsProxy{
		target: strings.TrimRight(target, "/"),
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
		session: apiKey,
	}
}

// Register mounts the proxy under /proxy/payments.
func (p *PaymentsProxy) Register(app *fiber.App) {
	app.All("/proxy/payments/*", p.Handler)
}

func (p *PaymentsProxy) Handler(c *fiber.Ctx) error {
	key := p.session()
	if key == "" {
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{"error": "api key not configured"})
	}

	url := p.target + "/payments"
	if rest := c.Params("*"); rest != "" {
		url += "/" + rest
	}
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		url += "?" + string(query)
	}

	c.Request().Header.Set("api-key", key)
	c.Request().Header.Del(fiber.HeaderCookie)

	if err := proxy.Do(c, url, p.client); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	c.Response().Header.Del(fiber.HeaderServer)

	return nil
}
