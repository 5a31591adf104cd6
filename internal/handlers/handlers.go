package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"routing-simulator/internal/connectors"
	"routing-simulator/internal/gateway"
	"routing-simulator/internal/helpers/logs"
	"routing-simulator/internal/simulation"
	"routing-simulator/internal/store"
	"routing-simulator/internal/types"
)

var validatorInstance = validator.New()

const defaultLogLimit = 100

// Simulator is the engine surface exposed over HTTP.
type Simulator interface {
	Start(ctx context.Context, cfg types.SimulationConfig) error
	Pause() error
	Resume() error
	Stop() error
	Snapshot() simulation.Snapshot
	Log(limit int) []types.TransactionLogEntry
	Summary() (types.SummaryResult, bool)
	Session() types.SessionContext
	SetSession(session types.SessionContext) error
}

// ConnectorRegistry is the registry surface exposed over HTTP.
type ConnectorRegistry interface {
	List() []types.ConnectorState
	SetEnabled(id string, enabled bool) error
	Refresh(ctx context.Context, session types.SessionContext) error
}

// RuleUpdater receives routing rule changes.
type RuleUpdater interface {
	Update(session types.SessionContext, rule gateway.RoutingRule)
}

// RunStore reads persisted runs and stores credentials.
type RunStore interface {
	LoadRun(ctx context.Context, runID string) (simulation.Snapshot, error)
	LoadLog(ctx context.Context, runID string, count int64) ([]types.TransactionLogEntry, error)
	LoadSummary(ctx context.Context, runID string) (types.SummaryResult, error)
	PurgeRun(ctx context.Context, runID string) error
	SaveSession(ctx context.Context, session types.SessionContext) error
}

type Handlers struct {
	Simulator  Simulator
	Connectors ConnectorRegistry
	Rules      RuleUpdater
	Store      RunStore
	Events     *Broadcaster
	Defaults   types.SimulationConfig
	Logger     *zap.Logger
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func errorResponse(c *fiber.Ctx, code int, err error) error {
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, simulation.ErrInvalidTransition):
		return http.StatusConflict
	case simulation.IsPrecondition(err):
		return http.StatusPreconditionFailed
	case errors.Is(err, connectors.ErrUnknownConnector), errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Register mounts every route on app.
func (h *Handlers) Register(app *fiber.App) {
	sim := app.Group("/simulation")
	sim.Get("/", h.SnapshotHandler)
	sim.Post("/start", h.StartHandler)
	sim.Post("/pause", h.PauseHandler)
	sim.Post("/resume", h.ResumeHandler)
	sim.Post("/stop", h.StopHandler)
	sim.Get("/log", h.LogHandler)
	sim.Get("/summary", h.SummaryHandler)
	if h.Events != nil {
		sim.Get("/events", h.EventsHandler)
	}

	app.Get("/connectors", h.ConnectorsHandler)
	app.Post("/connectors/refresh", h.RefreshConnectorsHandler)
	app.Patch("/connectors/:id", h.ToggleConnectorHandler)

	app.Put("/routing", h.RoutingHandler)
	app.Put("/session", h.SessionHandler)

	if h.Store != nil {
		app.Get("/runs/:id", h.RunHandler)
		app.Delete("/runs/:id", h.DeleteRunHandler)
	}
}

// StartHandler starts a run. The body optionally overrides the default simulation config.
func (h *Handlers) StartHandler(c *fiber.Ctx) error {
	cfg := h.Defaults.Clone()
	if body := c.Body(); len(body) > 0 {
		if err := sonic.Unmarshal(body, &cfg); err != nil {
			return c.SendStatus(http.StatusBadRequest)
		}
	}

	if err := h.Simulator.Start(c.UserContext(), cfg); err != nil {
		logs.ShowLogs("simulation start rejected", zap.Error(err))
		return errorResponse(c, statusFor(err), err)
	}

	return c.Status(http.StatusAccepted).JSON(h.Simulator.Snapshot())
}

func (h *Handlers) PauseHandler(c *fiber.Ctx) error {
	return h.transition(c, h.Simulator.Pause)
}

func (h *Handlers) ResumeHandler(c *fiber.Ctx) error {
	return h.transition(c, h.Simulator.Resume)
}

func (h *Handlers) StopHandler(c *fiber.Ctx) error {
	return h.transition(c, h.Simulator.Stop)
}

func (h *Handlers) transition(c *fiber.Ctx, fn func() error) error {
	if err := fn(); err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	return c.Status(http.StatusOK).JSON(h.Simulator.Snapshot())
}

func (h *Handlers) SnapshotHandler(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.Simulator.Snapshot())
}

// LogHandler returns the newest entries of the current run's transaction log.
func (h *Handlers) LogHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit < 0 {
		return c.SendStatus(http.StatusBadRequest)
	}

	return c.Status(http.StatusOK).JSON(h.Simulator.Log(limit))
}

func (h *Handlers) SummaryHandler(c *fiber.Ctx) error {
	result, ok := h.Simulator.Summary()
	if !ok {
		return c.SendStatus(http.StatusNoContent)
	}

	return c.Status(http.StatusOK).JSON(result)
}

func (h *Handlers) ConnectorsHandler(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.Connectors.List())
}

func (h *Handlers) RefreshConnectorsHandler(c *fiber.Ctx) error {
	if err := h.Connectors.Refresh(c.UserContext(), h.Simulator.Session()); err != nil {
		h.Logger.Warn("connector refresh failed", zap.Error(err))
		return errorResponse(c, http.StatusBadGateway, err)
	}

	return c.Status(http.StatusOK).JSON(h.Connectors.List())
}

func (h *Handlers) ToggleConnectorHandler(c *fiber.Ctx) error {
	req := new(toggleRequest)
	if err := c.BodyParser(req); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}
	if err := validatorInstance.Struct(req); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}

	if err := h.Connectors.SetEnabled(c.Params("id"), *req.Enabled); err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	return c.Status(http.StatusOK).JSON(h.Connectors.List())
}

// RoutingHandler schedules a routing rule push. The push itself is debounced.
func (h *Handlers) RoutingHandler(c *fiber.Ctx) error {
	rule := new(gateway.RoutingRule)
	if err := c.BodyParser(rule); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}
	if err := validatorInstance.Struct(rule); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}

	h.Rules.Update(h.Simulator.Session(), *rule)

	return c.SendStatus(http.StatusAccepted)
}

func (h *Handlers) SessionHandler(c *fiber.Ctx) error {
	session := new(types.SessionContext)
	if err := c.BodyParser(session); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}
	if err := validatorInstance.Struct(session); err != nil {
		return c.SendStatus(http.StatusBadRequest)
	}

	if err := h.Simulator.SetSession(*session); err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	if h.Store != nil {
		if err := h.Store.SaveSession(c.UserContext(), *session); err != nil {
			h.Logger.Warn("session not persisted", zap.Error(err))
		}
	}

	return c.SendStatus(http.StatusNoContent)
}

// RunHandler returns a persisted run, with its log when ?log=N is given.
func (h *Handlers) RunHandler(c *fiber.Ctx) error {
	runID := c.Params("id")

	snap, err := h.Store.LoadRun(c.UserContext(), runID)
	if err != nil {
		return errorResponse(c, statusFor(err), err)
	}

	resp := fiber.Map{"run": snap}

	result, err := h.Store.LoadSummary(c.UserContext(), runID)
	switch {
	case err == nil:
		resp["summary"] = result
	case !errors.Is(err, store.ErrRunNotFound):
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	if raw := c.Query("log"); raw != "" {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || count <= 0 {
			return c.SendStatus(http.StatusBadRequest)
		}

		entries, err := h.Store.LoadLog(c.UserContext(), runID, count)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, err)
		}
		resp["log"] = entries
	}

	return c.Status(http.StatusOK).JSON(resp)
}

// DeleteRunHandler removes a persisted run. The run in progress cannot be removed.
func (h *Handlers) DeleteRunHandler(c *fiber.Ctx) error {
	runID := c.Params("id")

	snap := h.Simulator.Snapshot()
	if snap.RunID == runID && snap.State != types.StateIdle {
		return errorResponse(c, http.StatusConflict, simulation.ErrInvalidTransition)
	}

	if err := h.Store.PurgeRun(c.UserContext(), runID); err != nil {
		return errorResponse(c, http.StatusInternalServerError, err)
	}

	return c.SendStatus(http.StatusNoContent)
}
