package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check probes one backend dependency.
type Check func(ctx context.Context) error

// HealthHandler reports liveness and the state of the backing stores.
type HealthHandler struct {
	version string
	checks  map[string]Check
	now     func() time.Time
}

func NewHealthHandler(e *echo.Echo, version string, checks map[string]Check) {
	handler := &HealthHandler{version: version, checks: checks, now: time.Now}
	e.GET("/health", handler.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	return c.JSON(status, echo.Map{
		"status":       state,
		"version":      h.version,
		"time":         h.now().Format(time.RFC3339),
		"dependencies": deps,
	})
}
