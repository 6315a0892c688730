package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/v09-software/cubico/internal/config"
)

// NewServer builds the echo instance with middleware, the metrics endpoint
// and the cube routes of h.
func NewServer(cfg *config.Config, h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = JSONSerializer{}

	logger := log.New("cubico")
	logger.SetLevel(ParseLevel(cfg.Logging.Level))
	e.Logger = logger

	if cfg.Server.EnableCORS {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	if cfg.Server.RateLimit > 0 {
		store := middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))
		e.Use(middleware.RateLimiter(store))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	h.RegisterRoutes(e)
	return e
}

// ParseLevel maps a config level name to a gommon level. Unknown names
// fall back to INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
