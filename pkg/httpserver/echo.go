package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/brpaz/echozap"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

const shutdownTimeout = 10 * time.Second

var agentHost = os.Getenv("JAEGER_AGENT_HOST")
var serviceName = os.Getenv("JAEGER_SERVICE_NAME")

type Routes interface {
	Register(router *echo.Echo)
}

type options struct {
	corsOrigins []string
	corsMaxAge  int
}

type Option func(*options)

// WithCORS allows cross-origin requests from origins; "*" allows any origin.
func WithCORS(origins []string, maxAge int) Option {
	return func(o *options) {
		o.corsOrigins = origins
		o.corsMaxAge = maxAge
	}
}

// Register builds the echo instance with the shared middleware stack and the given routes.
// It does not touch the global tracer provider.
func Register(logger *zap.Logger, routes Routes, opts ...Option) *echo.Echo {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Pre(middleware.RemoveTrailingSlash())

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(echozap.ZapLogger(logger))
	if len(o.corsOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: o.corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, XTenantIDHeader, "X-Api-Key"},
			MaxAge:       o.corsMaxAge,
		}))
	}

	AddMetrics(e)

	e.Validator = customValidator{
		validate: validator.New(),
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	routes.Register(e)

	return e
}

// RegisterAndStart serves the routes on address until ctx is done.
func RegisterAndStart(ctx context.Context, logger *zap.Logger, address string, routes Routes, opts ...Option) error {
	tp, err := InitTracer()
	if err != nil {
		logger.Error("failed to init tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	e := Register(logger, routes, opts...)
	e.Use(otelecho.Middleware(serviceName))

	errs := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("address", address))
		errs <- e.Start(address)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

type customValidator struct {
	validate *validator.Validate
}

func (v customValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// InitTracer installs a jaeger-backed tracer provider when JAEGER_AGENT_HOST is set.
// Without it the global no-op provider stays in place and the returned provider is nil.
func InitTracer() (*sdktrace.TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	if agentHost == "" {
		return nil, nil
	}

	exporter, err := jaeger.New(jaeger.WithAgentEndpoint(jaeger.WithAgentHost(agentHost)))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
