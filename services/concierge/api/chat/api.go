package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/pkg/httpserver"
	"github.com/kaytu-io/ai-concierge/pkg/secrets"
	"github.com/kaytu-io/ai-concierge/services/concierge/api/entity"
	conciergeErrors "github.com/kaytu-io/ai-concierge/services/concierge/errors"
	"github.com/kaytu-io/ai-concierge/services/concierge/openai"
	"github.com/kaytu-io/ai-concierge/services/concierge/turn"
)

// Client is one API-key-bound connection to the assistants service.
type Client interface {
	turn.Upstream
	openai.AssistantAPI
}

// Connector builds a Client for an API key.
type Connector func(apiKey string) Client

type API struct {
	tracer   trace.Tracer
	logger   *zap.Logger
	secrets  secrets.Provider
	connect  Connector
	resolver *openai.Resolver
	opts     turn.Options
}

func New(logger *zap.Logger, secrets secrets.Provider, connect Connector, resolver *openai.Resolver, opts turn.Options) API {
	return API{
		tracer:   otel.GetTracerProvider().Tracer("concierge.http.chat"),
		logger:   logger.Named("chat"),
		secrets:  secrets,
		connect:  connect,
		resolver: resolver,
		opts:     opts,
	}
}

// SendMessage godoc
//
//	@Summary		Send a message to the concierge
//	@Description	Appends the message to the conversation (a new one when threadId is empty) and returns the assistant's reply
//	@Tags			concierge
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-Id	header		string				false	"Tenant"
//	@Param			request		body		entity.ChatRequest	true	"Request"
//	@Success		200			{object}	entity.ChatResponse
//	@Failure		400			{object}	httpserver.ErrorResponse
//	@Failure		404			{object}	httpserver.ErrorResponse
//	@Failure		500			{object}	httpserver.ErrorResponse
//	@Failure		502			{object}	httpserver.ErrorResponse
//	@Failure		504			{object}	httpserver.ErrorResponse
//	@Router			/ai-concierge [post]
func (s API) SendMessage(c echo.Context) error {
	ctx := otel.GetTextMapPropagator().Extract(c.Request().Context(), propagation.HeaderCarrier(c.Request().Header))

	ctx, span := s.tracer.Start(ctx, "send.message")
	defer span.End()

	var req entity.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, turn.ErrEmptyMessage.Error())
	}

	tenant := httpserver.GetTenantID(c)
	span.SetAttributes(attribute.String("tenant", tenant))
	logger := s.logger.With(zap.String("tenant", tenant), zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to handle message", zap.String("kind", conciergeErrors.KindOf(err).String()), zap.Error(err))
		return conciergeErrors.ToHTTPError(err)
	}

	apiKey, err := s.secrets.APIKey(ctx)
	if err != nil {
		return fail(conciergeErrors.Credential("get api key", err))
	}
	client := s.connect(apiKey)

	assistantID, err := s.resolver.Resolve(ctx, client, tenant)
	if err != nil {
		return fail(conciergeErrors.Upstream("resolve assistant", err))
	}

	reply, err := turn.NewExecutor(logger, client, s.opts).Execute(ctx, turn.Request{
		ThreadID:    req.ThreadID,
		Message:     req.Message,
		AssistantID: assistantID,
	})
	if err != nil {
		if errors.Is(err, turn.ErrUnknownAssistant) {
			if ferr := s.resolver.Forget(ctx, tenant); ferr != nil {
				logger.Warn("failed to forget stale assistant", zap.Error(ferr))
			}
		}
		return fail(err)
	}

	return c.JSON(http.StatusOK, entity.ChatResponse{
		Message:  reply.Message,
		ThreadID: reply.ThreadID,
	})
}

func (s API) Register(g *echo.Group) {
	g.POST("", s.SendMessage)
}
