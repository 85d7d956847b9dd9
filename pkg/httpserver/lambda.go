package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// LambdaTenantKey is the authorizer context field carrying the tenant.
const LambdaTenantKey = "tenantId"

type LambdaHandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// LambdaHandler serves API Gateway REST proxy events with h.
func LambdaHandler(h http.Handler) LambdaHandlerFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		r, err := newLambdaRequest(ctx, req)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}

		w := newLambdaResponseWriter()
		h.ServeHTTP(w, r)

		return w.proxyResponse(), nil
	}
}

// FlushAfter runs flush after every invocation, before control returns to Lambda.
func (f LambdaHandlerFunc) FlushAfter(logger *zap.Logger, flush func(context.Context) error) LambdaHandlerFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := f(ctx, req)
		if ferr := flush(context.WithoutCancel(ctx)); ferr != nil {
			logger.Warn("failed to flush after invocation", zap.Error(ferr))
		}
		return resp, err
	}
}

func newLambdaRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	query := url.Values{}
	for k, vs := range req.MultiValueQueryStringParameters {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	for k, v := range req.QueryStringParameters {
		if _, ok := query[k]; !ok {
			query.Set(k, v)
		}
	}

	u := url.URL{Path: req.Path, RawQuery: query.Encode()}
	r, err := http.NewRequestWithContext(ctx, req.HTTPMethod, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}

	if tenant, ok := req.RequestContext.Authorizer[LambdaTenantKey].(string); ok && tenant != "" {
		r.Header.Set(XTenantIDHeader, tenant)
	}
	if r.Header.Get(echo.HeaderXRequestID) == "" && req.RequestContext.RequestID != "" {
		r.Header.Set(echo.HeaderXRequestID, req.RequestContext.RequestID)
	}
	if host := r.Header.Get("Host"); host != "" {
		r.Host = host
	}
	r.RemoteAddr = req.RequestContext.Identity.SourceIP

	return r, nil
}

type lambdaResponseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newLambdaResponseWriter() *lambdaResponseWriter {
	return &lambdaResponseWriter{header: http.Header{}}
}

func (w *lambdaResponseWriter) Header() http.Header {
	return w.header
}

func (w *lambdaResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *lambdaResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *lambdaResponseWriter) proxyResponse() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	resp := events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           map[string]string{},
		MultiValueHeaders: map[string][]string{},
	}
	for k, vs := range w.header {
		resp.MultiValueHeaders[k] = vs
		resp.Headers[k] = strings.Join(vs, ",")
	}

	if isTextContent(w.header.Get(echo.HeaderContentType)) {
		resp.Body = w.body.String()
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(w.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

func isTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.HasPrefix(contentType, "text/") ||
		strings.Contains(contentType, "json") ||
		strings.Contains(contentType, "xml")
}
