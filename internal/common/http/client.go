// Package http is the outbound HTTP client shared by provider integrations.
// Every call gets a client span and the configured timeout.
package http

import (
	"context"
	"net/http"
	"time"

	"mission-dispatch/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Client struct {
	name       string
	httpClient *http.Client
}

// NewClient names the remote service for span naming.
func NewClient(name string, timeout time.Duration) *Client {
	return &Client{
		name:       name,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Do sends req under ctx. Responses with a 5xx status mark the span as failed
// but are still returned to the caller.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	ctx, span := observability.StartSpan(ctx, c.name+" "+req.Method,
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.Redacted()),
	)
	defer span.End()

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}
