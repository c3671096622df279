package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "board-sync/gateway"
	maxErrorBody    = 64 * 1024
	requestIDHeader = "X-Request-ID"
)

// CredentialSource supplies the bearer token attached to each request. An
// empty token means the request is sent unauthenticated.
type CredentialSource interface {
	Token() string
}

// StaticToken is a CredentialSource for a fixed token.
type StaticToken string

func (s StaticToken) Token() string { return string(s) }

// Client performs the REST operations of the remote backend. It never retries.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tracer  trace.Tracer

	creds  CredentialSource
	logger *log.Logger
}

// New creates a gateway for the API rooted at baseURL.
func New(baseURL string, creds CredentialSource, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if creds == nil {
		creds = StaticToken("")
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Tracer:  otel.Tracer(tracerName),
		creds:   creds,
		logger:  logger,
	}
}

// operation names a gateway call and the message used when the server gives none.
type operation struct {
	name     string
	fallback string
}

func (c *Client) do(ctx context.Context, op operation, method, path string, body any) ([]byte, error) {
	ctx, span := c.Tracer.Start(ctx, "gateway."+op.name, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	start := time.Now()
	data, status, err := c.roundTrip(ctx, method, path, body)
	span.SetAttributes(attribute.Int("http.status_code", status))

	fields := log.Fields{
		"op":          op.name,
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
	}
	if err == nil && status >= 200 && status < 300 {
		c.logger.WithFields(fields).Debug("gateway.request")
		return data, nil
	}

	opErr := &RemoteOperationError{Op: op.name, Status: status, Message: op.fallback, Err: err}
	if err == nil {
		opErr.Err = statusError(status)
		if msg := serverMessage(data); msg != "" {
			opErr.Message = msg
		}
	}
	span.RecordError(opErr)
	span.SetStatus(codes.Error, opErr.Message)
	fields["error"] = opErr.Err.Error()
	c.logger.WithFields(fields).Warn("gateway.request.failed")
	return nil, opErr
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func serverMessage(data []byte) string {
	if len(data) == 0 || len(data) > maxErrorBody {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// call runs an operation and decodes the response into out. When key is not
// empty and the body is an object holding that key, the value under the key is
// decoded instead, so both {"task": {...}} and a bare task are accepted.
func (c *Client) call(ctx context.Context, op operation, method, path string, body any, key string, out any) error {
	data, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := decodeEnvelope(data, key, out); err != nil {
		return &RemoteOperationError{Op: op.name, Status: http.StatusOK, Message: op.fallback, Err: err}
	}
	return nil
}

func decodeEnvelope(data []byte, key string, out any) error {
	if key != "" {
		var env map[string]json.RawMessage
		if err := sonic.Unmarshal(data, &env); err == nil {
			if inner, ok := env[key]; ok {
				return sonic.Unmarshal(inner, out)
			}
		}
	}
	return sonic.Unmarshal(data, out)
}
