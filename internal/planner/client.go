package planner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
	"github.com/orangehq/orange-agent/internal/config"
)

// Client is the typed boundary to the external planning service. All methods
// surface failures as *Error; none of them retries on its own.
type Client interface {
	// Plan converts a transcript into an executable ActionPlan.
	Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.ActionPlan, error)
	// Simulate dry-runs a transcript, returning validity and risk with no
	// side effects.
	Simulate(ctx context.Context, req schemas.PlanSimulationRequest) (*schemas.PlanSimulationResponse, error)
	// Models returns static capability and routing metadata.
	Models(ctx context.Context) (*schemas.ModelsResponse, error)
	// Verify reports the planner's confidence that an executed plan achieved
	// its goal.
	Verify(ctx context.Context, req schemas.VerifyRequest) (*schemas.VerifyResponse, error)
	// Telemetry is fire-and-forget: failures are logged, never returned.
	Telemetry(ctx context.Context, event schemas.SessionTelemetryEvent)
	// StreamEvents opens the live event stream for one session. The events
	// channel closes when the remote side closes or ctx is cancelled; a
	// terminal stream error, if any, is delivered on the second channel.
	StreamEvents(ctx context.Context, sessionID string) (<-chan schemas.PlannerStreamEvent, <-chan error)
}

// HTTPClient talks JSON over loopback HTTP to the sidecar planning service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout: event streams stay open until the
	// session ends or the caller cancels.
	streamClient *http.Client
	logger       *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client against cfg.BaseURL.
func NewHTTPClient(cfg config.PlannerConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		streamClient: &http.Client{},
		logger:       logger.Named("planner_client"),
	}
}

// Plan requests a plan and validates it before handing it to the caller.
// Stamps the current schema version if the request carries none.
func (c *HTTPClient) Plan(ctx context.Context, req schemas.PlanRequest) (*schemas.ActionPlan, error) {
	const op = "plan"
	if req.SchemaVersion == 0 {
		req.SchemaVersion = schemas.SchemaVersionCurrent
	}
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}

	var plan schemas.ActionPlan
	if err := c.postJSON(ctx, op, "/v1/plan", req, &plan); err != nil {
		return nil, err
	}
	// The payload is untrusted: unknown kinds, duplicate ids, or a version
	// outside the supported window all fail closed here.
	if err := plan.Validate(); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}
	return &plan, nil
}

// Simulate dry-runs a transcript.
func (c *HTTPClient) Simulate(ctx context.Context, req schemas.PlanSimulationRequest) (*schemas.PlanSimulationResponse, error) {
	const op = "simulate"
	if req.SchemaVersion == 0 {
		req.SchemaVersion = schemas.SchemaVersionCurrent
	}
	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}

	var sim schemas.PlanSimulationResponse
	if err := c.postJSON(ctx, op, "/v1/plan/simulate", req, &sim); err != nil {
		return nil, err
	}
	if err := schemas.CheckSchemaVersion(sim.SchemaVersion); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}
	return &sim, nil
}

// Models fetches routing metadata.
func (c *HTTPClient) Models(ctx context.Context) (*schemas.ModelsResponse, error) {
	const op = "models"
	var models schemas.ModelsResponse
	if err := c.getJSON(ctx, op, "/v1/models", &models); err != nil {
		return nil, err
	}
	if err := schemas.CheckSchemaVersion(models.SchemaVersion); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}
	return &models, nil
}

// Verify asks for a post-execution judgement.
func (c *HTTPClient) Verify(ctx context.Context, req schemas.VerifyRequest) (*schemas.VerifyResponse, error) {
	const op = "verify"
	if req.SchemaVersion == 0 {
		req.SchemaVersion = schemas.SchemaVersionCurrent
	}

	var resp schemas.VerifyResponse
	if err := c.postJSON(ctx, op, "/v1/verify", req, &resp); err != nil {
		return nil, err
	}
	if err := schemas.CheckSchemaVersion(resp.SchemaVersion); err != nil {
		return nil, &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}
	return &resp, nil
}

// Telemetry posts one event and swallows any failure after logging it.
// Telemetry must never affect plan outcome.
func (c *HTTPClient) Telemetry(ctx context.Context, event schemas.SessionTelemetryEvent) {
	var ack struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	if err := c.postJSON(ctx, "telemetry", "/v1/telemetry", event, &ack); err != nil {
		c.logger.Warn("Telemetry delivery failed",
			zap.String("session_id", event.SessionID),
			zap.String("stage", event.Stage),
			zap.Error(err))
	}
}

// -- HTTP plumbing --

func (c *HTTPClient) postJSON(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: ErrKindSchema, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: ErrKindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &Error{Kind: ErrKindNetwork, Op: op, Err: err}
	}
	return c.do(op, req, out)
}

func (c *HTTPClient) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: transportKind(err), Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded slice of the body for the diagnostic.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Kind:       ErrKindStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: ErrKindDecode, Op: op, Err: err}
	}
	return nil
}

func transportKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindNetwork
}
