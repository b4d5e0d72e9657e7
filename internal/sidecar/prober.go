package sidecar

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HealthProber performs one liveness check against the planning service.
type HealthProber interface {
	Probe(ctx context.Context) error
}

// HTTPProber checks the sidecar's /health endpoint, expecting HTTP 200
// within a short per-probe timeout.
type HTTPProber struct {
	url    string
	client *http.Client
}

var _ HealthProber = (*HTTPProber)(nil)

// NewHTTPProber builds a prober for baseURL with the given per-probe timeout.
func NewHTTPProber(baseURL string, probeTimeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url:    baseURL + "/health",
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Probe returns nil when the service answers 200.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}
