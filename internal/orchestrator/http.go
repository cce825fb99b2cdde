package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPort drives a Docker Engine API reachable through a socket-proxy
// URL, the same shape as docker_request/container_json/container_start/
// container_stop in the original control service: one HTTP call per
// verb, against a fixed base URL, with a configurable per-call timeout.
type HTTPPort struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPort builds an HTTPPort against baseURL (e.g.
// "http://docker-proxy:2375") with the given per-call timeout.
func NewHTTPPort(baseURL string, timeout time.Duration) *HTTPPort {
	return &HTTPPort{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type dockerContainerState struct {
	Status string `json:"Status"`
	Health *struct {
		Status string `json:"Status"`
	} `json:"Health"`
}

type dockerInspectResponse struct {
	State dockerContainerState `json:"State"`
}

// Inspect implements Port.
func (p *HTTPPort) Inspect(ctx context.Context, container string) (ContainerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/containers/%s/json", p.baseURL, container), nil)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ContainerInfo{Exists: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return ContainerInfo{}, fmt.Errorf("%w: inspect %s: status %d", ErrTransport, container, resp.StatusCode)
	}

	var body dockerInspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ContainerInfo{}, fmt.Errorf("%w: decode inspect %s: %v", ErrTransport, container, err)
	}

	health := ""
	if body.State.Health != nil {
		health = body.State.Health.Status
	}
	return ContainerInfo{
		Exists: true,
		Status: body.State.Status,
		Health: health,
	}, nil
}

// Start implements Port.
func (p *HTTPPort) Start(ctx context.Context, container string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/containers/%s/start", p.baseURL, container), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, container)
	default:
		return fmt.Errorf("%w: start %s: status %d", ErrTransport, container, resp.StatusCode)
	}
}

// Stop implements Port. A container that is already stopped or does not
// exist is treated as success, matching the original's 404-as-success
// path for idempotent teardown.
func (p *HTTPPort) Stop(ctx context.Context, container string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/containers/%s/stop", p.baseURL, container), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotModified, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("%w: stop %s: status %d", ErrTransport, container, resp.StatusCode)
	}
}
