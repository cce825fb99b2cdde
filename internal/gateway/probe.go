// Package gateway probes the downstream LLM gateway's model-inventory
// endpoint, the same contract as the original control service's
// wait_litellm_model, expressed in the teacher's HTTP-client idiom: a
// fixed-timeout http.Client wrapped by a small, interface-satisfying type.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zheng/gpuswitch/internal/retry"
)

// Sentinel errors the switch engine classifies into its own error kinds.
var (
	ErrAuth    = errors.New("gateway: authentication rejected")
	ErrTimeout = errors.New("gateway: timed out waiting for model")
)

// Prober polls a gateway model-inventory endpoint for a model id.
type Prober interface {
	WaitModel(ctx context.Context, modelName string, timeout time.Duration) error
}

// HTTPProbe is the production Prober, grounded in wait_litellm_model: GET
// the models URL with a bearer credential, parse {data:[{id,...},...]},
// search for modelName.
type HTTPProbe struct {
	modelsURL string
	apiKey    string
	interval  time.Duration
	client    *http.Client
}

// NewHTTPProbe builds an HTTPProbe against modelsURL, authenticating with
// apiKey and polling at the given interval.
func NewHTTPProbe(modelsURL, apiKey string, interval time.Duration) *HTTPProbe {
	return &HTTPProbe{
		modelsURL: modelsURL,
		apiKey:    apiKey,
		interval:  interval,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// WaitModel implements Prober.
func (p *HTTPProbe) WaitModel(ctx context.Context, modelName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	err := retry.Deadline(ctx, deadline, p.interval, func() (bool, error) {
		found, authFailed, err := p.checkOnce(ctx, modelName)
		if authFailed {
			return false, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		if err != nil {
			// transport error, non-2xx status other than 401/403, or a
			// parse failure: retry until deadline, matching the open
			// question this spec resolves for 5xx responses.
			return false, nil
		}
		return found, nil
	})

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s never appeared in gateway model inventory", ErrTimeout, modelName)
	}
	return err
}

// checkOnce performs a single poll. authFailed is true only for 401/403,
// which must fail the whole probe immediately rather than retry.
func (p *HTTPProbe) checkOnce(ctx context.Context, modelName string) (found, authFailed bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.modelsURL, nil)
	if err != nil {
		return false, false, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, true, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, false, err
	}

	for _, m := range body.Data {
		if m.ID == modelName {
			return true, false, nil
		}
	}
	return false, false, nil
}
