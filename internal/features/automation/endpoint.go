package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/config"
)

// AutomationEndpoint performs the external work named by a call: action.
type AutomationEndpoint interface {
	Call(ctx context.Context, tenantID, caseID, endpoint string, params map[string]any) (map[string]any, error)
}

// HTTPEndpoint posts to <BaseURL>/<endpoint>.
type HTTPEndpoint struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

func NewHTTPEndpoint(cfg *config.Config) *HTTPEndpoint {
	return &HTTPEndpoint{
		BaseURL:    strings.TrimRight(cfg.AutomationBaseURL, "/"),
		APIKey:     cfg.AutomationAPIKey,
		httpClient: &http.Client{Timeout: cfg.AutomationTimeout},
	}
}

type callPayload struct {
	TenantID string         `json:"tenant_id"`
	CaseID   string         `json:"case_id"`
	Params   map[string]any `json:"params"`
}

func (h *HTTPEndpoint) Call(ctx context.Context, tenantID, caseID, endpoint string, params map[string]any) (map[string]any, error) {
	if h.BaseURL == "" {
		return nil, fmt.Errorf("automation base url is not configured")
	}

	body, err := json.Marshal(callPayload{TenantID: tenantID, CaseID: caseID, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal automation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/"+strings.TrimLeft(endpoint, "/"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create automation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("X-API-Key", h.APIKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("automation endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("automation endpoint %s: read response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("automation endpoint %s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	result := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("automation endpoint %s: decode response: %w", endpoint, err)
		}
	}
	return result, nil
}
