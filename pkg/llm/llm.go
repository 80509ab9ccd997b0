// Package llm implements the outbound LLM inference contract (spec §6.4):
// a single opaque JSON-mode HTTP request/response. The inference service
// itself is an external collaborator; this package only shapes the request
// and parses the reply defensively — any timeout, non-2xx, or malformed
// JSON yields a nil decision, never an error that could escalate into the
// scheduler.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/wopr/pkg/types"
)

const requestTimeout = 20 * time.Second

// Client calls an Ollama-style JSON-mode inference endpoint.
type Client struct {
	BaseURL string
	Model   string
	http    *http.Client
}

// New builds a Client targeting baseURL (OLLAMA_URL) with the given model
// (OLLAMA_MODEL).
func New(baseURL, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type inferRequest struct {
	Model   string  `json:"model"`
	System  string  `json:"system"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Format  string  `json:"format"`
	Options options `json:"options"`
}

type inferResponse struct {
	Response string `json:"response"`
}

// rawDecision mirrors the expected JSON shape of the model's response
// field, before defaulting. Every field is optional — the model is
// untrusted.
type rawDecision struct {
	Tier         *string  `json:"tier"`
	Action       *string  `json:"action"`
	Confidence   *float64 `json:"confidence"`
	Reasoning    *string  `json:"reasoning"`
	Service      *string  `json:"service"`
	ErrorPattern *string  `json:"error_pattern"`
}

const systemPrompt = `You classify operational errors for a fleet remediation system. ` +
	`Respond with a single JSON object: {"tier": "auto"|"suggest"|"escalate", ` +
	`"action": string, "confidence": number between 0 and 1, "reasoning": string, ` +
	`"service": string, "error_pattern": string}. No prose, no markdown fences.`

// Classify issues a single classification request for service's recent
// error digest (already capped by the caller at 10 records). It returns
// (nil, false) on any failure — timeout, non-2xx, transport error, or a
// reply that cannot be parsed into a usable decision — and the Analysis
// Engine simply skips that service for the cycle.
func (c *Client) Classify(ctx context.Context, service, digest string) (*types.Decision, bool) {
	body := inferRequest{
		Model:  c.Model,
		System: systemPrompt,
		Prompt: fmt.Sprintf("service: %s\nerrors:\n%s", service, digest),
		Stream: false,
		Format: "json",
		Options: options{
			Temperature: 0.1,
			NumPredict:  256,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}

	var wrapper inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, false
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(wrapper.Response), &raw); err != nil {
		return nil, false
	}

	return applyDefaults(service, raw), true
}

// applyDefaults fills in the spec-mandated defaults for any field the
// model omitted: tier=escalate, action=investigate, confidence=0.5.
func applyDefaults(service string, raw rawDecision) *types.Decision {
	d := &types.Decision{
		Tier:       types.DecisionEscalate,
		Action:     "investigate",
		Confidence: 0.5,
		Service:    service,
	}
	if raw.Tier != nil {
		switch types.DecisionTier(*raw.Tier) {
		case types.DecisionAuto, types.DecisionSuggest, types.DecisionEscalate:
			d.Tier = types.DecisionTier(*raw.Tier)
		case "tier1_auto":
			d.Tier = types.DecisionAuto
		}
	}
	if raw.Action != nil && *raw.Action != "" {
		d.Action = *raw.Action
	}
	if raw.Confidence != nil {
		conf := *raw.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		d.Confidence = conf
	}
	if raw.Reasoning != nil {
		d.Reasoning = *raw.Reasoning
	}
	if raw.ErrorPattern != nil {
		d.ErrorPattern = *raw.ErrorPattern
	}
	return d
}
