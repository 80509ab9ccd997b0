package sshca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wisbric/wopr/pkg/types"
)

// requestTimeout bounds a gateway -> CA sign call.
const requestTimeout = 10 * time.Second

// Client is the gateway-side HTTP client for the CA's /api/v1/sign
// endpoint (spec §6.2: "the gateway requests a breakglass cert from the
// CA on the same request").
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: requestTimeout}}
}

// SignRequest mirrors signRequest's wire shape on the gateway side.
type SignRequest struct {
	BeaconID            string `json:"beacon_id"`
	Tier                string `json:"tier"`
	PublicKey           string `json:"public_key,omitempty"`
	BreakglassSessionID string `json:"breakglass_session_id,omitempty"`
}

// Sign calls the CA to issue a certificate, forwarding the caller's
// identity headers so the CA's own auth middleware can authorize the tier.
func (c *Client) Sign(ctx context.Context, identityHeaders map[string]string, req SignRequest) (*types.Certificate, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building sign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range identityHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling CA: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CA returned status %d", resp.StatusCode)
	}

	var cert types.Certificate
	if err := json.NewDecoder(resp.Body).Decode(&cert); err != nil {
		return nil, fmt.Errorf("decoding CA response: %w", err)
	}
	return &cert, nil
}
