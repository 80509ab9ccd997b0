package breakglass

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/pkg/types"
)

func TestHandleOpen_RejectsShortReason(t *testing.T) {
	h := NewHandler(nil, nil, 0, 0, nil)
	body, _ := json.Marshal(openRequest{BeaconID: "beacon-1", Reason: "too short"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := auth.NewContext(req.Context(), &auth.Identity{UID: "u-1", Tier: types.TierBreakglass})
	rec := httptest.NewRecorder()

	h.handleOpen(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOpen_RejectsMissingIdentity(t *testing.T) {
	h := NewHandler(nil, nil, 0, 0, nil)
	body, _ := json.Marshal(openRequest{BeaconID: "beacon-1", Reason: "a perfectly good reason string"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.handleOpen(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRevoke_RejectsInvalidID(t *testing.T) {
	h := NewHandler(nil, nil, 0, 0, nil)
	req := httptest.NewRequest(http.MethodPost, "/not-a-uuid/revoke", nil)
	rec := httptest.NewRecorder()

	router := h.Routes()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForwardedHeaders_CopiesKnownHeadersOnly(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Authentik-UID", "u-1")
	req.Header.Set("X-Authentik-Groups", "wopr-breakglass")
	req.Header.Set("X-Irrelevant", "ignore-me")

	headers := forwardedHeaders(req)
	assert.Equal(t, "u-1", headers["X-Authentik-UID"])
	assert.Equal(t, "wopr-breakglass", headers["X-Authentik-Groups"])
	_, hasIrrelevant := headers["X-Irrelevant"]
	assert.False(t, hasIrrelevant)
}
