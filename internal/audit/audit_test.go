package audit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBody_EmptyBodyHashesToEmptyString(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", hashBody(r))
}

func TestHashBody_RestoresBodyForDownstreamHandler(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"foo":"bar"}`))
	hash := hashBody(r)
	assert.NotEmpty(t, hash)

	body := make([]byte, 13)
	n, _ := r.Body.Read(body)
	assert.Equal(t, `{"foo":"bar"}`, string(body[:n]))
}

func TestHashBody_StableForIdenticalContent(t *testing.T) {
	r1 := httptest.NewRequest("POST", "/", strings.NewReader("same content"))
	r2 := httptest.NewRequest("POST", "/", strings.NewReader("same content"))
	assert.Equal(t, hashBody(r1), hashBody(r2))
}

func TestRouteTemplate_CollapsesIDSegments(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/beacons/edge-host-7a3f1c/health", nil)
	assert.Equal(t, "/api/v1/beacons/{id}/health", routeTemplate(r))
}

func TestRouteTemplate_LeavesShortSegmentsAlone(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/remediation", nil)
	assert.Equal(t, "/api/v1/remediation", routeTemplate(r))
}

func TestBeaconIDFromPath_ExtractsIDAfterBeaconsSegment(t *testing.T) {
	assert.Equal(t, "edge-host-1", beaconIDFromPath("/api/v1/beacons/edge-host-1/health"))
}

func TestBeaconIDFromPath_EmptyWhenNoBeaconsSegment(t *testing.T) {
	assert.Equal(t, "", beaconIDFromPath("/api/v1/remediation"))
}
