package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wisbric/wopr/pkg/types"
)

func TestSanitizeServiceName_AcceptsSimpleUnitName(t *testing.T) {
	name, err := SanitizeServiceName("nginx.service")
	assert.NoError(t, err)
	assert.Equal(t, "nginx.service", name)
}

func TestSanitizeServiceName_RejectsShellMetacharacters(t *testing.T) {
	_, err := SanitizeServiceName("nginx; rm -rf /")
	assert.Error(t, err)
}

func TestSanitizeServiceName_RejectsEmpty(t *testing.T) {
	_, err := SanitizeServiceName("")
	assert.Error(t, err)
}

func TestSanitizeSinceExpression_DefaultsToTenMinutes(t *testing.T) {
	since, err := SanitizeSinceExpression("")
	assert.NoError(t, err)
	assert.Equal(t, "10m", since)
}

func TestSanitizeSinceExpression_AcceptsBoundedWindow(t *testing.T) {
	since, err := SanitizeSinceExpression("1h")
	assert.NoError(t, err)
	assert.Equal(t, "1h", since)
}

func TestSanitizeSinceExpression_RejectsArbitraryExpression(t *testing.T) {
	_, err := SanitizeSinceExpression("2026-01-01 00:00:00")
	assert.Error(t, err)
}

func TestQuoteArgv_JoinsWithSpaces(t *testing.T) {
	assert.Equal(t, "journalctl -u nginx.service --since -10m --no-pager", quoteArgv([]string{"journalctl", "-u", "nginx.service", "--since", "-10m", "--no-pager"}))
}

func TestRemoteUser_FallsBackWhenNoPrincipals(t *testing.T) {
	assert.Equal(t, "wopr-diag", remoteUser(&types.Certificate{}))
}
