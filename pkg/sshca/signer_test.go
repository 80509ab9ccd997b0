package sshca

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/wisbric/wopr/pkg/types"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshSigner, err := ssh.NewSignerFromSigner(priv)
	require.NoError(t, err)
	return &Signer{signer: sshSigner}
}

func TestIssue_GeneratesEphemeralKeyWhenNoneSupplied(t *testing.T) {
	s := testSigner(t)
	cert, err := s.Issue(IssueRequest{Requester: "alice", BeaconID: "beacon-1", Tier: types.TierDiag}, 5*time.Minute)
	require.NoError(t, err)

	assert.NotEmpty(t, cert.PrivateKeyPEM)
	assert.Equal(t, []string{"wopr-diag"}, cert.Principals)
	assert.Equal(t, forcedShellWrapper, cert.ForceCommand)
	assert.Contains(t, cert.Identity, "alice")
	assert.Contains(t, cert.Identity, "diag")
	assert.Contains(t, cert.Identity, "beacon-1")
}

func TestIssue_UsesSuppliedPublicKey(t *testing.T) {
	s := testSigner(t)
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	authorizedKey := string(ssh.MarshalAuthorizedKey(sshPub))

	cert, err := s.Issue(IssueRequest{Requester: "bob", BeaconID: "beacon-1", Tier: types.TierRemediate, PublicKeySSH: authorizedKey}, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, cert.PrivateKeyPEM, "CA must not generate a key when the caller supplied one")
}

func TestPrincipalsByTier_Cumulative(t *testing.T) {
	assert.Equal(t, []string{"wopr-diag"}, principalsByTier(types.TierDiag))
	assert.Equal(t, []string{"wopr-diag", "wopr-remediate"}, principalsByTier(types.TierRemediate))
	assert.Equal(t, []string{"wopr-diag", "wopr-remediate", "wopr-breakglass", "root"}, principalsByTier(types.TierBreakglass))
}

func TestForceCommandByTier_BreakglassHasNone(t *testing.T) {
	assert.Equal(t, forcedShellWrapper, forceCommandByTier(types.TierDiag))
	assert.Equal(t, forcedShellWrapper, forceCommandByTier(types.TierRemediate))
	assert.Equal(t, "", forceCommandByTier(types.TierBreakglass))
}

func TestIssue_ValidityWindowMatchesRequest(t *testing.T) {
	s := testSigner(t)
	validity := 90 * time.Second
	before := time.Now()
	cert, err := s.Issue(IssueRequest{Requester: "alice", BeaconID: "beacon-1", Tier: types.TierDiag}, validity)
	require.NoError(t, err)

	assert.WithinDuration(t, before.Add(validity), cert.ValidBefore, 2*time.Second)
}

func TestRandomSerial_Is63Bit(t *testing.T) {
	serial, err := randomSerial()
	require.NoError(t, err)
	assert.Less(t, serial, uint64(1)<<63)
}
