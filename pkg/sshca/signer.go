// Package sshca implements the short-lived SSH certificate authority
// (spec §4.6): it signs ephemeral user keys scoped to one of the three
// tiers, never persists a private key, and never persists a certificate.
package sshca

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wisbric/wopr/pkg/types"
)

const forcedShellWrapper = "/usr/local/bin/wopr-shell-wrapper"

// Signer holds the CA's long-lived keypair and issues certificates.
type Signer struct {
	signer ssh.Signer
}

// LoadSigner reads the CA private key from keyPath. The file must be
// readable only by the CA process (enforced by filesystem permissions set
// at deployment time, not by this code).
func LoadSigner(keyPath string) (*Signer, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing CA key: %w", err)
	}
	return &Signer{signer: signer}, nil
}

// PublicKeyAuthorizedFormat returns the CA's public key in
// authorized_keys format, for beacon TrustedUserCAKeys bootstrapping.
func (s *Signer) PublicKeyAuthorizedFormat() string {
	return string(ssh.MarshalAuthorizedKey(s.signer.PublicKey()))
}

// IssueRequest describes one certificate issuance.
type IssueRequest struct {
	Requester    string // forwarded identity UID/username
	BeaconID     string
	Tier         types.Tier
	PublicKeySSH string // optional, authorized_keys-format public key supplied by the caller
}

// ValidityByTier returns the certificate validity window for a tier.
func ValidityByTier(tier types.Tier, diag, remediate, breakglass time.Duration) time.Duration {
	switch tier {
	case types.TierDiag:
		return diag
	case types.TierRemediate:
		return remediate
	case types.TierBreakglass:
		return breakglass
	default:
		return 0
	}
}

// principalsByTier returns the cumulative principal set for a tier
// (spec §4.6: diag -> wopr-diag; remediate adds wopr-remediate;
// breakglass adds wopr-breakglass and root).
func principalsByTier(tier types.Tier) []string {
	switch tier {
	case types.TierDiag:
		return []string{"wopr-diag"}
	case types.TierRemediate:
		return []string{"wopr-diag", "wopr-remediate"}
	case types.TierBreakglass:
		return []string{"wopr-diag", "wopr-remediate", "wopr-breakglass", "root"}
	default:
		return nil
	}
}

// forceCommandByTier returns the forced shell command for a tier. Diag and
// remediate always run through a fixed wrapper; breakglass leaves the
// command unset (an interactive shell).
func forceCommandByTier(tier types.Tier) string {
	switch tier {
	case types.TierDiag, types.TierRemediate:
		return forcedShellWrapper
	default:
		return ""
	}
}

// Issue signs a new certificate per req, generating an ephemeral Ed25519
// keypair if req.PublicKeySSH is empty. validity must already account for
// tier and any caller-imposed cap (e.g. a breakglass session's remaining
// time).
func (s *Signer) Issue(req IssueRequest, validity time.Duration) (types.Certificate, error) {
	pubKey, privateKeyPEM, err := resolvePublicKey(req.PublicKeySSH)
	if err != nil {
		return types.Certificate{}, err
	}

	serial, err := randomSerial()
	if err != nil {
		return types.Certificate{}, fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	validBefore := now.Add(validity)
	principals := principalsByTier(req.Tier)
	forceCommand := forceCommandByTier(req.Tier)
	identity := fmt.Sprintf("%s:%s:%s", req.Requester, req.Tier, req.BeaconID)

	cert := &ssh.Certificate{
		Key:             pubKey,
		Serial:          serial,
		CertType:        ssh.UserCert,
		KeyId:           identity,
		ValidPrincipals: principals,
		ValidAfter:      uint64(now.Unix()),
		ValidBefore:     uint64(validBefore.Unix()),
		Permissions: ssh.Permissions{
			CriticalOptions: map[string]string{},
			Extensions:      map[string]string{},
		},
	}
	if forceCommand != "" {
		cert.Permissions.CriticalOptions["force-command"] = forceCommand
	}
	// No agent forwarding, no port forwarding, no X11 forwarding: simply
	// omit their permit-* extensions rather than setting and clearing them.

	if err := cert.SignCert(rand.Reader, s.signer); err != nil {
		return types.Certificate{}, fmt.Errorf("signing certificate: %w", err)
	}

	return types.Certificate{
		Identity:         identity,
		Principals:       principals,
		ValidAfter:       now,
		ValidBefore:      validBefore,
		ForceCommand:     forceCommand,
		Serial:           serial,
		PublicKeyOpenSSH: string(ssh.MarshalAuthorizedKey(cert)),
		PrivateKeyPEM:    privateKeyPEM,
	}, nil
}

// resolvePublicKey parses the caller-supplied public key, or generates a
// fresh ephemeral Ed25519 keypair when none was supplied.
func resolvePublicKey(authorizedKey string) (ssh.PublicKey, string, error) {
	if authorizedKey != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
		if err != nil {
			return nil, "", fmt.Errorf("parsing supplied public key: %w", err)
		}
		return pub, "", nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generating ephemeral keypair: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, "", fmt.Errorf("converting ephemeral public key: %w", err)
	}

	block, err := ed25519PEMBlock(priv)
	if err != nil {
		return nil, "", fmt.Errorf("encoding ephemeral private key: %w", err)
	}
	return sshPub, string(pem.EncodeToMemory(block)), nil
}

// ed25519PEMBlock encodes a raw Ed25519 private key as a PKCS#8 PEM block.
func ed25519PEMBlock(priv ed25519.PrivateKey) (*pem.Block, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return &pem.Block{Type: "PRIVATE KEY", Bytes: der}, nil
}

// randomSerial returns a fresh 63-bit random serial (spec §4.6).
func randomSerial() (uint64, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 63)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}
