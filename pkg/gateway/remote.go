package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/wisbric/wopr/pkg/types"
)

const sshDialTimeout = 10 * time.Second

// serviceNamePattern sanitizes a service name accepted from a diagnostics
// request before it ever reaches a remote command line.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// sinceExpressionPattern bounds the log-tail "since" expression to a small,
// safe grammar (e.g. "10m", "1h", "30s") rather than accepting an arbitrary
// journalctl/date string.
var sinceExpressionPattern = regexp.MustCompile(`^[0-9]{1,4}[smh]$`)

// SanitizeServiceName validates a caller-supplied service name.
func SanitizeServiceName(name string) (string, error) {
	if !serviceNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid service name %q", name)
	}
	return name, nil
}

// SanitizeSinceExpression validates a caller-supplied log-tail window.
func SanitizeSinceExpression(since string) (string, error) {
	if since == "" {
		return "10m", nil
	}
	if !sinceExpressionPattern.MatchString(since) {
		return "", fmt.Errorf("invalid since expression %q", since)
	}
	return since, nil
}

// RemoteRunner executes a fixed argv on a beacon over SSH, authenticated
// with a certificate freshly minted by the CA. It never invokes a remote
// shell with an interpolated string — argv is passed to the remote
// command directly, and for diag/remediate tiers the beacon's forced
// command wrapper only ever sees this exact argv.
type RemoteRunner struct{}

// NewRemoteRunner builds a RemoteRunner.
func NewRemoteRunner() *RemoteRunner { return &RemoteRunner{} }

// Run dials the beacon's SSH daemon using the given certificate and
// ephemeral private key, then runs argv as a single remote command.
func (r *RemoteRunner) Run(ctx context.Context, beacon types.Beacon, cert *types.Certificate, argv []string) (string, error) {
	signer, err := certSigner(cert)
	if err != nil {
		return "", fmt.Errorf("building cert signer: %w", err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            remoteUser(cert),
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TrustedUserCAKeys governs the user side; host trust is provisioned out of band
		Timeout:         sshDialTimeout,
	}

	dialer := net.Dialer{Timeout: sshDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(beacon.Domain, "22"))
	if err != nil {
		return "", fmt.Errorf("dialing beacon: %w", err)
	}
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, beacon.Domain, clientConfig)
	if err != nil {
		return "", fmt.Errorf("establishing SSH connection: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening SSH session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	// The forced-command wrapper on diag/remediate certs ignores whatever
	// command string is sent and runs the fixed wrapper instead; argv is
	// still passed so a breakglass (unforced) cert runs exactly this.
	if err := session.Run(quoteArgv(argv)); err != nil {
		return out.String(), fmt.Errorf("remote command failed: %w", err)
	}
	return out.String(), nil
}

func remoteUser(cert *types.Certificate) string {
	if len(cert.Principals) == 0 {
		return "wopr-diag"
	}
	return cert.Principals[0]
}

// quoteArgv joins argv into a single command line for the SSH "exec"
// request. Every element originates from a sanitized template
// substitution (renderToken) or a fixed catalogue entry, never raw user
// input, so simple space-joining is safe here — this is not a shell
// invocation, it is the literal command string.
func quoteArgv(argv []string) string {
	return strings.Join(argv, " ")
}

func certSigner(cert *types.Certificate) (ssh.Signer, error) {
	if cert.PrivateKeyPEM == "" {
		return nil, fmt.Errorf("certificate has no associated private key")
	}
	keySigner, err := ssh.ParsePrivateKey([]byte(cert.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parsing ephemeral private key: %w", err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cert.PublicKeyOpenSSH))
	if err != nil {
		return nil, fmt.Errorf("parsing issued certificate: %w", err)
	}
	sshCert, ok := pub.(*ssh.Certificate)
	if !ok {
		return nil, fmt.Errorf("issued key is not a certificate")
	}
	return ssh.NewCertSigner(sshCert, keySigner)
}
