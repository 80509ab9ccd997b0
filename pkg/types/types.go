// Package types holds the shared data model for the fleet remediation
// plane: the records produced by a beacon's analysis cycle, the registry
// and breakglass rows kept centrally by the gateway, and the certificates
// issued by the SSH CA.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the access level attached to an authenticated caller or a minted
// Certificate. Tiers are cumulative: remediate implies diag, breakglass
// implies remediate.
type Tier string

const (
	TierDiag       Tier = "diag"
	TierRemediate  Tier = "remediate"
	TierBreakglass Tier = "breakglass"
)

// Level returns a tier's position in the diag < remediate < breakglass
// hierarchy, for hierarchical comparisons. Zero means "not a known tier".
func (t Tier) Level() int {
	switch t {
	case TierDiag:
		return 1
	case TierRemediate:
		return 2
	case TierBreakglass:
		return 3
	default:
		return 0
	}
}

// DecisionTier is the outcome of classification + safety validation for one
// service's errors in one analysis cycle.
type DecisionTier string

const (
	DecisionAuto     DecisionTier = "auto"
	DecisionSuggest  DecisionTier = "suggest"
	DecisionEscalate DecisionTier = "escalate"
)

// ErrorSource identifies where an ErrorRecord was collected from.
type ErrorSource string

const (
	SourceJournal    ErrorSource = "journal"
	SourceAuditStore ErrorSource = "audit-store"
)

// Severity is the normalized level of an ErrorRecord.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ErrorRecord is one collected operational error. Created fresh on every
// collection pass, immutable, and discarded at the end of the cycle unless
// it contributed to an escalation's error_summary.
type ErrorRecord struct {
	Source    ErrorSource `json:"source"`
	Service   string      `json:"service"`
	Severity  Severity    `json:"severity"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`

	RequestPath   *string  `json:"request_path,omitempty"`
	RequestStatus *int     `json:"request_status,omitempty"`
	DurationMS    *float64 `json:"duration_ms,omitempty"`
}

// KnownPattern is one entry in the Pattern Matcher's ordered taxonomy. The
// taxonomy itself is a process-wide constant; see pkg/patternmatcher.
type KnownPattern struct {
	Name       string
	Regex      string
	Tier       DecisionTier
	Action     string
	Confidence float64
	Reasoning  string
}

// Decision is the outcome of classify() for one service, before or after
// the Safety Validator has run. Invariant: once validated, Tier == auto
// implies Action is in the Tier-1 allowlist, Confidence is at or above the
// configured floor, and Action contains no blocklist substring.
type Decision struct {
	Tier         DecisionTier `json:"tier"`
	Action       string       `json:"action"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
	Service      string       `json:"service"`
	ErrorPattern string       `json:"error_pattern"`
}

// RunStatus is the lifecycle state of an AnalysisRun.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// AnalysisRun is one full collect -> classify -> act/escalate pass on one
// beacon. Created at the start of a cycle in status running; completed or
// failed exactly once thereafter, then immutable.
type AnalysisRun struct {
	ID          uuid.UUID  `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
	ErrorsFound int        `json:"errors_found"`
	AutoFixed   int        `json:"auto_fixed"`
	Escalated   int        `json:"escalated"`
	Summary     string     `json:"summary"`
}

// EscalationStatus is the lifecycle state of an Escalation.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationApproved EscalationStatus = "approved"
	EscalationRejected EscalationStatus = "rejected"
	EscalationExpired  EscalationStatus = "expired"
)

// Escalation asks a human operator to approve a decision the engine refused
// to auto-execute. While pending and younger than 24h, a new escalation for
// the same (service, proposed_action) collapses into this row rather than
// inserting a second one.
type Escalation struct {
	ID             uuid.UUID        `json:"id"`
	AnalysisRunID  uuid.UUID        `json:"analysis_run_id"`
	CreatedAt      time.Time        `json:"created_at"`
	Tier           DecisionTier     `json:"tier"`
	Service        string           `json:"service"`
	ErrorSummary   string           `json:"error_summary"`
	ProposedAction string           `json:"proposed_action"`
	Confidence     float64          `json:"confidence"`
	Status         EscalationStatus `json:"status"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy     *string          `json:"resolved_by,omitempty"`
}

// IsDuplicateOf reports whether a freshly classified (service, action) pair
// should collapse into this escalation instead of creating a new one.
func (e Escalation) IsDuplicateOf(service, proposedAction string, now time.Time) bool {
	return e.Status == EscalationPending &&
		e.Service == service &&
		e.ProposedAction == proposedAction &&
		now.Sub(e.CreatedAt) < 24*time.Hour
}

// AutoActionLog is an append-only record of one Tier-1 execution attempt.
type AutoActionLog struct {
	ID            uuid.UUID `json:"id"`
	AnalysisRunID uuid.UUID `json:"analysis_run_id"`
	ExecutedAt    time.Time `json:"executed_at"`
	Service       string    `json:"service"`
	Action        string    `json:"action"`
	Success       bool      `json:"success"`
	Output        string    `json:"output"`
}

// BeaconStatus is the health state the registry assigns a Beacon.
type BeaconStatus string

const (
	BeaconOnline   BeaconStatus = "online"
	BeaconOffline  BeaconStatus = "offline"
	BeaconDegraded BeaconStatus = "degraded"
)

// Beacon is one registered fleet member, upserted on self-registration and
// refreshed on heartbeat.
type Beacon struct {
	BeaconID     string       `json:"beacon_id"`
	Domain       string       `json:"domain"`
	EngineURL    string       `json:"engine_url"`
	PublicIP     string       `json:"public_ip"`
	Bundle       string       `json:"bundle"`
	Version      string       `json:"version"`
	RegisteredAt time.Time    `json:"registered_at"`
	LastSeen     time.Time    `json:"last_seen"`
	Status       BeaconStatus `json:"status"`
}

// BreakglassStatus is the lifecycle state of a BreakglassSession.
type BreakglassStatus string

const (
	BreakglassActive  BreakglassStatus = "active"
	BreakglassRevoked BreakglassStatus = "revoked"
	BreakglassExpired BreakglassStatus = "expired"
)

// BreakglassSession is a time-bounded grant of breakglass-tier access. At
// most one active session may exist per (user, beacon).
type BreakglassSession struct {
	ID             uuid.UUID        `json:"id"`
	UserUID        string           `json:"user_uid"`
	UserName       string           `json:"user_name"`
	UserEmail      string           `json:"user_email"`
	TargetBeaconID string           `json:"target_beacon_id"`
	StartedAt      time.Time        `json:"started_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	Reason         string           `json:"reason"`
	Status         BreakglassStatus `json:"status"`
	SSHCertSerial  *uint64          `json:"ssh_cert_serial,omitempty"`
}

// AuditEntry is one append-only record of a privileged gateway action.
// Queryable only by the breakglass tier.
type AuditEntry struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	ActorUID       string         `json:"actor_uid"`
	ActorUsername  string         `json:"actor_username"`
	ActorEmail     string         `json:"actor_email"`
	Action         string         `json:"action"`
	TargetBeaconID *string        `json:"target_beacon_id,omitempty"`
	AccessTier     Tier           `json:"access_tier"`
	RequestMethod  string         `json:"request_method"`
	RequestPath    string         `json:"request_path"`
	BodyHash       string         `json:"body_hash"`
	ResponseStatus int            `json:"response_status"`
	DurationMS     float64        `json:"duration_ms"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Certificate is an issued, never-persisted SSH user certificate. Its
// serial is recorded on the related BreakglassSession when applicable.
type Certificate struct {
	Identity         string    `json:"identity"`
	Principals       []string  `json:"principals"`
	ValidAfter       time.Time `json:"valid_after"`
	ValidBefore      time.Time `json:"valid_before"`
	ForceCommand     string    `json:"force_command,omitempty"`
	Serial           uint64    `json:"serial"`
	PublicKeyOpenSSH string    `json:"public_key_openssh"`

	// PrivateKeyPEM is populated only when the CA generated the ephemeral
	// keypair itself (caller supplied no public key). Never logged, never
	// persisted.
	PrivateKeyPEM string `json:"private_key_pem,omitempty"`
}
