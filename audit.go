package goIdentity

import (
	"io"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/flows"
)

// AuditEvent is one security-relevant outcome. Failed attempts are recorded
// with Success false.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit must not block for long; the engine
// calls it from the dispatcher goroutine or inline on the request path.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	MultiSink      = audit.MultiSink
)

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

// Audit actions.
const (
	AuditLogin                  = flows.ActionLogin
	AuditAccountLocked          = flows.ActionAccountLocked
	AuditRegister               = flows.ActionRegister
	AuditEmailConfirmed         = flows.ActionEmailConfirmed
	AuditLogout                 = flows.ActionLogout
	AuditTokenRevoked           = flows.ActionTokenRevoked
	AuditRefreshReuse           = flows.ActionRefreshReuse
	AuditPasswordResetRequested = flows.ActionPasswordResetSent
	AuditPasswordReset          = flows.ActionPasswordReset
	AuditPasswordChanged        = flows.ActionPasswordChanged
	AuditMfaSetup               = flows.ActionMfaSetup
	AuditMfaEnabled             = flows.ActionMfaEnabled
	AuditTotpFailed             = flows.ActionTotpFailed
	AuditMfaVerify              = flows.ActionMfaVerify
	AuditMfaDisabled            = flows.ActionMfaDisabled
	AuditBackupCodesRegenerated = flows.ActionBackupRegenerated
	AuditEmailOtpSent           = flows.ActionEmailOtpSent
)
