package authsession

import (
	"context"
	"io"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/session"
)

// AuditEvent is one session lifecycle record. Credentials never appear in it.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the client's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = internalaudit.SinkFunc

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

type JSONWriterSink = internalaudit.JSONWriterSink

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// TypeFilterSink forwards a subset of event types to another sink.
type TypeFilterSink = internalaudit.TypeFilterSink

// NewTypeFilterSink returns a sink that passes only the listed types to next,
// for example AuditForcedSignOut and AuditPersistenceFailure for alerting.
func NewTypeFilterSink(next AuditSink, types ...string) *TypeFilterSink {
	return internalaudit.NewTypeFilterSink(next, types...)
}

const (
	AuditSessionRestored     = "session_restored"
	AuditSessionEstablished  = "session_established"
	AuditSessionCleared      = "session_cleared"
	AuditPersistenceFailure  = "persistence_failure"
	AuditRevokeFailure       = "revoke_failure"
	AuditLoginSuccess        = "login_success"
	AuditLoginFailure        = "login_failure"
	AuditRegisterSuccess     = "register_success"
	AuditRegisterFailure     = "register_failure"
	AuditRefreshSuccess      = "refresh_success"
	AuditRefreshFailure      = "refresh_failure"
	AuditForcedSignOut       = "forced_sign_out"
	AuditLogout              = "logout"
	AuditPasswordResetAsk    = "password_reset_request"
	AuditPasswordResetDone   = "password_reset_confirm"
	AuditProfileSynchronized = "profile_sync"
)

func (c *Client) emitAudit(ctx context.Context, eventType string, success bool, snap session.Snapshot, err error, metadata map[string]string) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		Type:     eventType,
		Phase:    snap.Phase.String(),
		Version:  snap.Version,
		Success:  success,
		Metadata: metadata,
	}
	if snap.User != nil {
		event.UserID = string(snap.User.ID)
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.audit.Emit(ctx, event)
}

// sessionHooks routes session transitions into metrics, audit and the log.
func (c *Client) sessionHooks() session.Hooks {
	return session.Hooks{
		Restored: func(ctx context.Context, snap session.Snapshot, outcome session.RestoreOutcome) {
			switch outcome {
			case session.RestoreAuthenticated:
				c.metricInc(MetricSessionRestored)
			case session.RestoreCorrupt:
				c.metricInc(MetricSessionCorrupt)
				c.metricInc(MetricSessionRestoredAnonymous)
				c.logf("discarded an incomplete session record")
			default:
				c.metricInc(MetricSessionRestoredAnonymous)
			}
			c.emitAudit(ctx, AuditSessionRestored, true, snap, nil, map[string]string{"outcome": outcome.String()})
		},
		Established: func(ctx context.Context, snap session.Snapshot) {
			c.metricInc(MetricSessionEstablished)
			meta := map[string]string{}
			if !snap.Durable {
				meta["durable"] = "false"
			}
			c.emitAudit(ctx, AuditSessionEstablished, true, snap, nil, meta)
		},
		Cleared: func(ctx context.Context, prev session.Snapshot) {
			c.metricInc(MetricSessionCleared)
			c.emitAudit(ctx, AuditSessionCleared, true, prev, nil, nil)
		},
		PersistenceFailure: func(ctx context.Context, snap session.Snapshot, op string, err error) {
			c.metricInc(MetricPersistenceFailure)
			c.logf("session %s: %v", op, err)
			c.emitAudit(ctx, AuditPersistenceFailure, false, snap, err, map[string]string{"op": op})
		},
		RevokeFailure: func(ctx context.Context, err error) {
			c.metricInc(MetricRevokeFailure)
			c.logf("revoke refresh credential: %v", err)
			c.emitAudit(ctx, AuditRevokeFailure, false, c.session.Snapshot(), err, nil)
		},
	}
}
