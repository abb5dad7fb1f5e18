// Package audit provides security audit logging for SIEM consumption.
// Access denials and membership changes are logged as structured events
// under the "security_audit" logger.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	EventAccessDenied      SecurityEventType = "access_denied"
	EventMemberAdded       SecurityEventType = "member_added"
	EventMemberRoleChanged SecurityEventType = "member_role_changed"
	EventMemberRemoved     SecurityEventType = "member_removed"
	EventProjectCreated    SecurityEventType = "project_created"
	EventProjectDeleted    SecurityEventType = "project_deleted"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ProjectID int64             `json:"project_id"`
	Actor     string            `json:"actor,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"` // info, warning
}

// MembershipDetails describes the membership a change applied to.
type MembershipDetails struct {
	MembershipID int64  `json:"membership_id"`
	UserEmail    string `json:"user_email"`
	Role         string `json:"role,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// ObserveDecision logs denied authorization decisions. Allowed decisions are
// too frequent to audit and are only counted by metrics.
func (a *SecurityAuditor) ObserveDecision(ctx context.Context, action authz.Action, pc *authz.ProjectContext, decision authz.Decision) {
	if decision == authz.Allow {
		return
	}

	actor := pc.UserEmail()
	if actor == "" {
		actor = auth.GetUserEmailFromContext(ctx)
	}

	a.log(ctx, SecurityEvent{
		EventType: EventAccessDenied,
		ProjectID: pc.ProjectID(),
		Actor:     actor,
		Details: map[string]string{
			"action": string(action),
			"role":   string(pc.Role()),
		},
		Severity: "warning",
	}, "Access denied")
}

// LogMembershipChange records a membership being added, re-roled or removed.
func (a *SecurityAuditor) LogMembershipChange(ctx context.Context, eventType SecurityEventType, projectID int64, details MembershipDetails) {
	a.log(ctx, SecurityEvent{
		EventType: eventType,
		ProjectID: projectID,
		Actor:     auth.GetUserEmailFromContext(ctx),
		Details:   details,
		Severity:  "info",
	}, "Project membership changed")
}

// LogProjectLifecycle records a project being created or deleted.
func (a *SecurityAuditor) LogProjectLifecycle(ctx context.Context, eventType SecurityEventType, projectID int64) {
	a.log(ctx, SecurityEvent{
		EventType: eventType,
		ProjectID: projectID,
		Actor:     auth.GetUserEmailFromContext(ctx),
		Severity:  "info",
	}, "Project lifecycle event")
}

func (a *SecurityAuditor) log(ctx context.Context, event SecurityEvent, msg string) {
	event.ID = uuid.New()
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)

	// Marshaling known types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.Int64("project_id", event.ProjectID),
		zap.String("actor", event.Actor),
		zap.String("severity", event.Severity),
	}
	if event.Severity == "warning" {
		a.logger.Warn(msg, fields...)
		return
	}
	a.logger.Info(msg, fields...)
}

// Ensure SecurityAuditor observes authorization decisions.
var _ authz.DecisionObserver = (*SecurityAuditor)(nil)
