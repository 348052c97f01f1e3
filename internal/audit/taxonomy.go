package audit

import (
	"sort"
	"strings"
)

// EventType classifies what happened. The taxonomy is a closed enumeration
// grouped by domain; the recorder rejects anything outside it. Adding a new
// kind is additive only — existing values never change meaning, so stored
// signatures stay verifiable.
type EventType string

// Authentication lifecycle.
const (
	EventAuthLogin                 EventType = "auth.login"
	EventAuthLogout                EventType = "auth.logout"
	EventAuthRegister              EventType = "auth.register"
	EventAuthPasswordChange        EventType = "auth.password_change"
	EventAuthPasswordResetRequest  EventType = "auth.password_reset_request"
	EventAuthPasswordResetComplete EventType = "auth.password_reset_complete"
	EventAuthMFAEnabled            EventType = "auth.mfa_enabled"
	EventAuthMFADisabled           EventType = "auth.mfa_disabled"
	EventAuthMFAVerified           EventType = "auth.mfa_verified"
)

// Authorization decisions.
const (
	EventAuthzAccessDenied      EventType = "authz.access_denied"
	EventAuthzPermissionGranted EventType = "authz.permission_granted"
	EventAuthzPermissionRevoked EventType = "authz.permission_revoked"
	EventAuthzRoleAssigned      EventType = "authz.role_assigned"
)

// Data access and mutation.
const (
	EventDataAccessed EventType = "data.accessed"
	EventDataCreated  EventType = "data.created"
	EventDataUpdated  EventType = "data.updated"
	EventDataDeleted  EventType = "data.deleted"
	EventDataExported EventType = "data.exported"
)

// Billing activity. Payment processing itself lives elsewhere; these record
// its outcomes.
const (
	EventPaymentInitiated             EventType = "payment.initiated"
	EventPaymentCompleted             EventType = "payment.completed"
	EventPaymentFailed                EventType = "payment.failed"
	EventPaymentRefunded              EventType = "payment.refunded"
	EventPaymentSubscriptionCreated   EventType = "payment.subscription_created"
	EventPaymentSubscriptionUpdated   EventType = "payment.subscription_updated"
	EventPaymentSubscriptionCancelled EventType = "payment.subscription_cancelled"
)

// Security signals.
const (
	EventSecurityAlert              EventType = "security.alert"
	EventSecurityBreachAttempt      EventType = "security.breach_attempt"
	EventSecurityRateLimitExceeded  EventType = "security.rate_limit_exceeded"
	EventSecuritySuspiciousActivity EventType = "security.suspicious_activity"
	EventSecurityFailedLogin        EventType = "security.failed_login"
	EventSecurityAccountLocked      EventType = "security.account_locked"
)

// API surface activity.
const (
	EventAPIRequest       EventType = "api.request"
	EventAPIError         EventType = "api.error"
	EventAPIKeyCreated    EventType = "api.key_created"
	EventAPIKeyRevoked    EventType = "api.key_revoked"
	EventAPIWebhookFailed EventType = "api.webhook_failed"
)

// Administrative operations.
const (
	EventAdminAction           EventType = "admin.action"
	EventAdminConfigChanged    EventType = "admin.config_changed"
	EventAdminUserImpersonated EventType = "admin.user_impersonated"
)

var validEventTypes = map[EventType]struct{}{
	EventAuthLogin:                 {},
	EventAuthLogout:                {},
	EventAuthRegister:              {},
	EventAuthPasswordChange:        {},
	EventAuthPasswordResetRequest:  {},
	EventAuthPasswordResetComplete: {},
	EventAuthMFAEnabled:            {},
	EventAuthMFADisabled:           {},
	EventAuthMFAVerified:           {},

	EventAuthzAccessDenied:      {},
	EventAuthzPermissionGranted: {},
	EventAuthzPermissionRevoked: {},
	EventAuthzRoleAssigned:      {},

	EventDataAccessed: {},
	EventDataCreated:  {},
	EventDataUpdated:  {},
	EventDataDeleted:  {},
	EventDataExported: {},

	EventPaymentInitiated:             {},
	EventPaymentCompleted:             {},
	EventPaymentFailed:                {},
	EventPaymentRefunded:              {},
	EventPaymentSubscriptionCreated:   {},
	EventPaymentSubscriptionUpdated:   {},
	EventPaymentSubscriptionCancelled: {},

	EventSecurityAlert:              {},
	EventSecurityBreachAttempt:      {},
	EventSecurityRateLimitExceeded:  {},
	EventSecuritySuspiciousActivity: {},
	EventSecurityFailedLogin:        {},
	EventSecurityAccountLocked:      {},

	EventAPIRequest:       {},
	EventAPIError:         {},
	EventAPIKeyCreated:    {},
	EventAPIKeyRevoked:    {},
	EventAPIWebhookFailed: {},

	EventAdminAction:           {},
	EventAdminConfigChanged:    {},
	EventAdminUserImpersonated: {},
}

// Valid reports whether the event type is part of the taxonomy.
func (t EventType) Valid() bool {
	_, ok := validEventTypes[t]
	return ok
}

// Domain returns the taxonomy group, the part before the first dot.
func (t EventType) Domain() string {
	if domain, _, found := strings.Cut(string(t), "."); found {
		return domain
	}
	return string(t)
}

// EventTypes returns every valid event type in lexical order, for CLI
// listings and validation messages.
func EventTypes() []EventType {
	types := make([]EventType, 0, len(validEventTypes))
	for t := range validEventTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Severity grades an event's operational weight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is one of the known grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}
