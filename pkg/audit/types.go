package audit

import (
	"encoding/json"
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	// Authorization events
	EventTypeAuthzDenied EventType = "authz.denied"

	// Permission administration
	EventTypeProfileCreate EventType = "permissions.profile_create"
	EventTypeProfileUpdate EventType = "permissions.profile_update"
	EventTypeProfileDelete EventType = "permissions.profile_delete"
	EventTypeProfileAssign EventType = "permissions.profile_assign"
	EventTypeSetCreate     EventType = "permissions.set_create"
	EventTypeSetDelete     EventType = "permissions.set_delete"
	EventTypeSetAssign     EventType = "permissions.set_assign"
	EventTypeSetRevoke     EventType = "permissions.set_revoke"

	// Tenancy administration
	EventTypeCompanyCreate EventType = "tenancy.company_create"
	EventTypeCompanyUpdate EventType = "tenancy.company_update"
	EventTypeCompanyDelete EventType = "tenancy.company_delete"
	EventTypeUserAssign    EventType = "tenancy.user_assign"
	EventTypeUserUnassign  EventType = "tenancy.user_unassign"

	// Record sharing
	EventTypeRuleCreate   EventType = "sharing.rule_create"
	EventTypeRuleDelete   EventType = "sharing.rule_delete"
	EventTypeRuleToggle   EventType = "sharing.rule_toggle"
	EventTypeShareCreate  EventType = "sharing.share_create"
	EventTypeShareRevoke  EventType = "sharing.share_revoke"

	// External chat identities
	EventTypeIdentityLink    EventType = "chat.identity_link"
	EventTypeIdentityUnlink  EventType = "chat.identity_unlink"
	EventTypeIdentityBlock   EventType = "chat.identity_block"
	EventTypeIdentityUnblock EventType = "chat.identity_unblock"
	EventTypeStrictModeSet   EventType = "chat.strict_mode_set"

	// User administration
	EventTypeUserProvision  EventType = "admin.user_provision"
	EventTypeUserApprove    EventType = "admin.user_approve"
	EventTypeUserDeactivate EventType = "admin.user_deactivate"
	EventTypeUserReactivate EventType = "admin.user_reactivate"
	EventTypeInviteCreate   EventType = "admin.invite_create"
	EventTypeInviteRedeem   EventType = "admin.invite_redeem"
)

// EventStatus is the outcome of the audited action.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	ActorID   *int64 `json:"actor_id,omitempty"`
	ActorName string `json:"actor_name,omitempty"`

	// Target
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Changes tracking (before/after for mutations)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for mutations.
type ChangeDetails struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter narrows an audit log query.
type SearchFilter struct {
	StartTime    *time.Time
	EndTime      *time.Time
	ActorID      *int64
	EventTypes   []EventType
	Status       *EventStatus
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}

// RetentionPolicy says how long entries are kept.
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy keeps entries for 90 days.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
