// Moderation records.
//
// This file defines the immutable records written whenever a moderator
// command or an automated classification changes persisted state: the
// ModerationAction row (one per dispatched command) and the AuditLogEntry
// row (the append-only system of record for "who did what").
//
// Action metadata is modelled as a tagged union keyed by action type, so each
// variant carries only the fields it needs instead of an open dictionary.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType enumerates the bounded set of moderator commands.
type ActionType string

const (
	ActionRemoveContent  ActionType = "REMOVE_CONTENT"
	ActionApproveContent ActionType = "APPROVE_CONTENT"
	ActionWarnUser       ActionType = "WARN_USER"
	ActionTempBan        ActionType = "TEMP_BAN"
	ActionPermBan        ActionType = "PERM_BAN"
	ActionUnban          ActionType = "UNBAN"
	ActionLockThread     ActionType = "LOCK_THREAD"
	ActionUnlockThread   ActionType = "UNLOCK_THREAD"
	ActionPinThread      ActionType = "PIN_THREAD"
	ActionUnpinThread    ActionType = "UNPIN_THREAD"
	ActionRoleChange     ActionType = "ROLE_CHANGE"
)

// Valid reports whether t is one of the known moderator commands.
func (t ActionType) Valid() bool {
	switch t {
	case ActionRemoveContent, ActionApproveContent, ActionWarnUser,
		ActionTempBan, ActionPermBan, ActionUnban,
		ActionLockThread, ActionUnlockThread,
		ActionPinThread, ActionUnpinThread, ActionRoleChange:
		return true
	}
	return false
}

// ActionMetadata is the tagged union of per-action payloads. Only the
// variants below implement it; the concrete variant is determined by the
// action type that owns it.
type ActionMetadata interface {
	isActionMetadata()
}

// TempBanMetadata carries the duration of a temporary ban.
type TempBanMetadata struct {
	DurationDays int `json:"duration_days"`
}

func (TempBanMetadata) isActionMetadata() {}

// RoleChangeMetadata records the transition applied by a ROLE_CHANGE command.
type RoleChangeMetadata struct {
	PreviousRole Role `json:"previous_role"`
	NewRole      Role `json:"new_role"`
}

func (RoleChangeMetadata) isActionMetadata() {}

// WarnMetadata carries the message delivered with a WARN_USER command.
type WarnMetadata struct {
	Message string `json:"message"`
}

func (WarnMetadata) isActionMetadata() {}

// EncodeActionMetadata serializes a metadata variant for storage on the
// action row. A nil metadata encodes as the empty string.
func EncodeActionMetadata(m ActionMetadata) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeActionMetadata reconstructs the metadata variant for the given action
// type. Action types without metadata return nil for an empty payload.
func DecodeActionMetadata(t ActionType, raw string) (ActionMetadata, error) {
	if raw == "" {
		return nil, nil
	}
	switch t {
	case ActionTempBan:
		var m TempBanMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		return m, nil
	case ActionRoleChange:
		var m RoleChangeMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		return m, nil
	case ActionWarnUser:
		var m WarnMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("action %s carries no metadata", t)
	}
}

// ModerationAction is the immutable record of one dispatched moderator
// command. Exactly one row is created per command; rows are never updated
// or deleted.
//
// The target columns are nullable because a command targets a user, a
// thread, a post, or some combination (e.g., REMOVE_CONTENT on a post also
// references the author).
type ModerationAction struct {
	ID           string     `json:"id"             gorm:"type:char(36);primaryKey"`
	Action       ActionType `json:"action"         gorm:"type:varchar(32);not null;index"`
	Reason       string     `json:"reason"         gorm:"type:varchar(500);not null"`
	Metadata     string     `json:"metadata,omitempty" gorm:"type:text"`
	ModeratorID  string     `json:"moderator_id"   gorm:"type:char(36);not null;index"`
	TargetUserID *string    `json:"target_user_id,omitempty" gorm:"type:char(36);index"`
	ThreadID     *string    `json:"thread_id,omitempty"      gorm:"type:char(36);index"`
	PostID       *string    `json:"post_id,omitempty"        gorm:"type:char(36);index"`
	CreatedAt    time.Time  `json:"created_at"     gorm:"index"`
}

// TableName returns the database table name for ModerationAction.
func (ModerationAction) TableName() string { return "moderation_actions" }

// AuditLogEntry is one append-only row in the audit ledger. Every state
// change made by the dispatcher and every classifier decision writes exactly
// one entry; entries are immutable once written.
//
// Changes holds a JSON payload with before/after values or decision
// metadata, depending on the action.
type AuditLogEntry struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Action     string    `json:"action"      gorm:"type:varchar(64);not null;index"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(32);not null"`
	EntityID   string    `json:"entity_id"   gorm:"type:char(36);not null;index"`
	ActorID    string    `json:"actor_id"    gorm:"type:char(36);not null;index"`
	Changes    string    `json:"changes"     gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"  gorm:"index"`
}

// TableName returns the database table name for AuditLogEntry.
func (AuditLogEntry) TableName() string { return "audit_log" }
