// Package domain defines the persistence models for users, threads, posts,
// moderation actions, and audit log entries. These types are mapped with GORM
// and form the core data layer of the forum backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Role is the ordered membership level of a user account.
//
// The hierarchy is a total order: VISITOR < MEMBER < MODERATOR < ADMIN.
// Ordinal comparison lives in the access package; the domain layer only
// stores the value.
type Role string

const (
	RoleVisitor   Role = "VISITOR"
	RoleMember    Role = "MEMBER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// ContentStatus is the shared publication lifecycle of threads and posts.
type ContentStatus string

const (
	StatusPublished   ContentStatus = "PUBLISHED"
	StatusQuarantined ContentStatus = "QUARANTINED"
	StatusRemoved     ContentStatus = "REMOVED"
	StatusDeleted     ContentStatus = "DELETED"
)

// AICheckResult is the automated classification verdict attached to content.
// An empty value means the content has not been through the classifier.
type AICheckResult string

const (
	AIPass    AICheckResult = "PASS"
	AIFlagged AICheckResult = "FLAGGED"
	AIBlocked AICheckResult = "BLOCKED"
)

// User represents a forum account. Ban state is held directly on the row and
// is mutated only through the ban lifecycle service; the ban predicate itself
// (bannedAt set AND (bannedUntil null OR in the future)) is recomputed on
// every check, never cached.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Username: unique display handle.
//   - Role: membership level (see Role).
//   - BannedAt: when the current ban was applied; nil when not banned.
//   - BannedUntil: ban expiry; nil together with a set BannedAt means permanent.
//   - BannedReason: moderator-supplied reason shown to the user.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker (retains row for audit/history).
type User struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Username     string         `json:"username"      gorm:"type:varchar(64);not null;uniqueIndex"`
	Role         Role           `json:"role"          gorm:"type:varchar(16);not null;default:'MEMBER';check:role IN ('VISITOR','MEMBER','MODERATOR','ADMIN')"`
	BannedAt     *time.Time     `json:"banned_at,omitempty"`
	BannedUntil  *time.Time     `json:"banned_until,omitempty"`
	BannedReason *string        `json:"banned_reason,omitempty" gorm:"type:varchar(500)"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Thread represents a top-level discussion. Threads carry moderation state
// (lock/pin) in addition to the shared content lifecycle.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - AuthorID: identifier of the thread creator; indexed for retrieval.
//   - Title / Body: authored content.
//   - Status: publication lifecycle (see ContentStatus).
//   - AICheckResult: automated classification verdict, empty until checked.
//   - IsLocked: locked threads accept no new posts.
//   - IsPinned: pinned threads sort to the top of listings.
type Thread struct {
	ID            string         `json:"id"         gorm:"type:char(36);primaryKey"`
	AuthorID      string         `json:"author_id"  gorm:"type:char(36);not null;index:idx_author_threads"`
	Title         string         `json:"title"      gorm:"type:varchar(255);not null"`
	Body          string         `json:"body"       gorm:"type:text;not null"`
	Status        ContentStatus  `json:"status"     gorm:"type:varchar(16);not null;default:'PUBLISHED';index"`
	AICheckResult AICheckResult  `json:"ai_check_result,omitempty" gorm:"type:varchar(16)"`
	IsLocked      bool           `json:"is_locked"  gorm:"not null;default:false"`
	IsPinned      bool           `json:"is_pinned"  gorm:"not null;default:false"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// Post represents a reply within a thread. Posts share the content lifecycle
// with threads but carry no lock/pin state of their own.
type Post struct {
	ID            string         `json:"id"         gorm:"type:char(36);primaryKey"`
	ThreadID      string         `json:"thread_id"  gorm:"type:char(36);not null;index:idx_thread_posts,priority:1"`
	AuthorID      string         `json:"author_id"  gorm:"type:char(36);not null;index"`
	Content       string         `json:"content"    gorm:"type:text;not null"`
	Status        ContentStatus  `json:"status"     gorm:"type:varchar(16);not null;default:'PUBLISHED';index"`
	AICheckResult AICheckResult  `json:"ai_check_result,omitempty" gorm:"type:varchar(16)"`
	CreatedAt     time.Time      `json:"created_at" gorm:"index:idx_thread_posts,priority:2"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"          gorm:"index"`

	// Thread is the parent discussion. Posts are cascade-deleted if their
	// thread is removed.
	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// Moderatable is the shared capability of content kinds that the moderation
// pipeline acts on. Both *Thread and *Post implement it, so call sites select
// the concrete kind via a discriminant instead of an untyped runtime cast.
type Moderatable interface {
	// ContentID returns the primary key of the content row.
	ContentID() string
	// ContentStatus returns the current lifecycle status.
	ContentStatus() ContentStatus
	// SetContentStatus replaces the lifecycle status in memory; persistence
	// is the caller's responsibility.
	SetContentStatus(ContentStatus)
	// SetAICheckResult replaces the automated verdict in memory.
	SetAICheckResult(AICheckResult)
}

// ContentID implements Moderatable.
func (t *Thread) ContentID() string { return t.ID }

// ContentStatus implements Moderatable.
func (t *Thread) ContentStatus() ContentStatus { return t.Status }

// SetContentStatus implements Moderatable.
func (t *Thread) SetContentStatus(s ContentStatus) { t.Status = s }

// SetAICheckResult implements Moderatable.
func (t *Thread) SetAICheckResult(r AICheckResult) { t.AICheckResult = r }

// ContentID implements Moderatable.
func (p *Post) ContentID() string { return p.ID }

// ContentStatus implements Moderatable.
func (p *Post) ContentStatus() ContentStatus { return p.Status }

// SetContentStatus implements Moderatable.
func (p *Post) SetContentStatus(s ContentStatus) { p.Status = s }

// SetAICheckResult implements Moderatable.
func (p *Post) SetAICheckResult(r AICheckResult) { p.AICheckResult = r }
