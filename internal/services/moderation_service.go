// Package services – ModerationService
//
// This file implements the moderation command dispatcher: the state machine
// that maps the bounded set of moderator commands to content/user state
// transitions. Each command is validated (target existence first), authorized
// against the role hierarchy and target-protection rules, and executed as one
// atomic transaction covering the state mutation, its ModerationAction row,
// and its audit ledger entry. A ledger write failure on this path aborts the
// whole transaction.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-forum-backend/internal/access"
	"github.com/tbourn/go-forum-backend/internal/domain"
	"github.com/tbourn/go-forum-backend/internal/repo"
)

// Command is one moderator command as received from the transport layer.
// Exactly which target fields and metadata are required depends on Action;
// Dispatch validates them per branch.
type Command struct {
	Action       domain.ActionType `json:"action"`
	Reason       string            `json:"reason"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	ThreadID     string            `json:"thread_id,omitempty"`
	PostID       string            `json:"post_id,omitempty"`

	// BanDurationDays is required for TEMP_BAN (positive integer).
	BanDurationDays int `json:"ban_duration_days,omitempty"`
	// NewRole is required for ROLE_CHANGE.
	NewRole domain.Role `json:"new_role,omitempty"`
	// WarnMessage optionally accompanies WARN_USER.
	WarnMessage string `json:"warn_message,omitempty"`
}

// minRoleFor is the authorization floor per command. PERM_BAN and ROLE_CHANGE
// are admin-only; everything else requires MODERATOR.
var minRoleFor = map[domain.ActionType]domain.Role{
	domain.ActionRemoveContent:  domain.RoleModerator,
	domain.ActionApproveContent: domain.RoleModerator,
	domain.ActionWarnUser:       domain.RoleModerator,
	domain.ActionTempBan:        domain.RoleModerator,
	domain.ActionPermBan:        domain.RoleAdmin,
	domain.ActionUnban:          domain.RoleModerator,
	domain.ActionLockThread:     domain.RoleModerator,
	domain.ActionUnlockThread:   domain.RoleModerator,
	domain.ActionPinThread:      domain.RoleModerator,
	domain.ActionUnpinThread:    domain.RoleModerator,
	domain.ActionRoleChange:     domain.RoleAdmin,
}

// ModerationService dispatches moderator commands.
type ModerationService struct {
	// DB is the GORM handle; every command runs in one transaction on it.
	DB *gorm.DB
	// Bans executes the ban lifecycle branches.
	Bans BanService
}

// NewModerationService constructs a ModerationService.
func NewModerationService(db *gorm.DB) *ModerationService {
	return &ModerationService{DB: db}
}

// Dispatch authorizes and executes one moderator command. On success it
// returns the immutable action record created for the command.
//
// Error mapping: ErrUnauthorized (unknown actor), ErrForbidden (role floor,
// protected target, banned or self-targeting actor where disallowed),
// ErrValidation (malformed payload), ErrTargetNotFound (missing target),
// ErrNotBanned (UNBAN on a user who is not banned), ErrAlreadyResolved
// (re-applying the current state).
func (s *ModerationService) Dispatch(ctx context.Context, actorID string, cmd Command) (*domain.ModerationAction, error) {
	tr := otel.Tracer("services/ModerationService")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("moderation.action", string(cmd.Action)),
			attribute.String("actor.id", actorID),
		),
	)
	defer span.End()

	if !cmd.Action.Valid() {
		return nil, ErrValidation
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, ErrValidation
	}

	actor, err := repo.GetUser(ctx, s.DB, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if access.IsBanned(access.SnapshotOf(actor)) {
		return nil, ErrForbidden
	}
	if !access.HasMinRole(actor.Role, minRoleFor[cmd.Action]) {
		return nil, ErrForbidden
	}

	switch cmd.Action {
	case domain.ActionRemoveContent, domain.ActionApproveContent:
		return s.dispatchContent(ctx, actor, cmd)
	case domain.ActionWarnUser:
		return s.dispatchWarn(ctx, actor, cmd)
	case domain.ActionTempBan, domain.ActionPermBan, domain.ActionUnban:
		return s.dispatchBan(ctx, actor, cmd)
	case domain.ActionLockThread, domain.ActionUnlockThread,
		domain.ActionPinThread, domain.ActionUnpinThread:
		return s.dispatchThreadFlags(ctx, actor, cmd)
	case domain.ActionRoleChange:
		return s.dispatchRoleChange(ctx, actor, cmd)
	default:
		return nil, ErrValidation
	}
}

// contentTarget resolves the (kind, id) pair of a content command. Post takes
// precedence when both are set.
func contentTarget(cmd Command) (repo.ContentKind, string, error) {
	switch {
	case cmd.PostID != "":
		return repo.KindPost, cmd.PostID, nil
	case cmd.ThreadID != "":
		return repo.KindThread, cmd.ThreadID, nil
	default:
		return "", "", ErrValidation
	}
}

// dispatchContent executes REMOVE_CONTENT and APPROVE_CONTENT. The loading
// query filters out already-removed rows, so removing twice reads as a
// missing target.
func (s *ModerationService) dispatchContent(ctx context.Context, actor *domain.User, cmd Command) (*domain.ModerationAction, error) {
	kind, id, err := contentTarget(cmd)
	if err != nil {
		return nil, err
	}
	target, err := repo.GetModeratable(ctx, s.DB, kind, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	before := target.ContentStatus()
	switch cmd.Action {
	case domain.ActionRemoveContent:
		target.SetContentStatus(domain.StatusRemoved)
	case domain.ActionApproveContent:
		if before == domain.StatusPublished {
			return nil, ErrAlreadyResolved
		}
		target.SetContentStatus(domain.StatusPublished)
		target.SetAICheckResult(domain.AIPass)
	}

	var action *domain.ModerationAction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateContentStatus(ctx, tx, target); err != nil {
			return err
		}
		action, err = repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
			Action:      cmd.Action,
			Reason:      cmd.Reason,
			ModeratorID: actor.ID,
			ThreadID:    strPtrIf(kind == repo.KindThread, id),
			PostID:      strPtrIf(kind == repo.KindPost, id),
		})
		if err != nil {
			return err
		}
		return repo.AppendAudit(ctx, tx, auditAction(cmd.Action), string(kind), id, actor.ID, map[string]any{
			"status_before": before,
			"status_after":  target.ContentStatus(),
		})
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// dispatchWarn executes WARN_USER: no status mutation, record of intent only.
func (s *ModerationService) dispatchWarn(ctx context.Context, actor *domain.User, cmd Command) (*domain.ModerationAction, error) {
	if cmd.TargetUserID == "" {
		return nil, ErrValidation
	}
	target, err := repo.GetUser(ctx, s.DB, cmd.TargetUserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	meta := ""
	if cmd.WarnMessage != "" {
		if meta, err = domain.EncodeActionMetadata(domain.WarnMetadata{Message: cmd.WarnMessage}); err != nil {
			return nil, err
		}
	}

	var action *domain.ModerationAction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		action, err = repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
			Action:       domain.ActionWarnUser,
			Reason:       cmd.Reason,
			Metadata:     meta,
			ModeratorID:  actor.ID,
			TargetUserID: &target.ID,
		})
		if err != nil {
			return err
		}
		return repo.AppendAudit(ctx, tx, auditAction(cmd.Action), "user", target.ID, actor.ID, map[string]any{
			"message": cmd.WarnMessage,
		})
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// dispatchBan executes TEMP_BAN, PERM_BAN, and UNBAN. ADMIN accounts cannot
// be banned by anyone.
func (s *ModerationService) dispatchBan(ctx context.Context, actor *domain.User, cmd Command) (*domain.ModerationAction, error) {
	if cmd.TargetUserID == "" {
		return nil, ErrValidation
	}
	if cmd.Action == domain.ActionTempBan && cmd.BanDurationDays <= 0 {
		return nil, ErrValidation
	}

	target, err := repo.GetUser(ctx, s.DB, cmd.TargetUserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	switch cmd.Action {
	case domain.ActionTempBan, domain.ActionPermBan:
		if target.Role == domain.RoleAdmin {
			return nil, ErrForbidden
		}
	case domain.ActionUnban:
		if !access.IsBanned(access.SnapshotOf(target)) {
			return nil, ErrNotBanned
		}
	}

	var action *domain.ModerationAction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		switch cmd.Action {
		case domain.ActionTempBan:
			action, txErr = s.Bans.TempBan(ctx, tx, actor.ID, target, cmd.BanDurationDays, cmd.Reason)
		case domain.ActionPermBan:
			action, txErr = s.Bans.PermBan(ctx, tx, actor.ID, target, cmd.Reason)
		case domain.ActionUnban:
			action, txErr = s.Bans.Unban(ctx, tx, actor.ID, target, cmd.Reason)
		}
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// dispatchThreadFlags executes LOCK/UNLOCK/PIN/UNPIN on a thread.
func (s *ModerationService) dispatchThreadFlags(ctx context.Context, actor *domain.User, cmd Command) (*domain.ModerationAction, error) {
	if cmd.ThreadID == "" {
		return nil, ErrValidation
	}
	target, err := repo.GetModeratable(ctx, s.DB, repo.KindThread, cmd.ThreadID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	thread := target.(*domain.Thread)

	locked, pinned := thread.IsLocked, thread.IsPinned
	switch cmd.Action {
	case domain.ActionLockThread:
		locked = true
	case domain.ActionUnlockThread:
		locked = false
	case domain.ActionPinThread:
		pinned = true
	case domain.ActionUnpinThread:
		pinned = false
	}

	var action *domain.ModerationAction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateThreadFlags(ctx, tx, thread.ID, locked, pinned); err != nil {
			return err
		}
		action, err = repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
			Action:      cmd.Action,
			Reason:      cmd.Reason,
			ModeratorID: actor.ID,
			ThreadID:    &thread.ID,
		})
		if err != nil {
			return err
		}
		return repo.AppendAudit(ctx, tx, auditAction(cmd.Action), "thread", thread.ID, actor.ID, map[string]any{
			"is_locked": locked,
			"is_pinned": pinned,
		})
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// dispatchRoleChange executes ROLE_CHANGE. An admin may change another
// admin's role, but never their own.
func (s *ModerationService) dispatchRoleChange(ctx context.Context, actor *domain.User, cmd Command) (*domain.ModerationAction, error) {
	if cmd.TargetUserID == "" {
		return nil, ErrValidation
	}
	switch cmd.NewRole {
	case domain.RoleVisitor, domain.RoleMember, domain.RoleModerator, domain.RoleAdmin:
	default:
		return nil, ErrValidation
	}

	target, err := repo.GetUser(ctx, s.DB, cmd.TargetUserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, ErrForbidden
	}
	if target.Role == cmd.NewRole {
		return nil, ErrAlreadyResolved
	}

	meta, err := domain.EncodeActionMetadata(domain.RoleChangeMetadata{
		PreviousRole: target.Role,
		NewRole:      cmd.NewRole,
	})
	if err != nil {
		return nil, err
	}

	var action *domain.ModerationAction
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateUserRole(ctx, tx, target.ID, cmd.NewRole); err != nil {
			return err
		}
		action, err = repo.CreateModerationAction(ctx, tx, &domain.ModerationAction{
			Action:       domain.ActionRoleChange,
			Reason:       cmd.Reason,
			Metadata:     meta,
			ModeratorID:  actor.ID,
			TargetUserID: &target.ID,
		})
		if err != nil {
			return err
		}
		return repo.AppendAudit(ctx, tx, auditAction(cmd.Action), "user", target.ID, actor.ID, map[string]any{
			"previous_role": target.Role,
			"new_role":      cmd.NewRole,
		})
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// auditAction maps a command to its ledger action string, e.g.
// TEMP_BAN -> "moderation.temp_ban".
func auditAction(t domain.ActionType) string {
	return "moderation." + strings.ToLower(string(t))
}

// strPtrIf returns &s when cond holds, else nil. Used to fill the nullable
// target columns of an action row.
func strPtrIf(cond bool, s string) *string {
	if !cond {
		return nil
	}
	return &s
}
