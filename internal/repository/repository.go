// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage provides the concrete implementation;
// tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/Endika/participacion/internal/model"
)

// ListOptions paginates list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// AccountRepository is the persistence surface for accounts, their
// organization profile and their moderation roles.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByEmail matches the primary email exactly. Erased and hidden
	// accounts are excluded — an erased row has no email left to match.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetByLogin resolves a sign-in identifier: exact email or exact
	// username.
	GetByLogin(ctx context.Context, login string) (*model.Account, error)
	Update(ctx context.Context, account *model.Account) error
	// Search returns accounts whose email equals term or whose username
	// contains it case-insensitively. A blank term matches nothing.
	Search(ctx context.Context, term string, opts ListOptions) ([]model.Account, error)

	// Erase irreversibly nulls the account's PII columns and stamps the
	// erasure timestamp and optional reason.
	Erase(ctx context.Context, id, reason string) error
	// Hide stamps the soft-delete tombstone on the account row.
	Hide(ctx context.Context, id string) error

	GrantRole(ctx context.Context, accountID string, role model.Role) error
	RevokeRole(ctx context.Context, accountID string, role model.Role) error

	// RecordSignIn bumps the sign-in counters and timestamps.
	RecordSignIn(ctx context.Context, id string) error
}

// IdentityRepository stores links between accounts and external providers.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentity(ctx context.Context, provider, uid string) (*model.Identity, error)
}

// ContentRepository covers the account module's view of authored content:
// enough to create fixtures, list by author, and cascade soft-hiding when
// an account is blocked.
//
// Author-scoped reads include hidden rows (moderators need to see what a
// blocked account wrote); everything else should scope hidden rows out.
type ContentRepository interface {
	CreateDebate(ctx context.Context, debate *model.Debate) error
	CreateProposal(ctx context.Context, proposal *model.Proposal) error
	CreateComment(ctx context.Context, comment *model.Comment) error

	DebateIDsByAuthor(ctx context.Context, authorID string) ([]string, error)
	ProposalIDsByAuthor(ctx context.Context, authorID string) ([]string, error)
	CommentIDsByAuthor(ctx context.Context, authorID string) ([]string, error)

	DebatesByAuthor(ctx context.Context, authorID string) ([]model.Debate, error)
	ProposalsByAuthor(ctx context.Context, authorID string) ([]model.Proposal, error)
	CommentsByAuthor(ctx context.Context, authorID string) ([]model.Comment, error)

	// HideAll* stamp hidden_at on every listed row that isn't hidden yet.
	HideAllDebates(ctx context.Context, ids []string) error
	HideAllProposals(ctx context.Context, ids []string) error
	HideAllComments(ctx context.Context, ids []string) error
}

// VoteRepository stores votes cast by accounts.
type VoteRepository interface {
	RecordVote(ctx context.Context, vote *model.Vote) error
	// VotesFor maps votable ID → vote value for the account's votes on the
	// given subjects only.
	VotesFor(ctx context.Context, accountID, votableType string, votableIDs []string) (map[string]string, error)
}

// FlagRepository stores inappropriate-content flags raised by accounts.
type FlagRepository interface {
	// RecordFlag is idempotent — flagging the same subject twice keeps one row.
	RecordFlag(ctx context.Context, flag *model.Flag) error
	// FlagsFor maps flaggable ID → true for subjects the account flagged,
	// restricted to the given subject set.
	FlagsFor(ctx context.Context, accountID, flaggableType string, flaggableIDs []string) (map[string]bool, error)
}

// LockRepository stores the per-account access lock.
type LockRepository interface {
	// GetOrCreateLock returns the account's lock, creating an unlocked one
	// on first access. Creation is an idempotent upsert, so two concurrent
	// first lookups cannot double-create.
	GetOrCreateLock(ctx context.Context, accountID string) (*model.Lock, error)
	SetLocked(ctx context.Context, accountID string, locked bool) error
}

// CensusRepository records failed residence-verification attempts.
type CensusRepository interface {
	RecordFailedCensusCall(ctx context.Context, call *model.FailedCensusCall) error
	FailedCensusCallCount(ctx context.Context, accountID string) (int, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	NotificationsByAccount(ctx context.Context, accountID string, opts ListOptions) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}
