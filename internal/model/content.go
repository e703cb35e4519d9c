package model

import "time"

// Content types used to scope votes, flags and notifications to a subject.
const (
	ContentDebate   = "debate"
	ContentProposal = "proposal"
	ContentComment  = "comment"
)

// Debate is a discussion opened by an account. Only the fields the account
// module needs are modelled: authorship and the soft-hide tombstone.
type Debate struct {
	ID        string     `json:"id"    db:"id"`
	AuthorID  string     `json:"authorId" db:"author_id"`
	Title     string     `json:"title" db:"title"`
	HiddenAt  *time.Time `json:"-" db:"hidden_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Proposal is a citizen proposal authored by an account.
type Proposal struct {
	ID        string     `json:"id"    db:"id"`
	AuthorID  string     `json:"authorId" db:"author_id"`
	Title     string     `json:"title" db:"title"`
	HiddenAt  *time.Time `json:"-" db:"hidden_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Comment is a comment left by an account on some piece of content.
type Comment struct {
	ID        string     `json:"id"   db:"id"`
	AuthorID  string     `json:"authorId" db:"author_id"`
	Body      string     `json:"body" db:"body"`
	HiddenAt  *time.Time `json:"-" db:"hidden_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// Vote records an account's vote on a votable subject. Value is "yes"/"no".
type Vote struct {
	ID          string    `json:"id"          db:"id"`
	AccountID   string    `json:"accountId"   db:"account_id"`
	VotableType string    `json:"votableType" db:"votable_type"`
	VotableID   string    `json:"votableId"   db:"votable_id"`
	Value       string    `json:"value"       db:"value"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Flag records that an account flagged a subject as inappropriate.
// One row per (account, subject) — flagging twice is a no-op.
type Flag struct {
	ID            string    `json:"id"            db:"id"`
	AccountID     string    `json:"accountId"     db:"account_id"`
	FlaggableType string    `json:"flaggableType" db:"flaggable_type"`
	FlaggableID   string    `json:"flaggableId"   db:"flaggable_id"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
}

// Identity links an account to an external authentication provider.
// Identities are destroyed together with their account (FK cascade).
type Identity struct {
	ID        string    `json:"id"       db:"id"`
	AccountID string    `json:"-"        db:"account_id"`
	Provider  string    `json:"provider" db:"provider"`
	UID       string    `json:"uid"      db:"uid"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Lock is the per-account access lock, lazily created on first lookup.
type Lock struct {
	ID        string    `json:"id"     db:"id"`
	AccountID string    `json:"-"      db:"account_id"`
	Locked    bool      `json:"locked" db:"locked"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// FailedCensusCall records an unsuccessful residence-verification attempt,
// kept for auditing repeated failures against the census.
type FailedCensusCall struct {
	ID             string    `json:"id" db:"id"`
	AccountID      string    `json:"-"  db:"account_id"`
	DocumentType   string    `json:"documentType"   db:"document_type"`
	DocumentNumber string    `json:"documentNumber" db:"document_number"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Notification is an in-app notification addressed to an account.
type Notification struct {
	ID             string     `json:"id" db:"id"`
	AccountID      string     `json:"-"  db:"account_id"`
	NotifiableType string     `json:"notifiableType" db:"notifiable_type"`
	NotifiableID   string     `json:"notifiableId"   db:"notifiable_id"`
	ReadAt         *time.Time `json:"readAt,omitempty" db:"read_at"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
}

// Read reports whether the notification has been read.
func (n *Notification) Read() bool {
	return n.ReadAt != nil
}
