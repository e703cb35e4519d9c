package sqlite

import (
	"context"
	"testing"

	"github.com/Endika/participacion/internal/model"
)

// seedContent creates a debate, a proposal and a comment authored by the
// given account.
func seedContent(t *testing.T, db *DB, authorID string) (*model.Debate, *model.Proposal, *model.Comment) {
	t.Helper()
	ctx := context.Background()

	debate := &model.Debate{AuthorID: authorID, Title: "A debate"}
	if err := db.CreateDebate(ctx, debate); err != nil {
		t.Fatalf("CreateDebate() error = %v", err)
	}
	proposal := &model.Proposal{AuthorID: authorID, Title: "A proposal"}
	if err := db.CreateProposal(ctx, proposal); err != nil {
		t.Fatalf("CreateProposal() error = %v", err)
	}
	comment := &model.Comment{AuthorID: authorID, Body: "A comment"}
	if err := db.CreateComment(ctx, comment); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	return debate, proposal, comment
}

// =========================================================================
// AUTHORSHIP LOOKUP TESTS
// =========================================================================

func TestContentIDsByAuthor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestAccount(t, db, "author", "author@example.com")
	other := createTestAccount(t, db, "other", "other@example.com")

	debate, proposal, comment := seedContent(t, db, author.ID)
	seedContent(t, db, other.ID)

	debateIDs, err := db.DebateIDsByAuthor(ctx, author.ID)
	if err != nil {
		t.Fatalf("DebateIDsByAuthor() error = %v", err)
	}
	if len(debateIDs) != 1 || debateIDs[0] != debate.ID {
		t.Errorf("DebateIDsByAuthor() = %v, want [%s]", debateIDs, debate.ID)
	}

	proposalIDs, err := db.ProposalIDsByAuthor(ctx, author.ID)
	if err != nil {
		t.Fatalf("ProposalIDsByAuthor() error = %v", err)
	}
	if len(proposalIDs) != 1 || proposalIDs[0] != proposal.ID {
		t.Errorf("ProposalIDsByAuthor() = %v, want [%s]", proposalIDs, proposal.ID)
	}

	commentIDs, err := db.CommentIDsByAuthor(ctx, author.ID)
	if err != nil {
		t.Fatalf("CommentIDsByAuthor() error = %v", err)
	}
	if len(commentIDs) != 1 || commentIDs[0] != comment.ID {
		t.Errorf("CommentIDsByAuthor() = %v, want [%s]", commentIDs, comment.ID)
	}
}

func TestContentByAuthor_IncludesHidden(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestAccount(t, db, "hiddenauthor", "ha@example.com")

	debate, _, _ := seedContent(t, db, author.ID)
	if err := db.HideAllDebates(ctx, []string{debate.ID}); err != nil {
		t.Fatalf("HideAllDebates() error = %v", err)
	}

	// Moderation still sees hidden content when listing by author
	debates, err := db.DebatesByAuthor(ctx, author.ID)
	if err != nil {
		t.Fatalf("DebatesByAuthor() error = %v", err)
	}
	if len(debates) != 1 {
		t.Fatalf("DebatesByAuthor() = %d rows, want 1", len(debates))
	}
	if debates[0].HiddenAt == nil {
		t.Error("hidden debate came back without its tombstone")
	}
}

// =========================================================================
// HIDE-ALL TESTS
// =========================================================================

func TestHideAll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestAccount(t, db, "cascade", "cascade@example.com")

	debate, proposal, comment := seedContent(t, db, author.ID)

	if err := db.HideAllDebates(ctx, []string{debate.ID}); err != nil {
		t.Fatalf("HideAllDebates() error = %v", err)
	}
	if err := db.HideAllProposals(ctx, []string{proposal.ID}); err != nil {
		t.Fatalf("HideAllProposals() error = %v", err)
	}
	if err := db.HideAllComments(ctx, []string{comment.ID}); err != nil {
		t.Fatalf("HideAllComments() error = %v", err)
	}

	debates, _ := db.DebatesByAuthor(ctx, author.ID)
	proposals, _ := db.ProposalsByAuthor(ctx, author.ID)
	comments, _ := db.CommentsByAuthor(ctx, author.ID)

	if debates[0].HiddenAt == nil {
		t.Error("debate not hidden")
	}
	if proposals[0].HiddenAt == nil {
		t.Error("proposal not hidden")
	}
	if comments[0].HiddenAt == nil {
		t.Error("comment not hidden")
	}
}

func TestHideAll_EmptyListIsNoop(t *testing.T) {
	db := newTestDB(t)

	if err := db.HideAllDebates(context.Background(), nil); err != nil {
		t.Errorf("HideAllDebates(nil) error = %v", err)
	}
}

func TestHideAll_AlreadyHiddenKeepsTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestAccount(t, db, "rehide", "rehide@example.com")
	debate, _, _ := seedContent(t, db, author.ID)

	if err := db.HideAllDebates(ctx, []string{debate.ID}); err != nil {
		t.Fatalf("HideAllDebates() first error = %v", err)
	}
	first, _ := db.DebatesByAuthor(ctx, author.ID)

	if err := db.HideAllDebates(ctx, []string{debate.ID}); err != nil {
		t.Fatalf("HideAllDebates() second error = %v", err)
	}
	second, _ := db.DebatesByAuthor(ctx, author.ID)

	if !second[0].HiddenAt.Equal(*first[0].HiddenAt) {
		t.Errorf("HiddenAt changed on re-hide: %v vs %v", second[0].HiddenAt, first[0].HiddenAt)
	}
}
