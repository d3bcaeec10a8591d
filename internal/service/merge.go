package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/civicsense/backend/internal/db"
)

// MergeStore applies the transactional merge; satisfied by *db.Store.
type MergeStore interface {
	MergeTickets(ctx context.Context, childID, parentID, reason string) (db.MergeOutcome, error)
}

type MergeManager struct {
	Store  MergeStore
	Logger zerolog.Logger
}

// Merge links child to parent. Re-invoking with the same pair is a no-op:
// the audit event is written exactly once, when the link is first applied.
// Parent eligibility is normally guaranteed by candidate selection; a parent
// that turns out to be a child anyway is reported as a MergeConflict rather
// than applied.
func (m *MergeManager) Merge(ctx context.Context, childID, parentID, reason string) error {
	if childID == parentID {
		return MergeConflict{ChildID: childID, ParentID: parentID, Reason: "ticket cannot merge into itself"}
	}

	out, err := m.Store.MergeTickets(ctx, childID, parentID, reason)
	if err != nil {
		return err
	}

	switch {
	case out.ParentParent != nil:
		return MergeConflict{ChildID: childID, ParentID: parentID, Reason: "parent is not a root ticket"}
	case out.Applied:
		m.Logger.Info().
			Str("child_id", childID).
			Str("parent_id", parentID).
			Int("child_count", out.ChildCount).
			Msg("ticket merged")
		return nil
	case out.AlreadyMerged:
		m.Logger.Debug().
			Str("child_id", childID).
			Str("parent_id", parentID).
			Msg("merge already applied")
		return nil
	default:
		return MergeConflict{ChildID: childID, ParentID: parentID, Reason: "child already merged into a different parent"}
	}
}
