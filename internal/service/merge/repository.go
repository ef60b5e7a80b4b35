package merge

import (
	"context"

	"github.com/ignite/audience-mailer/internal/domain"
)

// Repository defines the data access contract for audience merges.
type Repository interface {
	// GroupExists reports whether the group exists.
	GroupExists(ctx context.Context, id string) (bool, error)

	// MemberEmails returns every address in the group. Seeds the target
	// set once per merge.
	MemberEmails(ctx context.Context, groupID string) ([]string, error)

	// ListMembers returns the first page of the group's members ordered
	// by id. Callers drain the group by moving or deleting every row
	// returned, then fetching the first page again.
	ListMembers(ctx context.Context, groupID string, limit int) ([]domain.AudienceMember, error)

	// MoveMember reassigns one member row to the target group.
	MoveMember(ctx context.Context, memberID, targetGroupID string) error

	// DeleteMember removes one member row.
	DeleteMember(ctx context.Context, memberID string) error

	// MemberCount returns how many members the group still has.
	MemberCount(ctx context.Context, groupID string) (int, error)

	// DeleteGroup removes an empty group.
	DeleteGroup(ctx context.Context, groupID string) error
}
