package expand

import (
	"context"

	"github.com/ignite/audience-mailer/internal/domain"
)

// Repository defines the data access contract for audience expansion.
type Repository interface {
	// TemplateByID loads a template. Returns ErrTemplateNotFound.
	TemplateByID(ctx context.Context, id string) (*domain.EmailTemplate, error)

	// GroupByID loads a group. Returns ErrGroupNotFound.
	GroupByID(ctx context.Context, id string) (*domain.AudienceGroup, error)

	// TargetedAddresses returns every recipient address with a queued or
	// sent task for the template.
	TargetedAddresses(ctx context.Context, templateID string) ([]string, error)

	// ListSendableMembers returns a page of active, non-bounced members
	// of the group, ordered by id.
	ListSendableMembers(ctx context.Context, groupID string, offset, limit int) ([]domain.AudienceMember, error)

	// InsertTasks bulk-inserts queued tasks.
	InsertTasks(ctx context.Context, tasks []*domain.DeliveryTask) error
}
