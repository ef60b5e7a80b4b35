package suppression

import (
	"context"

	"github.com/ignite/audience-mailer/internal/domain"
)

// Repository defines the data access contract for suppression checks.
type Repository interface {
	// BlockedEmails returns every address that is bounced or deactivated
	// in at least one group. Addresses are returned as stored; callers
	// normalize.
	BlockedEmails(ctx context.Context) ([]string, error)

	// AddressStatus reports how many memberships carry the address and
	// how many of them are already bounced.
	AddressStatus(ctx context.Context, email string) (total, bounced int, err error)

	// MarkAddressBounced flags every membership carrying the address as
	// bounced and inactive. Returns the number of rows updated.
	MarkAddressBounced(ctx context.Context, email string, bt domain.BounceType, reason string) (int64, error)
}
