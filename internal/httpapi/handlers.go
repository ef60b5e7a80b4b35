// Package httpapi exposes the HTTP surface: the provider webhook, the
// public unsubscribe page, the open-tracking pixel, and a small JSON
// admin API over the services.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/repository/postgres"
	"github.com/ignite/audience-mailer/internal/service/expand"
	"github.com/ignite/audience-mailer/internal/service/merge"
)

// EventApplier applies one provider event. *reconcile.Service implements this.
type EventApplier interface {
	Apply(ctx context.Context, ev domain.ProviderEvent) error
}

// SignatureVerifier checks a webhook signature block. The Mailgun
// adapter implements this; a nil verifier accepts everything.
type SignatureVerifier interface {
	VerifyWebhookSignature(timestamp, token, signature string) bool
}

// Unsubscriber redeems an unsubscribe token. *token.Service implements this.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, email, tok string) error
}

// OpenMarker records a pixel hit, first occurrence only.
type OpenMarker interface {
	MarkOpenedByTaskID(ctx context.Context, taskID string, at time.Time) (int64, error)
}

// Expander queues an audience expansion.
type Expander interface {
	Expand(ctx context.Context, templateID, groupID string, skipFreeMail bool) (*expand.Stats, error)
}

// Merger folds groups together.
type Merger interface {
	Merge(ctx context.Context, sourceIDs []string, targetID string, deleteEmptySources bool) (*merge.Stats, error)
}

// AdminStore backs the admin endpoints. *postgres.AdminRepo implements this.
type AdminStore interface {
	CreateGroup(ctx context.Context, name string) (*domain.AudienceGroup, error)
	ListGroups(ctx context.Context) ([]postgres.GroupSummary, error)
	InsertMembers(ctx context.Context, groupID string, members []domain.AudienceMember) (int64, error)
	CreateTemplate(ctx context.Context, name, subject, body string) (*domain.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error)
	Stats(ctx context.Context, since time.Time) (*postgres.DeliveryStats, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	reconciler EventApplier
	verifier   SignatureVerifier
	tokens     Unsubscriber
	opens      OpenMarker
	expander   Expander
	merger     Merger
	admin      AdminStore

	trackingKey string
	now         func() time.Time
}

// NewHandlers wires the HTTP layer. trackingKey signs pixel URLs.
func NewHandlers(reconciler EventApplier, verifier SignatureVerifier, tokens Unsubscriber,
	opens OpenMarker, expander Expander, merger Merger, admin AdminStore, trackingKey string) *Handlers {
	return &Handlers{
		reconciler:  reconciler,
		verifier:    verifier,
		tokens:      tokens,
		opens:       opens,
		expander:    expander,
		merger:      merger,
		admin:       admin,
		trackingKey: trackingKey,
		now:         time.Now,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
