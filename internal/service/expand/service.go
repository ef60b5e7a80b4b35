package expand

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/service/suppression"
)

const (
	memberPageSize  = 1000
	insertBatchSize = 1000
)

// Free-mail domains excluded when the skip flag is set.
var freeMailPattern = regexp.MustCompile(`(?i)@(yahoo|ymail)\.`)

// Stats reports per-category outcomes of one expansion.
type Stats struct {
	Queued        int `json:"queued"`
	AlreadySent   int `json:"already_sent"`
	DomainSkipped int `json:"domain_skipped"`
	Blocked       int `json:"blocked"`
}

// CompletionNotifier receives expansion results. The default is NopNotifier.
type CompletionNotifier interface {
	ExpansionFinished(ctx context.Context, groupID, templateID string, stats Stats)
}

// NopNotifier discards expansion results.
type NopNotifier struct{}

func (NopNotifier) ExpansionFinished(context.Context, string, string, Stats) {}

// Service implements audience expansion.
type Service struct {
	repo     Repository
	blocker  *suppression.Service
	notifier CompletionNotifier
	engine   *liquid.Engine
}

// NewService creates an expand service. notifier may be nil.
func NewService(repo Repository, blocker *suppression.Service, notifier CompletionNotifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:     repo,
		blocker:  blocker,
		notifier: notifier,
		engine:   liquid.NewEngine(),
	}
}

// Expand queues one delivery task per eligible member of the group.
//
// Filters apply in order: already targeted for this template, free-mail
// domain (when skipFreeMail), suppression index. Accepted rows are
// flushed in bulk batches so a very large group never holds one giant
// transaction. The suppression index is computed fresh on every call.
func (s *Service) Expand(ctx context.Context, templateID, groupID string, skipFreeMail bool) (*Stats, error) {
	tpl, err := s.repo.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	group, err := s.repo.GroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	targeted, err := s.repo.TargetedAddresses(ctx, templateID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(targeted))
	for _, addr := range targeted {
		seen[domain.NormalizeEmail(addr)] = struct{}{}
	}

	index, err := s.blocker.BuildIndex(ctx)
	if err != nil {
		return nil, err
	}

	subject, body := s.render(tpl, group)

	stats := &Stats{}
	var batch []*domain.DeliveryTask
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.InsertTasks(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for offset := 0; ; offset += memberPageSize {
		members, err := s.repo.ListSendableMembers(ctx, groupID, offset, memberPageSize)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			break
		}

		for i := range members {
			email := domain.NormalizeEmail(members[i].Email)
			if _, ok := seen[email]; ok {
				stats.AlreadySent++
				continue
			}
			if skipFreeMail && freeMailPattern.MatchString(email) {
				stats.DomainSkipped++
				continue
			}
			if index.Blocked(email) {
				stats.Blocked++
				continue
			}

			now := time.Now()
			batch = append(batch, &domain.DeliveryTask{
				ID:         uuid.NewString(),
				TemplateID: &templateID,
				GroupID:    &groupID,
				Recipient:  email,
				Subject:    subject,
				Body:       body,
				Status:     domain.TaskQueued,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			seen[email] = struct{}{}
			stats.Queued++

			if len(batch) >= insertBatchSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}

		if len(members) < memberPageSize {
			break
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	log.Printf("[Expand] Group %s template %s: queued=%d already_sent=%d domain_skipped=%d blocked=%d",
		groupID, templateID, stats.Queued, stats.AlreadySent, stats.DomainSkipped, stats.Blocked)
	s.notifier.ExpansionFinished(ctx, groupID, templateID, *stats)
	return stats, nil
}

// render evaluates liquid tags in the template with run-level bindings.
// Per-recipient values stay as %recipient.*% placeholders so every task
// of the run carries identical content and batch grouping stays valid.
// A template that fails to parse is used verbatim.
func (s *Service) render(tpl *domain.EmailTemplate, group *domain.AudienceGroup) (subject, body string) {
	bindings := map[string]interface{}{
		"group": map[string]interface{}{"name": group.Name},
		"date":  time.Now().Format("January 2, 2006"),
	}

	subject, body = tpl.Subject, tpl.Body
	if out, err := s.engine.ParseAndRenderString(tpl.Subject, bindings); err == nil {
		subject = out
	} else {
		log.Printf("[Expand] Subject render failed for template %s: %v", tpl.ID, err)
	}
	if out, err := s.engine.ParseAndRenderString(tpl.Body, bindings); err == nil {
		body = out
	} else {
		log.Printf("[Expand] Body render failed for template %s: %v", tpl.ID, err)
	}
	return subject, body
}
