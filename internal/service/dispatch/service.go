package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
	"github.com/ignite/audience-mailer/internal/pkg/logger"
	"github.com/ignite/audience-mailer/internal/provider"
	"github.com/ignite/audience-mailer/internal/service/token"
)

// Tasks queued longer than this are swept to skipped instead of sent.
const sendWindow = 24 * time.Hour

const staleReason = "Email too old to process"

// Mailgun-side placeholder substituted per recipient in batch sends and
// replaced locally in single sends.
const unsubscribePlaceholder = "%recipient.unsubscribe_url%"

// Config carries the dispatcher's tunables.
type Config struct {
	BatchMode    bool
	MaxPerRun    int
	BatchSize    int
	BatchDelay   time.Duration
	Attempts     int
	Backoff      time.Duration
	FromName     string
	FromEmail    string
	ReplyTo      string
	TrackingBase string
}

// Stats reports the outcome of one dispatch run.
type Stats struct {
	Sent   int   `json:"sent"`
	Failed int   `json:"failed"`
	Swept  int64 `json:"swept"`
}

// CompletionNotifier is told when a campaign run drains. The default is
// NopNotifier.
type CompletionNotifier interface {
	RunCompleted(ctx context.Context, sent, failed int)
}

// NopNotifier discards completion events.
type NopNotifier struct{}

func (NopNotifier) RunCompleted(context.Context, int, int) {}

// TokenIssuer mints or returns the unsubscribe token for an address.
// *token.Service implements this.
type TokenIssuer interface {
	Issue(ctx context.Context, email string) (string, error)
}

// Service implements queue dispatch.
type Service struct {
	repo     Repository
	sender   provider.Sender
	tokens   TokenIssuer
	notifier CompletionNotifier
	cfg      Config

	sleep func(time.Duration)
	now   func() time.Time
}

// NewService creates a dispatcher. notifier may be nil.
func NewService(repo Repository, sender provider.Sender, tokens TokenIssuer, notifier CompletionNotifier, cfg Config) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.MaxPerRun <= 0 {
		cfg.MaxPerRun = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	return &Service{
		repo:     repo,
		sender:   sender,
		tokens:   tokens,
		notifier: notifier,
		cfg:      cfg,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// RunOnce processes one bounded slice of the queue.
//
// Overlapping runs are safe without external locking: every send path
// re-reads task status and backs off when another worker got there
// first. The caller still normally serializes runs with a distributed
// lock to avoid wasted provider calls.
func (s *Service) RunOnce(ctx context.Context) (*Stats, error) {
	now := s.now()
	stats := &Stats{}

	swept, err := s.repo.SweepStale(ctx, now.Add(-sendWindow), staleReason)
	if err != nil {
		return nil, fmt.Errorf("sweep stale tasks: %w", err)
	}
	stats.Swept = swept
	if swept > 0 {
		log.Printf("[Dispatch] Swept %d stale queued tasks to skipped", swept)
	}

	tasks, err := s.repo.ListQueued(ctx, now.Add(-sendWindow), s.cfg.MaxPerRun)
	if err != nil {
		return nil, fmt.Errorf("list queued tasks: %w", err)
	}

	if len(tasks) == 0 {
		if err := s.finishRunIfActive(ctx, now); err != nil {
			return nil, err
		}
		return stats, nil
	}

	if err := s.repo.SetRunActive(ctx, true); err != nil {
		return nil, fmt.Errorf("mark run active: %w", err)
	}

	if s.cfg.BatchMode {
		err = s.runBatch(ctx, tasks, stats)
	} else {
		err = s.runSingle(ctx, tasks, stats)
	}
	if err != nil {
		return stats, err
	}

	log.Printf("[Dispatch] Run complete: sent=%d failed=%d swept=%d", stats.Sent, stats.Failed, stats.Swept)
	return stats, nil
}

// finishRunIfActive fires the completion notification once when the
// queue drains after an active run.
func (s *Service) finishRunIfActive(ctx context.Context, now time.Time) error {
	active, err := s.repo.RunActive(ctx)
	if err != nil {
		return fmt.Errorf("read run flag: %w", err)
	}
	if !active {
		return nil
	}
	if err := s.repo.SetRunActive(ctx, false); err != nil {
		return fmt.Errorf("clear run flag: %w", err)
	}

	sent, failed, err := s.repo.DayStats(ctx, startOfDay(now))
	if err != nil {
		return fmt.Errorf("day stats: %w", err)
	}
	log.Printf("[Dispatch] Queue drained, run finished: sent=%d failed=%d today", sent, failed)
	s.notifier.RunCompleted(ctx, sent, failed)
	return nil
}

// ===== SINGLE MODE =====

func (s *Service) runSingle(ctx context.Context, tasks []domain.DeliveryTask, stats *Stats) error {
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.sendSingle(ctx, &tasks[i]) {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}
	return nil
}

// sendSingle delivers one task. Returns true when the task ended up sent,
// counting the duplicate no-op as success.
func (s *Service) sendSingle(ctx context.Context, task *domain.DeliveryTask) bool {
	// At-most-once guard: another worker may have sent this task since
	// it was listed.
	// A read error here says nothing about the task itself; leave it
	// queued for the next run instead of failing it.
	status, err := s.repo.TaskStatus(ctx, task.ID)
	if err != nil {
		log.Printf("[Dispatch] Status re-check for task %s failed, leaving queued: %v", task.ID, err)
		return false
	}
	if status == domain.TaskSent {
		log.Printf("[Dispatch] DUPLICATE PREVENTED: task %s already sent", task.ID)
		return true
	}
	if status != domain.TaskQueued {
		log.Printf("[Dispatch] Task %s no longer queued (%s), skipping", task.ID, status)
		return true
	}

	env := s.envelope(ctx, task)
	unsub := env.Vars["unsubscribe_url"]
	env.HTMLBody = strings.ReplaceAll(env.HTMLBody, unsubscribePlaceholder, unsub)
	env.Subject = strings.ReplaceAll(env.Subject, unsubscribePlaceholder, unsub)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		res, err := s.sender.Send(ctx, env)
		if err == nil {
			if res.Err != nil {
				// provider answered and refused; retrying cannot help
				s.fail(ctx, []string{task.ID}, res.Err.Error())
				return false
			}
			s.succeed(ctx, task, res.MessageID, res.SentAt)
			return true
		}

		lastErr = err
		log.Printf("[Dispatch] Transport error for task %s (attempt %d/%d): %v",
			task.ID, attempt, s.cfg.Attempts, err)
		if attempt < s.cfg.Attempts {
			s.sleep(s.cfg.Backoff)
		}
	}

	s.fail(ctx, []string{task.ID}, fmt.Sprintf("Final failure: %v", lastErr))
	return false
}

// ===== BATCH MODE =====

func (s *Service) runBatch(ctx context.Context, tasks []domain.DeliveryTask, stats *Stats) error {
	batcher, ok := s.sender.(provider.BatchSender)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchUnsupported, s.sender.Name())
	}

	chunkSize := s.cfg.BatchSize
	if max := batcher.MaxBatchSize(); max > 0 && chunkSize > max {
		chunkSize = max
	}

	// Tasks sharing a template carry identical content and can ride one
	// provider call. Manual tasks without a template go out one by one.
	groups := make(map[string][]domain.DeliveryTask)
	var singles []domain.DeliveryTask
	for _, t := range tasks {
		if t.TemplateID == nil {
			singles = append(singles, t)
			continue
		}
		groups[*t.TemplateID] = append(groups[*t.TemplateID], t)
	}

	first := true
	for tplID, group := range groups {
		for start := 0; start < len(group); start += chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !first && s.cfg.BatchDelay > 0 {
				s.sleep(s.cfg.BatchDelay)
			}
			first = false

			end := start + chunkSize
			if end > len(group) {
				end = len(group)
			}
			s.sendChunk(ctx, batcher, tplID, group[start:end], stats)
		}
	}

	for i := range singles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.sendSingle(ctx, &singles[i]) {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}
	return nil
}

// sendChunk delivers one template chunk with a single provider call.
// The chunk succeeds or fails as a whole; there is no partial-success
// visibility and no intra-run retry.
func (s *Service) sendChunk(ctx context.Context, batcher provider.BatchSender, tplID string, chunk []domain.DeliveryTask, stats *Stats) {
	envs := make([]*provider.Envelope, 0, len(chunk))
	ids := make([]string, 0, len(chunk))
	for i := range chunk {
		status, err := s.repo.TaskStatus(ctx, chunk[i].ID)
		if err != nil || status != domain.TaskQueued {
			if status == domain.TaskSent {
				log.Printf("[Dispatch] DUPLICATE PREVENTED: task %s already sent", chunk[i].ID)
			}
			continue
		}
		envs = append(envs, s.envelope(ctx, &chunk[i]))
		ids = append(ids, chunk[i].ID)
	}
	if len(envs) == 0 {
		return
	}

	res, err := batcher.SendBatch(ctx, envs)
	if err == nil && res.Err != nil {
		err = res.Err
	}
	if err != nil {
		log.Printf("[Dispatch] Batch for template %s failed (%d tasks): %v", tplID, len(ids), err)
		s.fail(ctx, ids, err.Error())
		stats.Failed += len(ids)
		return
	}

	now := s.now()
	if err := s.repo.MarkSent(ctx, ids, res.MessageID, now); err != nil {
		log.Printf("[Dispatch] Failed to record batch result: %v", err)
	}
	for _, env := range envs {
		if err := s.repo.StampFirstSend(ctx, env.To, now); err != nil {
			log.Printf("[Dispatch] Failed to stamp first send for %s: %v", logger.RedactEmail(env.To), err)
		}
	}
	stats.Sent += len(ids)
	log.Printf("[Dispatch] Batch sent %d tasks for template %s (id: %s)", len(ids), tplID, res.MessageID)
}

// ===== SHARED =====

// envelope builds the provider payload for a task, issuing the
// recipient's unsubscribe token. A recipient with no remaining
// membership still gets the mail, just without an unsubscribe link.
func (s *Service) envelope(ctx context.Context, task *domain.DeliveryTask) *provider.Envelope {
	env := &provider.Envelope{
		TaskID:    task.ID,
		To:        task.Recipient,
		FromName:  s.cfg.FromName,
		FromEmail: s.cfg.FromEmail,
		ReplyTo:   s.cfg.ReplyTo,
		Subject:   task.Subject,
		HTMLBody:  task.Body,
		Vars:      map[string]string{},
	}
	if task.Sender != "" {
		env.FromEmail = task.Sender
	}

	tok, err := s.tokens.Issue(ctx, task.Recipient)
	switch {
	case err == nil:
		env.Vars["unsubscribe_url"] = token.UnsubscribeURL(s.cfg.TrackingBase, task.Recipient, tok)
	case errors.Is(err, token.ErrNoMembership):
		log.Printf("[Dispatch] No membership for %s, sending without unsubscribe link", logger.RedactEmail(task.Recipient))
	default:
		log.Printf("[Dispatch] Token issue failed for %s: %v", logger.RedactEmail(task.Recipient), err)
	}
	return env
}

func (s *Service) succeed(ctx context.Context, task *domain.DeliveryTask, messageID string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	if err := s.repo.MarkSent(ctx, []string{task.ID}, messageID, at); err != nil {
		log.Printf("[Dispatch] Failed to mark task %s sent: %v", task.ID, err)
		return
	}
	if err := s.repo.StampFirstSend(ctx, task.Recipient, at); err != nil {
		log.Printf("[Dispatch] Failed to stamp first send for %s: %v", logger.RedactEmail(task.Recipient), err)
	}
}

func (s *Service) fail(ctx context.Context, ids []string, errText string) {
	if err := s.repo.MarkFailed(ctx, ids, errText); err != nil {
		log.Printf("[Dispatch] Failed to mark tasks failed: %v", err)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
