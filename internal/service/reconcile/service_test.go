package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/audience-mailer/internal/domain"
)

// mockRepo is an in-memory repository for testing. Conditional-update
// semantics mirror the SQL implementations: every mutation reports rows
// affected and re-applying is a zero-row no-op.
type mockRepo struct {
	tasks   map[string]*domain.DeliveryTask // keyed by messageID|recipient
	members map[string][]*domain.AudienceMember
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tasks:   make(map[string]*domain.DeliveryTask),
		members: make(map[string][]*domain.AudienceMember),
	}
}

func key(messageID, recipient string) string { return messageID + "|" + recipient }

func (m *mockRepo) addTask(messageID, recipient string, status domain.TaskStatus) *domain.DeliveryTask {
	t := &domain.DeliveryTask{Recipient: recipient, Status: status, ProviderMessageID: &messageID}
	m.tasks[key(messageID, recipient)] = t
	return t
}

func (m *mockRepo) addMember(email string) *domain.AudienceMember {
	mem := &domain.AudienceMember{Email: email, IsActive: true}
	m.members[email] = append(m.members[email], mem)
	return mem
}

func (m *mockRepo) FailTask(_ context.Context, messageID, recipient string, bt domain.BounceType, reason string, at time.Time) (int64, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	if !ok || (t.Status == domain.TaskFailed && t.BounceType != nil) {
		return 0, nil
	}
	t.Status = domain.TaskFailed
	t.BounceType = &bt
	t.BounceReason = reason
	t.BouncedAt = &at
	return 1, nil
}

func (m *mockRepo) BounceMembers(_ context.Context, email string, bt domain.BounceType, reason string, at time.Time) (int64, error) {
	var n int64
	for _, mem := range m.members[email] {
		if mem.Bounced {
			continue
		}
		mem.Bounced = true
		mem.IsActive = false
		mem.BounceType = &bt
		mem.BounceReason = reason
		mem.BouncedAt = &at
		n++
	}
	return n, nil
}

func (m *mockRepo) MarkComplained(_ context.Context, messageID, recipient string, at time.Time) (int64, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	if !ok || t.Complained {
		return 0, nil
	}
	t.Complained = true
	t.ComplainedAt = &at
	return 1, nil
}

func (m *mockRepo) DeactivateMembers(_ context.Context, email string) (int64, error) {
	var n int64
	for _, mem := range m.members[email] {
		if mem.IsActive {
			mem.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) RepairDelivered(_ context.Context, messageID, recipient string, _ time.Time) (int64, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	if !ok || (t.Status == domain.TaskSent && t.BounceType == nil) {
		return 0, nil
	}
	t.Status = domain.TaskSent
	t.BounceType = nil
	t.BounceReason = ""
	t.BouncedAt = nil
	return 1, nil
}

func (m *mockRepo) MarkOpened(_ context.Context, messageID, recipient string, at time.Time) (int64, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	if !ok || t.Opened {
		return 0, nil
	}
	t.Opened = true
	t.OpenedAt = &at
	return 1, nil
}

func (m *mockRepo) MarkClicked(_ context.Context, messageID, recipient string, at time.Time) (int64, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	if !ok || t.Clicked {
		return 0, nil
	}
	t.Clicked = true
	t.ClickedAt = &at
	return 1, nil
}

func (m *mockRepo) FailedTaskExists(_ context.Context, messageID, recipient string) (bool, error) {
	t, ok := m.tasks[key(messageID, recipient)]
	return ok && t.Status == domain.TaskFailed, nil
}

func event(ev domain.EventType, messageID, recipient string) domain.ProviderEvent {
	return domain.ProviderEvent{Event: ev, MessageID: messageID, Recipient: recipient}
}

func TestApplyPermanentBounce(t *testing.T) {
	repo := newMockRepo()
	task := repo.addTask("m1", "jane@example.org", domain.TaskSent)
	mem1 := repo.addMember("jane@example.org")
	mem2 := repo.addMember("jane@example.org")
	svc := NewService(repo)

	ev := event(domain.EventBounced, "m1", "Jane@Example.org")
	ev.Severity = domain.SeverityPermanent
	ev.StatusCode = "550"
	ev.StatusMessage = "mailbox unavailable"

	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if task.Status != domain.TaskFailed || task.BounceReason != "[550] mailbox unavailable" {
		t.Errorf("task not failed with bounce: %+v", task)
	}
	if !mem1.Bounced || mem1.IsActive || !mem2.Bounced {
		t.Error("bounce must hit every membership of the address")
	}

	// duplicate delivery is a no-op
	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("re-Apply failed: %v", err)
	}
}

func TestApplySoftBounceIgnored(t *testing.T) {
	repo := newMockRepo()
	task := repo.addTask("m1", "jane@example.org", domain.TaskSent)
	mem := repo.addMember("jane@example.org")
	svc := NewService(repo)

	ev := event(domain.EventBounced, "m1", "jane@example.org")
	ev.Severity = domain.SeverityTemporary

	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if task.Status != domain.TaskSent || mem.Bounced {
		t.Error("soft bounce must not change anything")
	}
}

func TestApplyComplaint(t *testing.T) {
	repo := newMockRepo()
	task := repo.addTask("m1", "jane@example.org", domain.TaskSent)
	mem := repo.addMember("jane@example.org")
	svc := NewService(repo)

	if err := svc.Apply(context.Background(), event(domain.EventComplained, "m1", "jane@example.org")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !task.Complained || task.ComplainedAt == nil {
		t.Error("complaint flag not set")
	}
	if mem.IsActive {
		t.Error("complaint must deactivate the address")
	}
	if mem.Bounced {
		t.Error("complaint must not count as a bounce")
	}
}

func TestApplyUnsubscribed(t *testing.T) {
	repo := newMockRepo()
	mem1 := repo.addMember("jane@example.org")
	mem2 := repo.addMember("jane@example.org")
	svc := NewService(repo)

	if err := svc.Apply(context.Background(), event(domain.EventUnsubscribed, "", "jane@example.org")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if mem1.IsActive || mem2.IsActive {
		t.Error("unsubscribe must deactivate all memberships")
	}
}

func TestApplyDeliveredRepairsFailure(t *testing.T) {
	repo := newMockRepo()
	bt := domain.BounceHard
	task := repo.addTask("m1", "jane@example.org", domain.TaskFailed)
	task.BounceType = &bt
	task.BounceReason = "[450] greylisted"
	svc := NewService(repo)

	if err := svc.Apply(context.Background(), event(domain.EventDelivered, "m1", "jane@example.org")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if task.Status != domain.TaskSent {
		t.Errorf("task not repaired: %s", task.Status)
	}
	if task.BounceType != nil || task.BounceReason != "" {
		t.Error("bounce fields must be cleared on delivery")
	}
}

func TestApplyOpenedFirstOnly(t *testing.T) {
	repo := newMockRepo()
	task := repo.addTask("m1", "jane@example.org", domain.TaskSent)
	svc := NewService(repo)

	if err := svc.Apply(context.Background(), event(domain.EventOpened, "m1", "jane@example.org")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	first := *task.OpenedAt

	time.Sleep(time.Millisecond)
	if err := svc.Apply(context.Background(), event(domain.EventOpened, "m1", "jane@example.org")); err != nil {
		t.Fatalf("re-Apply failed: %v", err)
	}
	if !task.OpenedAt.Equal(first) {
		t.Error("second open must not move the timestamp")
	}
}

func TestApplyUnknownRowsNoop(t *testing.T) {
	svc := NewService(newMockRepo())
	ev := event(domain.EventBounced, "never-seen", "ghost@example.org")
	ev.Severity = domain.SeverityPermanent
	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("event without matching rows must be a no-op, got %v", err)
	}
}

type fakeEventSource struct {
	events []domain.ProviderEvent
}

func (f *fakeEventSource) DeliveredEvents(_ context.Context, _ time.Time, fn func(domain.ProviderEvent) error) error {
	for _, ev := range f.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func TestRepairFromProvider(t *testing.T) {
	repo := newMockRepo()
	stuck := repo.addTask("m1", "a@example.org", domain.TaskFailed)
	fine := repo.addTask("m2", "b@example.org", domain.TaskSent)
	svc := NewService(repo)

	src := &fakeEventSource{events: []domain.ProviderEvent{
		event(domain.EventDelivered, "m1", "a@example.org"),
		event(domain.EventDelivered, "m2", "b@example.org"),
		event(domain.EventDelivered, "m3", "c@example.org"),
	}}

	stats, err := svc.RepairFromProvider(context.Background(), src, time.Now().Add(-24*time.Hour), false)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if stats.Examined != 3 || stats.Repaired != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stuck.Status != domain.TaskSent {
		t.Error("stuck task not repaired")
	}
	if fine.Status != domain.TaskSent {
		t.Error("healthy task must be untouched")
	}
}

func TestRepairFromProviderDryRun(t *testing.T) {
	repo := newMockRepo()
	stuck := repo.addTask("m1", "a@example.org", domain.TaskFailed)
	svc := NewService(repo)

	src := &fakeEventSource{events: []domain.ProviderEvent{event(domain.EventDelivered, "m1", "a@example.org")}}
	stats, err := svc.RepairFromProvider(context.Background(), src, time.Now(), true)
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if stats.Repaired != 1 {
		t.Errorf("dry run must still count: %+v", stats)
	}
	if stuck.Status != domain.TaskFailed {
		t.Error("dry run must not write")
	}
}

func TestRepairFromProviderNoSource(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.RepairFromProvider(context.Background(), nil, time.Now(), false); err != ErrNoEventSource {
		t.Fatalf("expected ErrNoEventSource, got %v", err)
	}
}
