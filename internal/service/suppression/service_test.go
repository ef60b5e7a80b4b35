package suppression

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ignite/audience-mailer/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu      sync.RWMutex
	members []*memberRow
}

type memberRow struct {
	email   string
	active  bool
	bounced bool
}

func newMockRepo() *mockRepo { return &mockRepo{} }

func (m *mockRepo) add(email string, active, bounced bool) {
	m.members = append(m.members, &memberRow{email: email, active: active, bounced: bounced})
}

func (m *mockRepo) BlockedEmails(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, r := range m.members {
		if r.bounced || !r.active {
			out = append(out, r.email)
		}
	}
	return out, nil
}

func (m *mockRepo) AddressStatus(_ context.Context, email string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total, bounced := 0, 0
	for _, r := range m.members {
		if strings.EqualFold(r.email, email) {
			total++
			if r.bounced {
				bounced++
			}
		}
	}
	return total, bounced, nil
}

func (m *mockRepo) MarkAddressBounced(_ context.Context, email string, _ domain.BounceType, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.members {
		if strings.EqualFold(r.email, email) && !r.bounced {
			r.bounced = true
			r.active = false
			n++
		}
	}
	return n, nil
}

type fakeBounceSource struct {
	bounces map[string]string
}

func (f *fakeBounceSource) ListBounces(_ context.Context, fn func(address, reason string) error) error {
	for addr, reason := range f.bounces {
		if err := fn(addr, reason); err != nil {
			return err
		}
	}
	return nil
}

func TestBuildIndex(t *testing.T) {
	repo := newMockRepo()
	repo.add("Good@Example.org", true, false)
	repo.add("bounced@example.org", true, true)
	repo.add("inactive@example.org", false, false)
	// same address fine in one group, bounced in another
	repo.add("mixed@example.org", true, false)
	repo.add("MIXED@example.org", true, true)

	svc := NewService(repo)
	ix, err := svc.BuildIndex(context.Background())
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	if ix.Blocked("good@example.org") {
		t.Error("clean address must not be blocked")
	}
	if !ix.Blocked("bounced@example.org") {
		t.Error("bounced address must be blocked")
	}
	if !ix.Blocked("inactive@example.org") {
		t.Error("inactive address must be blocked")
	}
	if !ix.Blocked("Mixed@Example.org") {
		t.Error("block must span all groups carrying the address")
	}
	if ix.Size() != 3 {
		t.Errorf("expected 3 distinct blocked addresses, got %d", ix.Size())
	}
}

func TestSyncProviderBounces(t *testing.T) {
	repo := newMockRepo()
	repo.add("fresh@example.org", true, false)
	repo.add("fresh@example.org", true, false)
	repo.add("done@example.org", false, true)
	svc := NewService(repo)

	src := &fakeBounceSource{bounces: map[string]string{
		"Fresh@example.org":   "550 mailbox unavailable",
		"done@example.org":    "550 user unknown",
		"unknown@example.org": "552 rejected",
	}}

	stats, err := svc.SyncProviderBounces(context.Background(), src, false)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if stats.Synced != 1 || stats.AlreadyBounced != 1 || stats.NotFound != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	_, bounced, _ := repo.AddressStatus(context.Background(), "fresh@example.org")
	if bounced != 2 {
		t.Errorf("expected both memberships bounced, got %d", bounced)
	}
}

func TestSyncProviderBouncesDryRun(t *testing.T) {
	repo := newMockRepo()
	repo.add("fresh@example.org", true, false)
	svc := NewService(repo)

	src := &fakeBounceSource{bounces: map[string]string{"fresh@example.org": "550"}}
	stats, err := svc.SyncProviderBounces(context.Background(), src, true)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if stats.Synced != 1 {
		t.Errorf("dry run must still count, got %+v", stats)
	}
	_, bounced, _ := repo.AddressStatus(context.Background(), "fresh@example.org")
	if bounced != 0 {
		t.Error("dry run must not write")
	}
}

func TestSyncProviderBouncesNoSource(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.SyncProviderBounces(context.Background(), nil, false); err != ErrNoBounceSource {
		t.Fatalf("expected ErrNoBounceSource, got %v", err)
	}
}

type staticSource struct{ addrs []string }

func (s staticSource) SuppressedAddresses(context.Context) ([]string, error) {
	return s.addrs, nil
}

func TestBuildIndexFoldsExtraSources(t *testing.T) {
	repo := newMockRepo()
	repo.add("bounced@example.org", true, true)

	svc := NewService(repo, staticSource{addrs: []string{"External@Example.org"}})
	ix, err := svc.BuildIndex(context.Background())
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}

	if !ix.Blocked("external@example.org") {
		t.Error("source address must be blocked")
	}
	if ix.Size() != 2 {
		t.Errorf("expected 2 blocked addresses, got %d", ix.Size())
	}
}
