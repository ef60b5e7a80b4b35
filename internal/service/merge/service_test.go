package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ignite/audience-mailer/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	groups  map[string]bool
	members map[string]*domain.AudienceMember
	order   []string

	moveErrOn string // member id that fails to move
	pages     int
}

func newMockRepo() *mockRepo {
	return &mockRepo{groups: make(map[string]bool), members: make(map[string]*domain.AudienceMember)}
}

func (m *mockRepo) addGroup(id string) { m.groups[id] = true }

func (m *mockRepo) addMember(id, groupID, email string) {
	m.members[id] = &domain.AudienceMember{ID: id, GroupID: groupID, Email: email, IsActive: true}
	m.order = append(m.order, id)
}

func (m *mockRepo) GroupExists(_ context.Context, id string) (bool, error) {
	return m.groups[id], nil
}

func (m *mockRepo) MemberEmails(_ context.Context, groupID string) ([]string, error) {
	var out []string
	for _, id := range m.order {
		if mem, ok := m.members[id]; ok && mem.GroupID == groupID {
			out = append(out, mem.Email)
		}
	}
	return out, nil
}

func (m *mockRepo) ListMembers(_ context.Context, groupID string, limit int) ([]domain.AudienceMember, error) {
	m.pages++
	var out []domain.AudienceMember
	for _, id := range m.order {
		if mem, ok := m.members[id]; ok && mem.GroupID == groupID {
			out = append(out, *mem)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockRepo) MoveMember(_ context.Context, memberID, targetGroupID string) error {
	if memberID == m.moveErrOn {
		return errors.New("deadlock detected")
	}
	m.members[memberID].GroupID = targetGroupID
	return nil
}

func (m *mockRepo) DeleteMember(_ context.Context, memberID string) error {
	delete(m.members, memberID)
	return nil
}

func (m *mockRepo) MemberCount(_ context.Context, groupID string) (int, error) {
	n := 0
	for _, mem := range m.members {
		if mem.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) DeleteGroup(_ context.Context, groupID string) error {
	delete(m.groups, groupID)
	return nil
}

func TestMerge(t *testing.T) {
	repo := newMockRepo()
	repo.addGroup("target")
	repo.addGroup("src-1")
	repo.addGroup("src-2")
	repo.addMember("t1", "target", "keep@example.org")
	repo.addMember("s1", "src-1", "new@example.org")
	repo.addMember("s2", "src-1", "Keep@Example.org") // duplicate, case-folded
	repo.addMember("s3", "src-2", "new@example.org")  // duplicate of a just-moved row
	repo.addMember("s4", "src-2", "other@example.org")
	svc := NewService(repo)

	stats, err := svc.Merge(context.Background(), []string{"src-1", "src-2"}, "target", false)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if stats.Moved != 2 || stats.Skipped != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if repo.members["s1"].GroupID != "target" || repo.members["s4"].GroupID != "target" {
		t.Error("unique members must move to the target")
	}
	if _, ok := repo.members["s2"]; ok {
		t.Error("duplicate source row must be deleted, target wins")
	}
	if _, ok := repo.members["s3"]; ok {
		t.Error("duplicate of a moved row must be deleted")
	}
	if !repo.groups["src-1"] {
		t.Error("sources must survive without deleteEmptySources")
	}
}

func TestMergeDeleteEmptySources(t *testing.T) {
	repo := newMockRepo()
	repo.addGroup("target")
	repo.addGroup("src-1")
	repo.addMember("s1", "src-1", "a@example.org")
	svc := NewService(repo)

	if _, err := svc.Merge(context.Background(), []string{"src-1"}, "target", true); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if repo.groups["src-1"] {
		t.Error("emptied source group must be deleted")
	}
	if !repo.groups["target"] {
		t.Error("target must survive")
	}
}

func TestMergePagination(t *testing.T) {
	repo := newMockRepo()
	repo.addGroup("target")
	repo.addGroup("src-1")
	for i := 0; i < 2500; i++ {
		repo.addMember(fmt.Sprintf("s%04d", i), "src-1", fmt.Sprintf("u%04d@example.org", i))
	}
	svc := NewService(repo)

	stats, err := svc.Merge(context.Background(), []string{"src-1"}, "target", false)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if stats.Moved != 2500 {
		t.Errorf("expected 2500 moved, got %d", stats.Moved)
	}
	// three full fetches plus the empty terminator
	if repo.pages != 4 {
		t.Errorf("expected 4 page fetches, got %d", repo.pages)
	}
}

func TestMergePartialProgressSurvivesFailure(t *testing.T) {
	repo := newMockRepo()
	repo.addGroup("target")
	repo.addGroup("src-1")
	repo.addMember("s1", "src-1", "a@example.org")
	repo.addMember("s2", "src-1", "b@example.org")
	repo.addMember("s3", "src-1", "c@example.org")
	repo.moveErrOn = "s3"
	svc := NewService(repo)

	stats, err := svc.Merge(context.Background(), []string{"src-1"}, "target", false)
	if err == nil {
		t.Fatal("expected merge to abort")
	}
	if stats.Moved != 2 {
		t.Errorf("progress before the failure must survive: %+v", stats)
	}
	if repo.members["s1"].GroupID != "target" || repo.members["s2"].GroupID != "target" {
		t.Error("already-moved members must stay moved")
	}
	if repo.members["s3"].GroupID != "src-1" {
		t.Error("failed member must stay in the source")
	}
}

func TestMergeValidation(t *testing.T) {
	repo := newMockRepo()
	repo.addGroup("target")
	repo.addGroup("src-1")
	svc := NewService(repo)

	if _, err := svc.Merge(context.Background(), nil, "target", false); err != ErrNoSources {
		t.Errorf("expected ErrNoSources, got %v", err)
	}
	if _, err := svc.Merge(context.Background(), []string{"target"}, "target", false); err != ErrTargetInSources {
		t.Errorf("expected ErrTargetInSources, got %v", err)
	}
	if _, err := svc.Merge(context.Background(), []string{"src-1"}, "missing", false); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := svc.Merge(context.Background(), []string{"missing"}, "target", false); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}
