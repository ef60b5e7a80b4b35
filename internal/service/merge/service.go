package merge

import (
	"context"
	"fmt"
	"log"

	"github.com/ignite/audience-mailer/internal/domain"
)

const pageSize = 1000

// Stats reports the outcome of one merge.
type Stats struct {
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
}

// Service implements audience merges.
type Service struct {
	repo Repository
}

// NewService creates a merge service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Merge folds the source groups into the target. Duplicate addresses
// keep the target's row; the source duplicate is deleted. With
// deleteEmptySources set, a source group left with zero members is
// removed after its pages are processed.
func (s *Service) Merge(ctx context.Context, sourceIDs []string, targetID string, deleteEmptySources bool) (*Stats, error) {
	if len(sourceIDs) == 0 {
		return nil, ErrNoSources
	}
	for _, id := range sourceIDs {
		if id == targetID {
			return nil, ErrTargetInSources
		}
	}

	if ok, err := s.repo.GroupExists(ctx, targetID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("target %s: %w", targetID, ErrGroupNotFound)
	}

	// addresses already in the target, updated as members move
	emails, err := s.repo.MemberEmails(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("seed target set: %w", err)
	}
	inTarget := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		inTarget[domain.NormalizeEmail(e)] = struct{}{}
	}

	stats := &Stats{}
	for _, sourceID := range sourceIDs {
		if ok, err := s.repo.GroupExists(ctx, sourceID); err != nil {
			return stats, err
		} else if !ok {
			return stats, fmt.Errorf("source %s: %w", sourceID, ErrGroupNotFound)
		}

		if err := s.drainSource(ctx, sourceID, targetID, inTarget, stats); err != nil {
			return stats, err
		}

		if deleteEmptySources {
			n, err := s.repo.MemberCount(ctx, sourceID)
			if err != nil {
				return stats, err
			}
			if n == 0 {
				if err := s.repo.DeleteGroup(ctx, sourceID); err != nil {
					return stats, fmt.Errorf("delete empty source %s: %w", sourceID, err)
				}
				log.Printf("[Merge] Deleted empty source group %s", sourceID)
			}
		}
	}

	log.Printf("[Merge] Merged %d groups into %s: moved=%d skipped=%d",
		len(sourceIDs), targetID, stats.Moved, stats.Skipped)
	return stats, nil
}

// drainSource repeatedly takes the source's first page and moves or
// deletes every row in it, so the next fetch sees only remaining rows.
func (s *Service) drainSource(ctx context.Context, sourceID, targetID string, inTarget map[string]struct{}, stats *Stats) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		members, err := s.repo.ListMembers(ctx, sourceID, pageSize)
		if err != nil {
			return fmt.Errorf("list members of %s: %w", sourceID, err)
		}
		if len(members) == 0 {
			return nil
		}

		for i := range members {
			email := domain.NormalizeEmail(members[i].Email)
			if _, dup := inTarget[email]; dup {
				if err := s.repo.DeleteMember(ctx, members[i].ID); err != nil {
					return fmt.Errorf("delete duplicate %s: %w", members[i].ID, err)
				}
				stats.Skipped++
				continue
			}
			if err := s.repo.MoveMember(ctx, members[i].ID, targetID); err != nil {
				return fmt.Errorf("move member %s: %w", members[i].ID, err)
			}
			inTarget[email] = struct{}{}
			stats.Moved++
		}
	}
}
