// Package velocity counts how often an applicant has applied recently.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Service counts recent applications per applicant from stored evaluations.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// ApplicationCount returns the number of evaluations stored for an applicant
// within the trailing window.
func (s *Service) ApplicationCount(ctx context.Context, tenantID, applicantID string, windowSecs int) (int64, error) {
	if tenantID == "" || applicantID == "" {
		return 0, fmt.Errorf("tenantID and applicantID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}
	if windowSecs <= 0 {
		return 0, nil
	}

	since := s.now().UTC().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountEvaluationsByApplicant(ctx, tenantID, applicantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return int64(count), nil
}

// CountGetter adapts the service for the rule engine.
func (s *Service) CountGetter() rules.CountGetter {
	return s.ApplicationCount
}
