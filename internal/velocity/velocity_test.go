package velocity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func TestVelocityService(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "velocity-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo)

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("EmptyDatabase", func(t *testing.T) {
		count, err := svc.ApplicationCount(ctx, tenantID, "applicant-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for empty database, got %d", count)
		}
	})

	t.Run("WithEvaluations", func(t *testing.T) {
		now := time.Now().UTC()
		save := func(id string, ts time.Time) {
			eval := &domain.Evaluation{
				ID:            id,
				ApplicationID: "app-" + id,
				ApplicantID:   "applicant-001",
				Status:        domain.StatusClear,
				Timestamp:     ts,
				Score:         &domain.ScoreResult{Decision: domain.DecisionApproved, Probability: 0.9},
			}
			if err := repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
				t.Fatalf("failed to save evaluation: %v", err)
			}
		}
		for i := 0; i < 4; i++ {
			save(fmt.Sprintf("eval-%d", i), now)
		}
		save("eval-old", now.Add(-3*time.Hour))

		count, err := svc.ApplicationCount(ctx, tenantID, "applicant-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 4 {
			t.Errorf("expected count 4 within an hour, got %d", count)
		}

		count, _ = svc.ApplicationCount(ctx, tenantID, "applicant-001", 86400)
		if count != 5 {
			t.Errorf("expected count 5 within a day, got %d", count)
		}

		count, _ = svc.ApplicationCount(ctx, tenantID, "unknown-applicant", 3600)
		if count != 0 {
			t.Errorf("expected count 0 for unknown applicant, got %d", count)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		count, err := svc.ApplicationCount(ctx, "other-tenant", "applicant-001", 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for different tenant, got %d", count)
		}
	})

	t.Run("ZeroWindow", func(t *testing.T) {
		count, err := svc.ApplicationCount(ctx, tenantID, "applicant-001", 0)
		if err != nil || count != 0 {
			t.Errorf("expected 0 for empty window, got %d, %v", count, err)
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if _, err := svc.ApplicationCount(ctx, "", "applicant-001", 3600); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.ApplicationCount(ctx, tenantID, "", 3600); err == nil {
			t.Error("expected error for empty applicantID")
		}
	})

	t.Run("CountGetter", func(t *testing.T) {
		getter := svc.CountGetter()
		count, err := getter(ctx, tenantID, "applicant-001", 3600)
		if err != nil {
			t.Fatalf("CountGetter failed: %v", err)
		}
		if count != 4 {
			t.Errorf("expected count 4, got %d", count)
		}
	})
}

func TestNoDataSource(t *testing.T) {
	svc := &Service{now: time.Now}

	if _, err := svc.ApplicationCount(context.Background(), "tenant", "applicant", 3600); err == nil {
		t.Error("expected error with no data source")
	}
}
