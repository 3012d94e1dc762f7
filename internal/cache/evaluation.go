package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrMissingTenant is returned for calls without a tenant.
var ErrMissingTenant = errors.New("tenantID is required")

// byteStore is the raw key/value surface every cache tier exposes.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

// scopedKey prefixes key with its tenant.
func scopedKey(tenantID, key string) (string, error) {
	if tenantID == "" {
		return "", ErrMissingTenant
	}
	return tenantID + ":" + key, nil
}

func evaluationKey(evalID string) string {
	return "eval:" + evalID
}

func counterKey(name string) string {
	return "counter:" + name
}

func getEvaluation(ctx context.Context, s byteStore, tenantID, evalID string) (*domain.Evaluation, error) {
	data, err := s.Get(ctx, tenantID, evaluationKey(evalID))
	if err != nil || data == nil {
		return nil, err
	}

	var eval domain.Evaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		return nil, fmt.Errorf("corrupt cached evaluation %s: %w", evalID, err)
	}
	// Snapshots are only ever written under their own tenant.
	if eval.TenantID != "" && eval.TenantID != tenantID {
		return nil, nil
	}
	return &eval, nil
}

func setEvaluation(ctx context.Context, s byteStore, tenantID string, eval *domain.Evaluation, ttl time.Duration) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("evaluation ID is required")
	}
	data, err := json.Marshal(eval)
	if err != nil {
		return err
	}
	return s.Set(ctx, tenantID, evaluationKey(eval.ID), data, ttl)
}
