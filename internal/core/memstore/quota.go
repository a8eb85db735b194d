package memstore

import (
	"context"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (s *Store) GetQuota(_ context.Context, organizationID string) (*models.OrganizationQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[organizationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrQuotaNotFound, organizationID)
	}
	c := *q
	return &c, nil
}

func (s *Store) SaveQuota(_ context.Context, quota *models.OrganizationQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *quota
	s.quotas[quota.OrganizationID] = &c
	return nil
}
