// Package workspace resolves a tenant's primary workspace id through a
// short-TTL cache. The cache is a non-authoritative convenience lookup and
// must never feed visibility decisions; the tenancy guard owns those.
package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"

	"project-service/internal/model"
	"project-service/prometheus"
)

// ErrNoWorkspace is returned when a tenant has no workspace at all.
var ErrNoWorkspace = errors.New("tenant has no workspace")

// Cache maps tenant id to primary workspace id.
type Cache interface {
	PrimaryWorkspaceID(ctx context.Context, tenantID uint) (uint, error)
	Invalidate(tenantID uint)
}

const cacheSize = 1024

type lruCache struct {
	db  *gorm.DB
	lru *expirable.LRU[uint, uint]
}

// NewCache constructs a Cache with the given entry TTL (~60s in production).
func NewCache(db *gorm.DB, ttl time.Duration) Cache {
	return &lruCache{
		db:  db,
		lru: expirable.NewLRU[uint, uint](cacheSize, nil, ttl),
	}
}

// PrimaryWorkspaceID returns the tenant's primary workspace id, querying the
// database on cache miss. Exactly one primary workspace is expected per
// tenant, but zero or many are tolerated: the lowest-id primary wins, and a
// tenant with no primary falls back to its lowest-id workspace.
func (c *lruCache) PrimaryWorkspaceID(ctx context.Context, tenantID uint) (uint, error) {
	if id, ok := c.lru.Get(tenantID); ok {
		prometheus.RecordWorkspaceCacheLookup(true)
		return id, nil
	}
	prometheus.RecordWorkspaceCacheLookup(false)

	var ws model.Workspace
	err := c.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_primary DESC, id ASC").
		First(&ws).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNoWorkspace
		}
		return 0, err
	}

	c.lru.Add(tenantID, ws.ID)
	return ws.ID, nil
}

// Invalidate drops the cached entry for a tenant.
func (c *lruCache) Invalidate(tenantID uint) {
	c.lru.Remove(tenantID)
}
