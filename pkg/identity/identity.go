// Package identity implements the Identity external interface (spec §6):
// resolving a user id to the approver role (FLM/SLM/RevOps) the workflow
// state machine needs to validate who is allowed to make a given
// transition.
package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordigilh/territory-assignment-core/internal/apperrors"
	"github.com/jordigilh/territory-assignment-core/pkg/workflow"
)

// RoleSource is whatever backs role lookups (an HRIS integration, an org
// directory, or a Postgres roles table); Redis-cached here, since role
// assignments change far less often than they are read.
type RoleSource interface {
	LookupRole(ctx context.Context, userID string) (workflow.ApproverRole, error)
}

// CachedIdentity implements the Identity interface with a Redis read-through
// cache in front of a RoleSource.
type CachedIdentity struct {
	source RoleSource
	client *redis.Client
	ttl    time.Duration
}

func NewCachedIdentity(source RoleSource, client *redis.Client, ttl time.Duration) *CachedIdentity {
	return &CachedIdentity{source: source, client: client, ttl: ttl}
}

// ResolveRole implements spec §6 Identity.
func (c *CachedIdentity) ResolveRole(ctx context.Context, userID string) (workflow.ApproverRole, error) {
	key := "identity-role:" + userID

	if cached, err := c.client.Get(ctx, key).Result(); err == nil && cached != "" {
		return workflow.ApproverRole(cached), nil
	}

	role, err := c.source.LookupRole(ctx, userID)
	if err != nil {
		return "", apperrors.NewStoreUnavailable(err)
	}

	c.client.Set(ctx, key, string(role), c.ttl)
	return role, nil
}
