package access

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"relay/proxy/internal/metrics"
	"relay/proxy/internal/store"
)

// DefaultTTL bounds how long a permission change (e.g. channel removal) can
// remain invisible to shape filtering. Deliberately not invalidated on
// writes; tightening this changes database load materially.
const DefaultTTL = 60 * time.Second

// Store is the read surface the resolver needs. *store.PostgresStore
// satisfies it.
type Store interface {
	OrgMembershipsByUser(ctx context.Context, userID string) ([]store.OrgMembership, error)
	ChannelIDsByUser(ctx context.Context, userID string) ([]string, error)
	CoOrgUserIDs(ctx context.Context, userID string) ([]string, error)
}

type Resolver struct {
	store   Store
	cache   Cache
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time
}

func NewResolver(st Store, cache Cache, m *metrics.Metrics) *Resolver {
	return &Resolver{
		store:   st,
		cache:   cache,
		metrics: m,
		ttl:     DefaultTTL,
		now:     time.Now,
	}
}

// Resolve returns the cached context when it is younger than the TTL and
// recomputes otherwise. Concurrent misses for the same key recompute
// independently; the operation is idempotent and last write wins.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Context, error) {
	entry, ok, err := r.cache.Get(ctx, userID)
	if err != nil {
		// A broken cache degrades to recompute-per-request, not to failure.
		log.Printf("access cache get failed for user %s: %v", userID, err)
	} else if ok && r.now().Sub(entry.ComputedAt) < r.ttl {
		r.metrics.RecordCacheHit()
		return entry.Context, nil
	}
	r.metrics.RecordCacheMiss()

	computed, err := r.compute(ctx, userID)
	if err != nil {
		return Context{}, err
	}

	if err := r.cache.Put(ctx, userID, Entry{Context: computed, ComputedAt: r.now()}); err != nil {
		log.Printf("access cache put failed for user %s: %v", userID, err)
	}
	return computed, nil
}

func (r *Resolver) compute(ctx context.Context, userID string) (Context, error) {
	var (
		memberships  []store.OrgMembership
		channelIDs   []string
		coOrgUserIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		memberships, err = r.store.OrgMembershipsByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		channelIDs, err = r.store.ChannelIDsByUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		coOrgUserIDs, err = r.store.CoOrgUserIDs(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Context{}, err
	}

	orgIDs := make([]string, 0, len(memberships))
	memberIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		orgIDs = append(orgIDs, m.OrganizationID)
		memberIDs = append(memberIDs, m.ID)
	}

	return Context{
		OrganizationIDs: sortedUnique(orgIDs),
		ChannelIDs:      sortedUnique(channelIDs),
		MemberIDs:       sortedUnique(memberIDs),
		CoOrgUserIDs:    sortedUnique(coOrgUserIDs),
	}, nil
}
