// Package access resolves and caches the authorization scope of one user:
// the organizations, channels, membership rows, and co-organization users
// visible to them.
package access

import (
	"sort"
	"time"
)

// Context is the complete authorization scope for one internal user id.
// Every slice is sorted and deduplicated, which keeps predicates built from
// them byte-stable across resolutions of the same scope.
type Context struct {
	OrganizationIDs []string `json:"organizationIds"`
	ChannelIDs      []string `json:"channelIds"`
	MemberIDs       []string `json:"memberIds"`
	CoOrgUserIDs    []string `json:"coOrgUserIds"`
}

// Entry is one cached context snapshot. Expiry is checked at read time
// against ComputedAt; entries are immutable once stored.
type Entry struct {
	Context    Context   `json:"context"`
	ComputedAt time.Time `json:"computedAt"`
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	dedup := out[:1]
	for _, id := range out[1:] {
		if id != dedup[len(dedup)-1] {
			dedup = append(dedup, id)
		}
	}
	return dedup
}
