package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate is a SQL boolean expression with positional placeholders and the
// ordered values that fill them. The upstream engine keys subscriptions on
// the clause text, so identical scope must always produce identical bytes.
//
// Caller-influenced values travel only through Params, never through Where.
// Column references are bare names: the upstream parser rejects qualified
// identifiers. At most one top-level subquery per clause; see the
// channel_access materialization note on channelAccess.
type Predicate struct {
	Where  string
	Params []any
}

const (
	orgMembershipSubquery = `SELECT "organizationId" FROM organization_members WHERE "userId" = $1 AND "deletedAt" IS NULL`
	memberIDSubquery      = `SELECT id FROM organization_members WHERE "userId" = $1 AND "deletedAt" IS NULL`
	channelAccessSubquery = `SELECT "channelId" FROM channel_access WHERE "userId" = $1`
)

// noFilter admits every row. Globally visible tables only.
func noFilter() Predicate {
	return Predicate{Where: "true"}
}

// deletedAtNull admits every non-soft-deleted row.
func deletedAtNull() Predicate {
	return Predicate{Where: `"deletedAt" IS NULL`}
}

// orgMembership scopes rows to the caller's active organizations via the
// membership subquery on the given organization-id column.
func orgMembership(orgIDColumn string, softDelete bool, userID string) Predicate {
	where := fmt.Sprintf(`%q IN (%s)`, orgIDColumn, orgMembershipSubquery)
	if softDelete {
		where = `"deletedAt" IS NULL AND ` + where
	}
	return Predicate{Where: where, Params: []any{userID}}
}

// memberRows scopes rows keyed by the caller's own membership-record ids
// (notifications and similar per-member tables).
func memberRows(memberIDColumn string, userID string) Predicate {
	return Predicate{
		Where:  fmt.Sprintf(`%q IN (%s)`, memberIDColumn, memberIDSubquery),
		Params: []any{userID},
	}
}

// channelVisibility scopes channel rows themselves through the materialized
// channel_access table. That materialization exists precisely so this stays
// one subquery instead of channels -> channel_members -> organization_members
// inline, which the upstream planner rejects.
func channelVisibility(userID string) Predicate {
	return Predicate{
		Where:  fmt.Sprintf(`"deletedAt" IS NULL AND "id" IN (%s)`, channelAccessSubquery),
		Params: []any{userID},
	}
}

// channelAccess scopes rows referencing a channel by foreign key.
func channelAccess(channelIDColumn string, softDelete bool, userID string) Predicate {
	where := fmt.Sprintf(`%q IN (%s)`, channelIDColumn, channelAccessSubquery)
	if softDelete {
		where = `"deletedAt" IS NULL AND ` + where
	}
	return Predicate{Where: where, Params: []any{userID}}
}

// ownRows scopes rows carrying the caller's user id directly.
func ownRows(userIDColumn string, softDelete bool, userID string) Predicate {
	where := fmt.Sprintf(`%q = $1`, userIDColumn)
	if softDelete {
		where = `"deletedAt" IS NULL AND ` + where
	}
	return Predicate{Where: where, Params: []any{userID}}
}

// integrationConnections admits org-level connections (no owning user) in
// the caller's organizations, plus the caller's personal connections.
func integrationConnections(userID string) Predicate {
	where := fmt.Sprintf(
		`"deletedAt" IS NULL AND (("userId" IS NULL AND "organizationId" IN (%s)) OR "userId" = $2)`,
		orgMembershipSubquery,
	)
	return Predicate{Where: where, Params: []any{userID, userID}}
}

// messageLinks has no user or channel column of its own; it hangs off a
// channel link. The inner channel_access subquery is uncorrelated and nested
// inside the outer sublink, which the upstream planner counts as one.
func messageLinks(userID string) Predicate {
	where := fmt.Sprintf(
		`"channelLinkId" IN (SELECT id FROM chat_sync_channel_links WHERE "channelId" IN (%s))`,
		channelAccessSubquery,
	)
	return Predicate{Where: where, Params: []any{userID}}
}

// idList admits rows whose column matches one of the given ids, passed as
// literal parameters to avoid spending the clause's subquery budget. Ids are
// sorted so equal scope yields byte-identical output. An empty list denies
// all rows rather than erroring or admitting everything.
func idList(column string, ids []string) Predicate {
	if len(ids) == 0 {
		return Predicate{Where: "false"}
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	placeholders := make([]string, len(sorted))
	params := make([]any, len(sorted))
	for i, id := range sorted {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		params[i] = id
	}
	return Predicate{
		Where:  fmt.Sprintf(`%q IN (%s)`, column, strings.Join(placeholders, ", ")),
		Params: params,
	}
}
