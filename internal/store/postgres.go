package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when an external user id has no user row.
var ErrUserNotFound = errors.New("user not found")

// PostgresStore issues the proxy's read-only queries. The application's write
// paths own every table touched here, including the channel_access
// materialization; this store never mutates.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) UserByExternalID(ctx context.Context, externalID string) (User, error) {
	const query = `
		SELECT id, "externalId", email, "displayName"
		FROM users
		WHERE "externalId" = $1 AND "deletedAt" IS NULL
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, externalID).Scan(&user.ID, &user.ExternalID, &user.Email, &user.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user by external id: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) OrgMembershipsByUser(ctx context.Context, userID string) ([]OrgMembership, error) {
	const query = `
		SELECT id, "organizationId"
		FROM organization_members
		WHERE "userId" = $1 AND "deletedAt" IS NULL
		ORDER BY "organizationId"
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list org memberships: %w", err)
	}
	defer rows.Close()

	var memberships []OrgMembership
	for rows.Next() {
		var m OrgMembership
		if err := rows.Scan(&m.ID, &m.OrganizationID); err != nil {
			return nil, fmt.Errorf("scan org membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list org memberships: %w", err)
	}
	return memberships, nil
}

func (s *PostgresStore) ChannelIDsByUser(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT "channelId"
		FROM channel_members
		WHERE "userId" = $1 AND "deletedAt" IS NULL
		ORDER BY "channelId"
	`
	return s.queryIDs(ctx, query, userID)
}

// CoOrgUserIDs lists every user sharing at least one active organization with
// the given user, the user included. Self-joined so it is independent of the
// membership read and all three context reads can run concurrently.
func (s *PostgresStore) CoOrgUserIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT DISTINCT om."userId"
		FROM organization_members om
		WHERE om."deletedAt" IS NULL
			AND om."organizationId" IN (
				SELECT "organizationId"
				FROM organization_members
				WHERE "userId" = $1 AND "deletedAt" IS NULL
			)
		ORDER BY om."userId"
	`
	return s.queryIDs(ctx, query, userID)
}

func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	return ids, nil
}
