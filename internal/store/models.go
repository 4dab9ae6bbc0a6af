package store

import "time"

type User struct {
	ID          string
	ExternalID  string
	Email       string
	DisplayName string
	DeletedAt   *time.Time
}

// OrgMembership is one active organization_members row for a user. The
// membership id is what member-scoped tables (notifications) key on.
type OrgMembership struct {
	ID             string
	OrganizationID string
}
