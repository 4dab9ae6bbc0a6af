package policy

import (
	"fmt"
	"sort"

	"relay/proxy/internal/access"
)

// ErrorKind separates the client's fault (asking for a table outside the
// whitelist) from ours (a whitelisted table with no predicate mapping).
type ErrorKind int

const (
	ErrNotWhitelisted ErrorKind = iota
	ErrNotHandled
)

type AccessError struct {
	Table string
	Kind  ErrorKind
}

func (e *AccessError) Error() string {
	if e.Kind == ErrNotHandled {
		return fmt.Sprintf("table not handled in where-clause system: %s", e.Table)
	}
	return fmt.Sprintf("table not whitelisted: %s", e.Table)
}

// For builds the filter predicate scoping the given table to the user's
// authorization scope. Callers must have resolved the table through Lookup;
// a whitelisted table falling through the switch is a programmer error and
// returns an ErrNotHandled AccessError, never a silent allow or deny.
func For(table Table, userID string, scope access.Context) (Predicate, error) {
	switch table {
	case TableUsers:
		return idList("id", withSelf(scope.CoOrgUserIDs, userID)), nil
	case TablePresence:
		return noFilter(), nil
	case TableOrganizations:
		return orgMembership("id", true, userID), nil
	case TableOrganizationMembers:
		return orgMembership("organizationId", true, userID), nil
	case TableChannels:
		return channelVisibility(userID), nil
	case TableChannelMembers:
		return channelAccess("channelId", true, userID), nil
	case TableChannelSections:
		// Sidebar sections are personal, never shared.
		return ownRows("userId", true, userID), nil
	case TableChannelAccess:
		return ownRows("userId", false, userID), nil
	case TableMessages:
		return channelAccess("channelId", true, userID), nil
	case TableReactions:
		return channelAccess("channelId", false, userID), nil
	case TableAttachments:
		return channelAccess("channelId", true, userID), nil
	case TableNotifications:
		return memberRows("memberId", userID), nil
	case TablePinnedMessages:
		return channelAccess("channelId", false, userID), nil
	case TableTypingIndicators:
		return channelAccess("channelId", false, userID), nil
	case TableInvitations:
		return orgMembership("organizationId", true, userID), nil
	case TableBots:
		return orgMembership("organizationId", true, userID), nil
	case TableBotCommands:
		// The command catalog is global; soft delete still applies.
		return deletedAtNull(), nil
	case TableBotInstallations:
		return orgMembership("organizationId", true, userID), nil
	case TableIntegrationConnections:
		return integrationConnections(userID), nil
	case TableChatSyncIntegrations:
		return orgMembership("organizationId", true, userID), nil
	case TableChatSyncChannelLinks:
		return channelAccess("channelId", true, userID), nil
	case TableChatSyncMessageLinks:
		return messageLinks(userID), nil
	case TableCustomEmojis:
		return orgMembership("organizationId", true, userID), nil
	default:
		return Predicate{}, &AccessError{Table: string(table), Kind: ErrNotHandled}
	}
}

// withSelf guarantees the caller appears in their own visible-user set even
// when they belong to no organization.
func withSelf(userIDs []string, userID string) []string {
	for _, id := range userIDs {
		if id == userID {
			return userIDs
		}
	}
	merged := make([]string, 0, len(userIDs)+1)
	merged = append(merged, userIDs...)
	merged = append(merged, userID)
	sort.Strings(merged)
	return merged
}
