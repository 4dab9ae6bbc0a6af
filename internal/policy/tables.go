// Package policy maps whitelisted tables to the row filter a user's shape
// subscription is scoped by.
package policy

// Table is one entry of the closed shape-subscription whitelist. Requests
// for any other table are rejected before predicate construction; the
// whitelist is a security control, not routing convenience.
type Table string

const (
	TableUsers                  Table = "users"
	TablePresence               Table = "presence"
	TableOrganizations          Table = "organizations"
	TableOrganizationMembers    Table = "organization_members"
	TableChannels               Table = "channels"
	TableChannelMembers         Table = "channel_members"
	TableChannelSections        Table = "channel_sections"
	TableChannelAccess          Table = "channel_access"
	TableMessages               Table = "messages"
	TableReactions              Table = "reactions"
	TableAttachments            Table = "attachments"
	TableNotifications          Table = "notifications"
	TablePinnedMessages         Table = "pinned_messages"
	TableTypingIndicators       Table = "typing_indicators"
	TableInvitations            Table = "invitations"
	TableBots                   Table = "bots"
	TableBotCommands            Table = "bot_commands"
	TableBotInstallations       Table = "bot_installations"
	TableIntegrationConnections Table = "integration_connections"
	TableChatSyncIntegrations   Table = "chat_sync_integrations"
	TableChatSyncChannelLinks   Table = "chat_sync_channel_links"
	TableChatSyncMessageLinks   Table = "chat_sync_message_links"
	TableCustomEmojis           Table = "custom_emojis"
)

// Tables lists the whole whitelist. Tests iterate it to prove every entry
// has a predicate mapping.
var Tables = []Table{
	TableUsers,
	TablePresence,
	TableOrganizations,
	TableOrganizationMembers,
	TableChannels,
	TableChannelMembers,
	TableChannelSections,
	TableChannelAccess,
	TableMessages,
	TableReactions,
	TableAttachments,
	TableNotifications,
	TablePinnedMessages,
	TableTypingIndicators,
	TableInvitations,
	TableBots,
	TableBotCommands,
	TableBotInstallations,
	TableIntegrationConnections,
	TableChatSyncIntegrations,
	TableChatSyncChannelLinks,
	TableChatSyncMessageLinks,
	TableCustomEmojis,
}

var whitelist = func() map[Table]struct{} {
	m := make(map[Table]struct{}, len(Tables))
	for _, t := range Tables {
		m[t] = struct{}{}
	}
	return m
}()

// Lookup resolves a requested table name against the whitelist.
func Lookup(name string) (Table, bool) {
	table := Table(name)
	_, ok := whitelist[table]
	return table, ok
}
