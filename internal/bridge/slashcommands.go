package bridge

import (
	"fmt"
	"strings"

	"chatbridge/internal/domain"

	"github.com/bwmarrin/discordgo"
)

// registerSlashCommands registers the admin command tree with Discord.
// Commands are global (empty guild ID) so the bridge works in any guild the
// bot was invited to.
func (d *Discord) registerSlashCommands() {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "hello",
			Description: "Debug command.",
		},
		{
			Name:        "user",
			Description: "Configure user settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "block",
					Description: "Block a user from being bridged.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "The user being blocked.", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "unblock",
					Description: "Unblock a user from being bridged.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "The user being unblocked.", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "find",
					Description: "Return a list of the users with that name",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "user", Description: "The user's name to search for.", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List all users.",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "edit",
					Description: "Add or edit a user.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "The User ID of the user to be added/edited.", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "The new name for the user.", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "profile", Description: "A link to the profile picture of the user.", Required: true},
					},
				},
			},
		},
		{
			Name:        "set",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "space",
					Description: "Set which Google Chat Space the bot monitors.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "space_id", Description: "The Google Chat Space ID to monitor.", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "channel",
					Description: "Set the Discord channel for Google Chat messages.",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "The text channel for the bot to send messages to.", Required: true},
					},
				},
			},
		},
	}

	for _, cmd := range commands {
		if _, err := d.session.ApplicationCommandCreate(d.session.State.User.ID, "", cmd); err != nil {
			d.logger.Warn("failed to register slash command", "command", cmd.Name, "err", err)
		}
	}
}

func (d *Discord) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "hello":
		u := interactionUser(i)
		if u == nil {
			return
		}
		d.respond(i, fmt.Sprintf("Hello, %s!", u.Mention()), false)
	case "user":
		d.handleUserCommand(i, data)
	case "set":
		d.handleSetCommand(i, data)
	}
}

// interactionUser resolves the invoking user. discordgo fills Member for
// guild interactions and User for DMs.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func (d *Discord) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}
	if ephemeral {
		resp.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := d.session.InteractionRespond(i.Interaction, resp); err != nil {
		d.logger.Error("interaction respond failed", "err", err)
	}
}

func (d *Discord) isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func (d *Discord) handleUserCommand(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "block":
		if !d.isAdmin(i) {
			d.respond(i, "❌ You are not allowed to use this command.", true)
			return
		}
		userID := sub.Options[0].StringValue()
		if !strings.HasPrefix(userID, "users/") {
			d.respond(i, "❌ Invalid User ID.", true)
			return
		}
		err := d.store.Update(d.ctx, func(st *domain.Settings) {
			if !st.IsBlocked(userID) {
				st.BlockedSenders = append(st.BlockedSenders, userID)
			}
		})
		if err != nil {
			d.respond(i, "❌ Failed to save settings.", true)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Successfully blocked `%s`.", userID), false)

	case "unblock":
		if !d.isAdmin(i) {
			d.respond(i, "❌ You are not allowed to use this command.", true)
			return
		}
		userID := sub.Options[0].StringValue()
		if !strings.HasPrefix(userID, "users/") {
			d.respond(i, "❌ Invalid User ID.", true)
			return
		}
		if !d.store.Snapshot().IsBlocked(userID) {
			d.respond(i, "❌ That user is not blocked.", true)
			return
		}
		err := d.store.Update(d.ctx, func(st *domain.Settings) {
			kept := st.BlockedSenders[:0]
			for _, id := range st.BlockedSenders {
				if id != userID {
					kept = append(kept, id)
				}
			}
			st.BlockedSenders = kept
		})
		if err != nil {
			d.respond(i, "❌ Failed to save settings.", true)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Successfully unblocked `%s`.", userID), false)

	case "find":
		query := strings.ToLower(sub.Options[0].StringValue())
		var sb strings.Builder
		count := 0
		for id, u := range d.store.Snapshot().Users {
			if strings.Contains(strings.ToLower(u.Name), query) {
				fmt.Fprintf(&sb, "\nName: %s\nUser ID: `%s`\n", u.Name, id)
				count++
			}
		}
		if count == 0 {
			d.respond(i, "❌ Could not find any users with that name.", false)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Found %d user(s):\n%s", count, sb.String()), false)

	case "list":
		var sb strings.Builder
		for id, u := range d.store.Snapshot().Users {
			fmt.Fprintf(&sb, "\nName: %s\nUser ID: `%s`\n", u.Name, id)
		}
		if sb.Len() == 0 {
			d.respond(i, "No users registered yet.", false)
			return
		}
		d.respond(i, sb.String(), false)

	case "edit":
		userID := sub.Options[0].StringValue()
		name := sub.Options[1].StringValue()
		profile := sub.Options[2].StringValue()
		if !strings.HasPrefix(userID, "users/") {
			d.respond(i, "❌ Invalid User ID.", true)
			return
		}
		err := d.store.Update(d.ctx, func(st *domain.Settings) {
			st.Users[userID] = domain.UserProfile{Name: name, ProfileURL: profile}
		})
		if err != nil {
			d.respond(i, "❌ Failed to save settings.", true)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Successfully edited user `%s`.", userID), false)
	}
}

func (d *Discord) handleSetCommand(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	if !d.isAdmin(i) {
		d.respond(i, "❌ You are not allowed to use this command.", true)
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "space":
		spaceID := sub.Options[0].StringValue()
		if !strings.HasPrefix(spaceID, "spaces/") {
			d.respond(i, "❌ Invalid Space ID.", true)
			return
		}
		if err := d.store.Update(d.ctx, func(st *domain.Settings) { st.SpaceID = spaceID }); err != nil {
			d.respond(i, "❌ Failed to save settings.", true)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Successfully changed Space ID to `%s`.", spaceID), false)

	case "channel":
		channel := sub.Options[0].ChannelValue(nil)
		if channel == nil {
			d.respond(i, "❌ Invalid channel.", true)
			return
		}
		webhook, err := d.rebindWebhook(channel.ID)
		if err != nil {
			d.logger.Error("webhook rebind failed", "channel", channel.ID, "err", err)
			d.respond(i, "❌ Could not move the webhook to that channel.", true)
			return
		}
		err = d.store.Update(d.ctx, func(st *domain.Settings) {
			st.ChannelID = channel.ID
			st.Webhook = webhook
		})
		if err != nil {
			d.respond(i, "❌ Failed to save settings.", true)
			return
		}
		d.respond(i, fmt.Sprintf("✅ Successfully set the bot channel to <#%s>.", channel.ID), false)
	}
}

// rebindWebhook moves the bridge webhook into the given channel, creating
// it first if none is bound yet.
func (d *Discord) rebindWebhook(channelID string) (domain.WebhookRef, error) {
	st := d.store.Snapshot()
	if st.Webhook.ID == "" {
		wh, err := d.session.WebhookCreate(channelID, defaultWebhookName, "")
		if err != nil {
			return domain.WebhookRef{}, fmt.Errorf("create webhook: %w", err)
		}
		return domain.WebhookRef{ID: wh.ID, Token: wh.Token}, nil
	}

	if _, err := d.session.WebhookEdit(st.Webhook.ID, defaultWebhookName, "", channelID); err != nil {
		return domain.WebhookRef{}, fmt.Errorf("edit webhook: %w", err)
	}
	return st.Webhook, nil
}
