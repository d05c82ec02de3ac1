package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatbridge/internal/domain"
	"chatbridge/internal/metrics"
	"chatbridge/internal/settings"
)

// Command is a parsed control instruction from the Google Chat side.
type Command struct {
	Name string
	Args []string
}

// ParseCommand checks whether text starts with the command prefix and parses
// it. Returns nil when the text is ordinary chat content.
func ParseCommand(text, prefix string) *Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) {
		return nil
	}

	parts := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(parts) == 0 {
		return &Command{}
	}
	return &Command{
		Name: strings.ToLower(parts[0]),
		Args: parts[1:],
	}
}

// CommandHandler executes one command on behalf of the invoking sender and
// returns the reply to post back into the space.
type CommandHandler func(ctx context.Context, args []string, senderID string) (string, error)

// Interpreter intercepts commands from the Google Chat feed. Command
// messages are never relayed to Discord, recognized or not.
type Interpreter struct {
	prefix   string
	store    *settings.Store
	logger   *slog.Logger
	handlers map[string]CommandHandler
}

func NewInterpreter(prefix string, store *settings.Store, logger *slog.Logger) *Interpreter {
	i := &Interpreter{
		prefix: prefix,
		store:  store,
		logger: logger,
	}
	i.handlers = map[string]CommandHandler{
		"help":  i.cmdHelp,
		"hello": i.cmdHello,
		"user":  i.cmdUser,
	}
	return i
}

// Handle runs the interpreter over one message. handled is false only when
// the text does not start with the prefix at all; an unrecognized or failed
// command is still handled, with an error notice as the reply.
func (i *Interpreter) Handle(ctx context.Context, text, senderID string) (handled bool, reply string) {
	cmd := ParseCommand(text, i.prefix)
	if cmd == nil {
		return false, ""
	}

	metrics.CommandsHandled.Inc()

	h, ok := i.handlers[cmd.Name]
	if !ok {
		i.logger.Info("unrecognized command", "name", cmd.Name, "sender", senderID)
		return true, "❌ Invalid command."
	}

	resp, err := h(ctx, cmd.Args, senderID)
	if err != nil {
		i.logger.Warn("command rejected", "name", cmd.Name, "sender", senderID, "err", err)
		return true, "❌ " + err.Error()
	}
	return true, resp
}

func (i *Interpreter) cmdHelp(ctx context.Context, args []string, senderID string) (string, error) {
	return "Commands\n" +
		"\t`!hello` — Debug command to say hello to the bot\n" +
		"\t`!user set <profile link> <name>` — Set your name and profile picture on Discord", nil
}

func (i *Interpreter) cmdHello(ctx context.Context, args []string, senderID string) (string, error) {
	user := i.store.Snapshot().ResolveUser(senderID)
	return fmt.Sprintf("Hello, %s!", user.Name), nil
}

func (i *Interpreter) cmdUser(ctx context.Context, args []string, senderID string) (string, error) {
	if len(args) == 0 || args[0] != "set" {
		return "", fmt.Errorf("invalid arguments. Usage: `!user set <profile link> <name>`")
	}
	if len(args) < 3 {
		return "", fmt.Errorf("invalid arguments. Usage: `!user set <profile link> <name>`")
	}

	profile := args[1]
	name := strings.Join(args[2:], " ")

	err := i.store.Update(ctx, func(s *domain.Settings) {
		s.Users[senderID] = domain.UserProfile{Name: name, ProfileURL: profile}
	})
	if err != nil {
		i.logger.Error("failed to save user profile", "sender", senderID, "err", err)
		return "", fmt.Errorf("could not save your profile, try again later")
	}

	return fmt.Sprintf("Successfully changed your Discord name to %s and your <%s|profile picture>.", name, profile), nil
}
