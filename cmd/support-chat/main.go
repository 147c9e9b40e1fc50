package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"tourbook-chat/internal/config"
	"tourbook-chat/internal/pkg/logger"
	pktNats "tourbook-chat/pkg/nats"
	"tourbook-chat/pkg/supportchat"
	"tourbook-chat/pkg/supportchat/api"
	"tourbook-chat/pkg/supportchat/auth"
	"tourbook-chat/pkg/supportchat/channel"
	"tourbook-chat/pkg/supportchat/conversation"
	"tourbook-chat/pkg/supportchat/notify"
)

const usage = `commands: /mode support|ai  /clear  /new  /away  /back  /quit`

func main() {
	cfg := config.Load()
	if cfg.Client.Token == "" {
		log.Fatal("Error: CHAT_TOKEN is not set")
	}

	clientLogger := logger.NewIsolatedLogger(cfg.App.ChannelLogFilePath, !cfg.IsProduction())
	defer clientLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	out := color.Output

	tokens := auth.NewTokenLookup(cfg.Client.Token)
	client := api.NewClient(cfg.Client.APIBaseURL, tokens.Token, cfg.Client.HTTPTimeout)

	focus := &notify.Focus{}
	notifier := notify.NewTerminalNotifier(out, notify.PermissionDefault)
	notifier.Ask = func(context.Context) (bool, error) {
		fmt.Fprint(out, "Show a banner for support replies while you are away? [y/N] ")
		answer, err := in.ReadString('\n')
		if err != nil {
			return false, err
		}
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y"), nil
	}
	sink := notify.NewSink(notify.Bell{W: out},
		notify.WithNotifier(notifier),
		notify.WithToaster(notify.ColorToaster{W: out}),
		notify.WithVisibility(focus),
		notify.WithLogger(clientLogger),
	)

	// Without NATS the manager reports ErrNotConfigured and the chat runs
	// degraded on history reloads.
	var dialer channel.Dialer
	if cfg.Realtime.NatsURL != "" {
		dialer = pktNats.NewDialer(cfg.Realtime.NatsURL, cfg.Realtime.NatsToken, clientLogger)
	}
	manager := channel.NewManager(dialer,
		channel.WithPrefix(cfg.Realtime.ChannelPrefix),
		channel.WithAlerter(sink),
		channel.WithLogger(clientLogger),
		channel.WithDevelopment(!cfg.IsProduction()),
	)

	mode := supportchat.Mode(strings.ToLower(strings.TrimSpace(cfg.Client.Mode)))
	if !mode.Valid() {
		clientLogger.Warn("SupportChatCLI", "Unknown CHAT_MODE, starting in support mode", map[string]interface{}{"mode": cfg.Client.Mode})
		mode = supportchat.ModeSupport
	}

	v := newView(out)
	var ctrl *conversation.Controller
	ctrl = conversation.New(conversation.Deps{
		Auth:        tokens,
		Messages:    client,
		Sessions:    client,
		Channel:     manager,
		Permissions: sink,
	},
		conversation.WithLogger(clientLogger),
		conversation.WithMode(mode),
		conversation.WithOnChange(func() { v.render(ctrl) }),
	)
	defer ctrl.Dispose()

	if err := ctrl.Init(ctx); err != nil {
		v.errorf("loading history failed: %v", err)
	}
	v.info(usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := in.ReadString('\n')
			if line != "" {
				lines <- strings.TrimRight(line, "\r\n")
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, ctrl, v, focus, line) {
				return
			}
		}
	}
}

// handleLine runs one input line and reports whether the client keeps going.
func handleLine(ctx context.Context, ctrl *conversation.Controller, v *view, focus *notify.Focus, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	if !strings.HasPrefix(trimmed, "/") {
		send(ctx, ctrl, v, line)
		return true
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	switch cmd {
	case "/quit":
		return false
	case "/mode":
		if err := ctrl.SwitchMode(ctx, supportchat.Mode(strings.TrimSpace(arg))); err != nil {
			v.errorf("%v", err)
		}
	case "/clear":
		if err := ctrl.ClearHistory(ctx); err != nil {
			v.errorf("clear failed: %v", err)
		}
	case "/new":
		if err := ctrl.StartNewSession(ctx); err != nil {
			v.errorf("could not start a new conversation: %v", err)
		}
	case "/away":
		focus.SetHidden(true)
	case "/back":
		focus.SetHidden(false)
	default:
		v.info(usage)
	}
	return true
}

func send(ctx context.Context, ctrl *conversation.Controller, v *view, text string) {
	err := ctrl.Send(ctx, text)
	if err == nil {
		return
	}

	var rejected *api.WriteRejectedError
	var failed *conversation.SendError
	switch {
	case errors.Is(err, conversation.ErrSendInFlight):
		v.errorf("still sending the previous message")
	case errors.As(err, &rejected):
		v.errorf("%s. Type /new to start a new conversation.", rejected.Error())
	case errors.As(err, &failed):
		v.errorf("not sent: %v", failed.Err)
		v.info("your message: " + failed.Text)
	default:
		v.errorf("not sent: %v", err)
	}
}
