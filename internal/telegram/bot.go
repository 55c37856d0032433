// Package telegram exposes run control commands over a Telegram bot and
// delivers run summaries to chats.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/cascada/internal/orchestrator"
	"github.com/user/cascada/internal/playback"
	"github.com/user/cascada/internal/types"
)

const maxTelegramMessage = 4096

// KeyPrefix is the delivery key prefix handled by SendTo.
const KeyPrefix = "telegram:"

// Controller is the run control surface the bot drives.
type Controller interface {
	Start(ctx context.Context) (types.RunID, error)
	Reset()
	Snapshot() orchestrator.Snapshot
	Summary() (orchestrator.Summary, bool)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot bridges Telegram to the orchestrator.
type Bot struct {
	api     *tgbotapi.BotAPI
	send    sender
	ctl     Controller
	allowed map[int64]bool
}

// New creates a bot. When allowedChats is non-empty, commands from other
// chats are ignored.
func New(token string, ctl Controller, allowedChats []int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b := newBot(api, ctl, allowedChats)
	b.api = api
	return b, nil
}

func newBot(send sender, ctl Controller, allowedChats []int64) *Bot {
	allowed := make(map[int64]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}
	return &Bot{send: send, ctl: ctl, allowed: allowed}
}

// Start long-polls for updates until ctx is done. Runs started from chat
// commands live on ctx.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message.Chat.ID, update.Message.Command())
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command string) {
	if len(b.allowed) > 0 && !b.allowed[chatID] {
		slog.Warn("telegram command from unknown chat", "chat_id", chatID, "command", command)
		return
	}

	switch command {
	case "start", "help":
		b.reply(chatID, "Commands: /run starts a negotiation run, /reset stops it, /status shows progress, /summary shows the best deal.")

	case "run":
		runID, err := b.ctl.Start(ctx)
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			b.reply(chatID, "A run is already in progress. Send /reset first.")
			return
		}
		if err != nil {
			slog.Error("telegram run failed", "error", err)
			b.reply(chatID, "Could not start the run.")
			return
		}
		b.reply(chatID, fmt.Sprintf("Run %s started with %d retailers.", shortID(runID), len(b.ctl.Snapshot().Threads)))

	case "reset":
		b.ctl.Reset()
		b.reply(chatID, "Run reset.")

	case "status":
		b.reply(chatID, formatStatus(b.ctl.Snapshot()))

	case "summary":
		sum, ok := b.ctl.Summary()
		if !ok {
			b.reply(chatID, "No summary yet.")
			return
		}
		b.reply(chatID, sum.Text())

	default:
		b.reply(chatID, "Unknown command. Available: /run, /reset, /status, /summary")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.sendText(chatID, text); err != nil {
		slog.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := b.send.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// SendTo delivers text to a "telegram:<chat_id>" key. It satisfies
// delivery.Handler.
func (b *Bot) SendTo(_ context.Context, key, text string) error {
	chatID, err := parseChatKey(key)
	if err != nil {
		return err
	}
	return b.sendText(chatID, text)
}

// ChatKey returns the delivery key of a chat.
func ChatKey(chatID int64) string {
	return types.NewDeliveryKey("telegram", strconv.FormatInt(chatID, 10))
}

func parseChatKey(key string) (int64, error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid telegram key: %s", key)
	}
	chatID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", rest, err)
	}
	return chatID, nil
}

// splitMessage cuts text into Telegram-sized parts, preferring line breaks
// and never splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		if nl := strings.LastIndexByte(text[:end], '\n'); nl > maxTelegramMessage/2 {
			end = nl + 1
		}
		for end > 0 && !utf8Start(text[end]) {
			end--
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

func shortID(id types.RunID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func formatStatus(snap orchestrator.Snapshot) string {
	if snap.StartedAt == nil {
		return fmt.Sprintf("Idle. %d retailers ready at speed %gx.", len(snap.Threads), snap.Speed)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d/%d finished, stage %s\n", shortID(snap.RunID), snap.Completed, len(snap.Threads), snap.Stage)
	for _, th := range snap.Threads {
		fmt.Fprintf(&b, "- %s: %s", th.CounterpartyName, th.Status)
		if th.Status == playback.StatusSucceeded && th.FinalDiscount > 0 {
			fmt.Fprintf(&b, " (%g%%)", th.FinalDiscount)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
