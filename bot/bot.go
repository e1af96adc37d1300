package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"scan-relay/internal/models"
	"scan-relay/internal/repository"
)

const historySize = 10

// ScanSource is the live scan pipeline as seen by operators
type ScanSource interface {
	List(limit int) []models.ScanEvent
	TotalScans() int
	Pending() int
	Clear(ctx context.Context) error
}

// SettingsSource exposes the current relay settings
type SettingsSource interface {
	Get() models.Settings
}

var (
	bot          *tgbotapi.BotAPI
	targetChatID int64
	scans        ScanSource
	settings     SettingsSource
	archive      repository.ScanHistoryRepository
)

// SetScanSource sets the pipeline used by /status, /history and /clear
func SetScanSource(s ScanSource) {
	scans = s
}

// SetSettingsSource sets the settings shown by /status
func SetSettingsSource(s SettingsSource) {
	settings = s
}

// SetArchive enables /archive backed by durable history
func SetArchive(repo repository.ScanHistoryRepository) {
	archive = repo
}

// Init initializes the Telegram Bot
func Init(token string, authorizedChatIDStr string) error {
	var err error
	bot, err = tgbotapi.NewBotAPI(token)
	if err != nil {
		return err
	}

	bot.Debug = false
	logrus.WithField("account", bot.Self.UserName).Info("telegram bot authorized")

	setAuthorizedChat(authorizedChatIDStr)
	return nil
}

func setAuthorizedChat(raw string) {
	if raw == "" {
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logrus.WithField("value", raw).Warn("invalid AUTHORIZED_CHAT_ID")
		return
	}
	targetChatID = id
}

// StartPolling starts the update loop; it stops when ctx is cancelled
func StartPolling(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	go func() {
		for update := range updates {
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, "")
			msg.ParseMode = "Markdown"
			msg.Text = handleCommand(ctx, update.Message.Command(), update.Message.Chat.ID)

			if _, err := bot.Send(msg); err != nil {
				logrus.WithError(err).Warn("bot send error")
			}
		}
	}()
}

// handleCommand returns the reply text for one command
func handleCommand(ctx context.Context, command string, chatID int64) string {
	switch command {
	case "start":
		return "📷 *Scan Relay*\n\n" +
			"*Commands:*\n" +
			"/status - relay status\n" +
			"/history - last scans\n" +
			"/archive - stored history\n" +
			"/clear - clear history\n" +
			"/getid - this chat's ID"

	case "getid":
		return fmt.Sprintf("Chat ID: `%d`", chatID)

	case "status":
		return statusText()

	case "history":
		return historyText()

	case "archive":
		return archiveText(ctx)

	case "clear":
		return clearHistory(ctx, chatID)

	default:
		return "Unknown command, use /start"
	}
}

func statusText() string {
	if scans == nil {
		return "Scan service not available"
	}

	text := "📡 *Status*\n"
	if settings != nil {
		s := settings.Get()
		endpoint := s.EndpointURL
		if endpoint == "" {
			endpoint = "not configured"
		}
		text += fmt.Sprintf("Endpoint: `%s`\nDevice: %s\nMode: %s\n", endpoint, s.DeviceInfo, s.AppMode)
	}
	text += fmt.Sprintf("Total scans: %d\nSending: %d", scans.TotalScans(), scans.Pending())
	return text
}

func historyText() string {
	if scans == nil {
		return "Scan service not available"
	}
	events := scans.List(historySize)
	if len(events) == 0 {
		return "No scans yet"
	}

	text := "📅 *History*\n\n"
	for _, e := range events {
		text += formatEvent(e)
	}
	return text
}

func archiveText(ctx context.Context) string {
	if archive == nil {
		return "History storage not configured"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	records, err := archive.List(ctx, historySize)
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	if len(records) == 0 {
		return "No stored scans"
	}

	text := "🗄 *Stored history*\n\n"
	for _, r := range records {
		text += formatEvent(r.ScanEvent)
	}
	return text
}

func clearHistory(ctx context.Context, chatID int64) string {
	if targetChatID == 0 || chatID != targetChatID {
		return "⛔ Not authorized"
	}
	if scans == nil {
		return "Scan service not available"
	}
	if err := scans.Clear(ctx); err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	return "🧹 History cleared"
}

func formatEvent(e models.ScanEvent) string {
	return fmt.Sprintf("%s %s `%s`\n", statusBadge(e.Status), e.CapturedAt.Format("15:04:05"), escapeMarkdown(e.Code))
}

func statusBadge(status models.ScanStatus) string {
	switch status {
	case models.StatusDelivered:
		return "✅"
	case models.StatusFailed:
		return "❌"
	case models.StatusInFlight:
		return "⏳"
	default:
		return "•"
	}
}

// escapeMarkdown keeps scanned payloads from breaking inline code spans
func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

// SendNotification sends message to admin
func SendNotification(message string) {
	if bot == nil || targetChatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(targetChatID, message)
	msg.ParseMode = "Markdown"
	if _, err := bot.Send(msg); err != nil {
		logrus.WithError(err).Warn("failed to send notification")
	}
}
