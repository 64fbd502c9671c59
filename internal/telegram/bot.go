// Package telegram exposes recipe generation and the weekly plan through a
// Telegram bot.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartchef/internal/app"
	"smartchef/internal/config"
	"smartchef/internal/generator"
	"smartchef/internal/logging"
	"smartchef/internal/metrics"
	"smartchef/internal/recipe"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// WebhookPath is where Telegram delivers updates.
const WebhookPath = "/telegram/webhook"

const contextBloatTokens = 4000

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot wraps the Telegram API and the application sessions.
type Bot struct {
	api          Sender
	app          *app.App
	metricsStore *metrics.Store
	cfg          *config.Config
	log          logrus.FieldLogger

	now   func() time.Time
	mu    sync.Mutex
	users map[int64]*userState
}

// userState is what the bot remembers about one Telegram user.
type userState struct {
	results  []recipe.Recipe
	lastSeen time.Time
	// stopNotices ends the notice forwarder; nil when none runs.
	stopNotices context.CancelFunc
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, a *app.App, metricsStore *metrics.Store, log logrus.FieldLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log = logging.WithComponent(log, "telegram")
	log.WithField("account", api.Self.UserName).Info("Authorized on Telegram")

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		log.WithField("response", resp.Description).Info("Webhook set")
	}

	return newBot(api, cfg, a, metricsStore, log), nil
}

func newBot(api Sender, cfg *config.Config, a *app.App, metricsStore *metrics.Store, log logrus.FieldLogger) *Bot {
	return &Bot{
		api:          api,
		app:          a,
		metricsStore: metricsStore,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
		users:        make(map[int64]*userState),
	}
}

// user returns the state of userID, marking it as seen. Callers hold b.mu.
func (b *Bot) user(userID int64) *userState {
	u, ok := b.users[userID]
	if !ok {
		u = &userState{}
		b.users[userID] = u
	}
	u.lastSeen = b.now()
	return u
}

// EvictIdle forgets users silent for ttl and stops their notice forwarders,
// which lets the app evict their sessions.
func (b *Bot) EvictIdle(ttl time.Duration) int {
	cutoff := b.now().Add(-ttl)

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for id, u := range b.users {
		if !u.lastSeen.Before(cutoff) {
			continue
		}
		if u.stopNotices != nil {
			u.stopNotices()
		}
		delete(b.users, id)
		n++
	}
	return n
}

// Run evicts idle users until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	ttl := b.cfg.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.EvictIdle(ttl); n > 0 {
				b.log.WithField("evicted", n).Info("forgot idle telegram users")
			}
		}
	}
}

// ServeHTTP handles webhook deliveries.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.log.WithError(err).Warn("Error parsing update")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil || update.Message.From == nil {
		return
	}
	if !b.allowed(update.Message.From.ID) {
		b.log.WithFields(logrus.Fields{
			"user_id":  update.Message.From.ID,
			"username": update.Message.From.UserName,
		}).Warn("Unauthorized access attempt")
		return
	}

	go b.processMessage(context.Background(), update.Message)
}

// allowed accepts everyone when no allow list is configured.
func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.TelegramAllowedUserIDs) == 0 {
		return true
	}
	return slices.Contains(b.cfg.TelegramAllowedUserIDs, userID)
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	b.mu.Lock()
	b.user(msg.From.ID)
	b.mu.Unlock()

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.sendMarkdown(msg.Chat.ID, helpText)
		case "recipes":
			b.handleGenerate(ctx, msg, msg.CommandArguments())
		case "save":
			b.handleSave(msg)
		case "remove":
			b.handleRemove(msg)
		case "plan":
			b.handlePlan(msg)
		case "metrics":
			b.handleMetricsRequest(ctx, msg)
		default:
			b.sendMarkdown(msg.Chat.ID, "🤔 Unknown command. Send /help for the list.")
		}
		return
	}

	b.handleGenerate(ctx, msg, msg.Text)
}

const helpText = `👨‍🍳 *SmartChef*

Send the ingredients you have, e.g.
` + "`chicken, rice | Vegetarian | 20`" + `
(ingredients | dietary preference | max minutes)

/recipes <ingredients> - suggest recipes
/save <n> <day> <meal> - put recipe n in your plan
/remove <day> <meal> - clear a slot
/plan - show this week's plan`

// parseRequest reads "ingredients | dietary | minutes"; the last two are optional.
func parseRequest(text string) generator.Request {
	parts := strings.Split(text, "|")
	req := generator.Request{Ingredients: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		req.Dietary = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil {
			req.MaxMinutes = n
		}
	}
	return req
}

func (b *Bot) handleGenerate(ctx context.Context, msg *tgbotapi.Message, text string) {
	req := parseRequest(text)
	if strings.TrimSpace(req.Ingredients) == "" {
		b.sendMarkdown(msg.Chat.ID, "🥕 "+generator.EmptyIngredientsMessage)
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, "🧑‍🍳 *Thinking...*")
	reply.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(reply)
	if err != nil {
		b.log.WithError(err).Error("Failed to send initial reply")
		return
	}

	res, err := b.app.GenerateRecipes(ctx, req)
	if err != nil {
		b.edit(msg.Chat.ID, sent.MessageID, "❌ "+escapeMarkdown(err.Error()))
		return
	}
	if res.Meta.Usage.PromptTokens > contextBloatTokens {
		b.sendAdminAlert(fmt.Sprintf("⚠️ *Context Bloat Alert*\nModel: %s\nPrompt Tokens: %d", res.Meta.Usage.Model, res.Meta.Usage.PromptTokens))
	}

	b.mu.Lock()
	b.user(msg.From.ID).results = res.Recipes
	b.mu.Unlock()

	b.edit(msg.Chat.ID, sent.MessageID, formatRecipesMarkdown(res))
}

func (b *Bot) session(msg *tgbotapi.Message) *app.Session {
	s := b.app.Session(fmt.Sprintf("telegram:%d", msg.From.ID))

	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.user(msg.From.ID)
	if u.stopNotices == nil {
		ctx, cancel := context.WithCancel(context.Background())
		u.stopNotices = cancel
		go b.forwardNotices(ctx, u, msg.Chat.ID, s)
	}
	return s
}

// forwardNotices relays meal plan errors to the chat until ctx is done or
// the session ends.
func (b *Bot) forwardNotices(ctx context.Context, u *userState, chatID int64, s *app.Session) {
	for ev := range s.Watch(ctx) {
		if ev.Type == app.EventNotice {
			b.sendMarkdown(chatID, "⚠️ "+escapeMarkdown(ev.Notice.Message))
		}
	}
	b.mu.Lock()
	if u.stopNotices != nil {
		u.stopNotices()
		u.stopNotices = nil
	}
	b.mu.Unlock()
}

func (b *Bot) handleSave(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 3 {
		b.sendMarkdown(msg.Chat.ID, "Usage: `/save <n> <day> <meal>`")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, "Usage: `/save <n> <day> <meal>`")
		return
	}
	slot, err := recipe.NewSlotKey(args[1], args[2])
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ "+escapeMarkdown(err.Error()))
		return
	}

	b.mu.Lock()
	results := b.user(msg.From.ID).results
	b.mu.Unlock()
	if n < 1 || n > len(results) {
		b.sendMarkdown(msg.Chat.ID, "🔎 No such recipe. Ask for recipes first.")
		return
	}
	r := results[n-1]

	if err := b.session(msg).Save(slot, r); err != nil {
		b.log.WithError(err).Error("Failed to save recipe")
		b.sendMarkdown(msg.Chat.ID, "❌ Failed to save recipe. Please try again.")
		return
	}
	b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("✅ *%s* saved for %s %s", escapeMarkdown(r.Name), slot.Day, slot.MealTime))
}

func (b *Bot) handleRemove(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.sendMarkdown(msg.Chat.ID, "Usage: `/remove <day> <meal>`")
		return
	}
	slot, err := recipe.NewSlotKey(args[0], args[1])
	if err != nil {
		b.sendMarkdown(msg.Chat.ID, "❌ "+escapeMarkdown(err.Error()))
		return
	}
	if err := b.session(msg).Remove(slot); err != nil {
		b.log.WithError(err).Error("Failed to remove recipe")
		b.sendMarkdown(msg.Chat.ID, "❌ Failed to remove recipe")
		return
	}
	b.sendMarkdown(msg.Chat.ID, fmt.Sprintf("🗑 %s %s cleared", slot.Day, slot.MealTime))
}

func (b *Bot) handlePlan(msg *tgbotapi.Message) {
	s := b.session(msg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Identity(ctx)

	b.sendMarkdown(msg.Chat.ID, formatPlanMarkdown(s.Plan()))
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}
	if b.metricsStore == nil {
		b.sendMarkdown(msg.Chat.ID, "❌ Metrics are not recorded.")
		return
	}

	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		b.log.WithError(err).Error("Error fetching metrics")
		b.sendMarkdown(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.sendMarkdown(msg.Chat.ID, formatMetricsMarkdown(usage, metrics.GetSysHealth(dataDir(b.cfg.DatabasePath)), b.app.SessionCount()))
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.log.WithError(err).Warn("Failed to edit message")
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).Warn("Failed to send message")
	}
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminTelegramID == 0 {
		return
	}
	b.sendMarkdown(b.cfg.AdminTelegramID, text)
}
