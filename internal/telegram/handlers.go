package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/domain"
	"ai_trade_gateway/internal/feature/user"
	"ai_trade_gateway/internal/feature/whitelist"
	"ai_trade_gateway/internal/logging"
)

// sender is the subset of *bot.Bot used by the handlers.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// UserRegistrar records users who talk to the bot.
type UserRegistrar interface {
	EnsureUser(ctx context.Context, profile user.Profile) (bool, error)
}

// WhitelistManager resolves and edits Mini App access.
type WhitelistManager interface {
	Lookup(ctx context.Context, telegramID int64) (bool, error)
	Add(ctx context.Context, raw string) (domain.User, error)
	Remove(ctx context.Context, raw string) (domain.User, error)
	List(ctx context.Context, limit int64) ([]domain.User, error)
}

// StatsProvider reports user counts for the admin panel.
type StatsProvider interface {
	CountUsers(ctx context.Context) (int64, error)
	CountWhitelisted(ctx context.Context) (int64, error)
}

type pendingAction string

const (
	pendingAdd    pendingAction = "add"
	pendingRemove pendingAction = "remove"
)

// Handlers routes bot updates. Pending admin input is kept in memory per admin.
type Handlers struct {
	users      UserRegistrar
	whitelist  WhitelistManager
	stats      StatsProvider
	isAdmin    func(int64) bool
	miniAppURL string
	supportURL string
	logger     *logrus.Entry

	mu      sync.Mutex
	pending map[int64]pendingAction
}

// HandlersConfig carries the static settings of Handlers.
type HandlersConfig struct {
	AdminIDs   []int64
	MiniAppURL string
	SupportURL string
}

// NewHandlers builds the update router. Any collaborator may be nil; the
// affected commands then answer with an unavailable message.
func NewHandlers(cfg HandlersConfig, users UserRegistrar, wl WhitelistManager, stats StatsProvider, logger *logrus.Entry) *Handlers {
	if logger == nil {
		logger = logging.Component("telegram")
	}

	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}

	return &Handlers{
		users:      users,
		whitelist:  wl,
		stats:      stats,
		isAdmin:    func(id int64) bool { _, ok := admins[id]; return ok },
		miniAppURL: cfg.MiniAppURL,
		supportURL: cfg.SupportURL,
		logger:     logger,
		pending:    make(map[int64]pendingAction),
	}
}

// Handle dispatches a single update.
func (h *Handlers) Handle(ctx context.Context, s sender, update *models.Update) {
	if h == nil || s == nil || update == nil {
		return
	}

	switch {
	case update.Message != nil && update.Message.From != nil:
		h.handleMessage(ctx, s, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, s, update.CallbackQuery)
	}
}

func (h *Handlers) handleMessage(ctx context.Context, s sender, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	command, ok := parseCommand(text)
	if !ok {
		h.completePending(ctx, s, msg, text)
		return
	}

	h.clearPending(msg.From.ID)

	switch command {
	case "start":
		h.handleStart(ctx, s, msg)
	case "help":
		h.reply(ctx, s, msg.Chat.ID, helpText(h.supportURL), nil)
	case "admin":
		h.handleAdmin(ctx, s, msg)
	}
}

func (h *Handlers) handleStart(ctx context.Context, s sender, msg *models.Message) {
	from := msg.From
	log := h.logger.WithFields(logging.Fields{"user_id": from.ID, "chat_id": msg.Chat.ID})

	if h.users != nil {
		if _, err := h.users.EnsureUser(ctx, profileFromUser(from)); err != nil {
			log.WithField("event", "user_register_failed").WithError(err).Warn("failed to register telegram user")
		}
	}

	if h.whitelist == nil {
		h.reply(ctx, s, msg.Chat.ID, textUnavailable, nil)
		return
	}

	whitelisted, err := h.whitelist.Lookup(ctx, from.ID)
	if err != nil {
		log.WithField("event", "whitelist_unavailable").WithError(err).Warn("whitelist lookup failed for /start")
		h.reply(ctx, s, msg.Chat.ID, textUnavailable, nil)
		return
	}

	if whitelisted {
		h.reply(ctx, s, msg.Chat.ID, textWelcome, welcomeKeyboard(h.miniAppURL, h.supportURL))
		return
	}

	h.reply(ctx, s, msg.Chat.ID, accessDeniedText(h.supportURL), accessDeniedKeyboard(h.supportURL))
}

func (h *Handlers) handleAdmin(ctx context.Context, s sender, msg *models.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(ctx, s, msg.Chat.ID, textAdminOnly, nil)
		return
	}

	h.reply(ctx, s, msg.Chat.ID, h.panelText(ctx), adminKeyboard())
}

func (h *Handlers) handleCallback(ctx context.Context, s sender, query *models.CallbackQuery) {
	if !strings.HasPrefix(query.Data, callbackPrefix) {
		return
	}

	adminID := query.From.ID
	if !h.isAdmin(adminID) {
		h.logger.WithFields(logging.Fields{
			"event":   "admin_denied",
			"user_id": adminID,
		}).Warn("non-admin pressed an admin button")
		h.answer(ctx, s, query.ID, textAccessDeniedAlert, true)
		return
	}

	h.answer(ctx, s, query.ID, "", false)

	target := callbackTarget(query)

	switch query.Data {
	case callbackClose:
		h.clearPending(adminID)
		if target.messageID != 0 {
			if _, err := s.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: target.chatID, MessageID: target.messageID}); err != nil {
				h.logSendError("delete_message", err)
			}
		}
	case callbackBack:
		h.clearPending(adminID)
		h.show(ctx, s, target, h.panelText(ctx), adminKeyboard())
	case callbackStats:
		h.show(ctx, s, target, h.statsPanel(ctx), adminKeyboard())
	case callbackList:
		h.show(ctx, s, target, h.listPanel(ctx), adminKeyboard())
	case callbackAdd:
		h.setPending(adminID, pendingAdd)
		h.show(ctx, s, target, textAddPrompt, backKeyboard())
	case callbackRemove:
		h.setPending(adminID, pendingRemove)
		h.show(ctx, s, target, textRemovePrompt, backKeyboard())
	}
}

// completePending finishes an add or remove started from the panel. Text from
// users without a pending action is ignored.
func (h *Handlers) completePending(ctx context.Context, s sender, msg *models.Message, text string) {
	adminID := msg.From.ID

	action, ok := h.takePending(adminID)
	if !ok || !h.isAdmin(adminID) {
		return
	}

	if h.whitelist == nil {
		h.reply(ctx, s, msg.Chat.ID, textActionFailed, adminKeyboard())
		return
	}

	var (
		changed domain.User
		err     error
		format  string
	)
	switch action {
	case pendingAdd:
		changed, err = h.whitelist.Add(ctx, text)
		format = textUserAdded
	case pendingRemove:
		changed, err = h.whitelist.Remove(ctx, text)
		format = textUserRemoved
	default:
		return
	}

	switch {
	case err == nil:
		h.logger.WithFields(logging.Fields{
			"event":     "admin_whitelist_" + string(action),
			"admin_id":  adminID,
			"target_id": changed.TelegramID,
		}).Info("whitelist updated from admin panel")
		h.reply(ctx, s, msg.Chat.ID, fmt.Sprintf(format, html.EscapeString(changed.DisplayName())), adminKeyboard())
	case errors.Is(err, whitelist.ErrInvalidIdentifier):
		h.reply(ctx, s, msg.Chat.ID, textInvalidUser, adminKeyboard())
	case errors.Is(err, domain.ErrUserNotFound):
		h.reply(ctx, s, msg.Chat.ID, textUserNotFound, adminKeyboard())
	default:
		h.logger.WithFields(logging.Fields{
			"event":    "admin_whitelist_failed",
			"admin_id": adminID,
			"action":   string(action),
		}).WithError(err).Error("whitelist update failed")
		h.reply(ctx, s, msg.Chat.ID, textActionFailed, adminKeyboard())
	}
}

func (h *Handlers) panelText(ctx context.Context) string {
	total, whitelisted, err := h.counts(ctx)
	if err != nil {
		return textPanelNoStats
	}
	return fmt.Sprintf(textPanelFormat, whitelisted, total)
}

func (h *Handlers) statsPanel(ctx context.Context) string {
	total, whitelisted, err := h.counts(ctx)
	if err != nil {
		return textStatsUnavailable
	}
	return statsText(total, whitelisted)
}

func (h *Handlers) listPanel(ctx context.Context) string {
	if h.whitelist == nil {
		return textListUnavailable
	}

	users, err := h.whitelist.List(ctx, whitelistPageSize)
	if err != nil {
		h.logger.WithField("event", "whitelist_list_failed").WithError(err).Warn("failed to list whitelist")
		return textListUnavailable
	}

	var total int64
	if h.stats != nil {
		if n, err := h.stats.CountWhitelisted(ctx); err == nil {
			total = n
		}
	}

	return whitelistText(users, total)
}

func (h *Handlers) counts(ctx context.Context) (int64, int64, error) {
	if h.stats == nil {
		return 0, 0, errors.New("stats provider is not configured")
	}

	total, err := h.stats.CountUsers(ctx)
	if err != nil {
		h.logger.WithField("event", "stats_failed").WithError(err).Warn("failed to count users")
		return 0, 0, err
	}
	whitelisted, err := h.stats.CountWhitelisted(ctx)
	if err != nil {
		h.logger.WithField("event", "stats_failed").WithError(err).Warn("failed to count whitelisted users")
		return 0, 0, err
	}

	return total, whitelisted, nil
}

func (h *Handlers) setPending(adminID int64, action pendingAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[adminID] = action
}

func (h *Handlers) takePending(adminID int64) (pendingAction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	action, ok := h.pending[adminID]
	delete(h.pending, adminID)
	return action, ok
}

func (h *Handlers) clearPending(adminID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, adminID)
}

type messageTarget struct {
	chatID    int64
	messageID int
}

// callbackTarget locates the panel message; inaccessible messages fall back
// to a new message in the admin's private chat.
func callbackTarget(query *models.CallbackQuery) messageTarget {
	if query.Message.Type == models.MaybeInaccessibleMessageTypeMessage && query.Message.Message != nil {
		return messageTarget{chatID: query.Message.Message.Chat.ID, messageID: query.Message.Message.ID}
	}
	return messageTarget{chatID: query.From.ID}
}

func (h *Handlers) show(ctx context.Context, s sender, target messageTarget, text string, markup *models.InlineKeyboardMarkup) {
	if target.messageID == 0 {
		h.reply(ctx, s, target.chatID, text, markup)
		return
	}

	_, err := s.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      target.chatID,
		MessageID:   target.messageID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.logSendError("edit_message", err)
	}
}

func (h *Handlers) reply(ctx context.Context, s sender, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := s.SendMessage(ctx, params); err != nil {
		h.logSendError("send_message", err)
	}
}

func (h *Handlers) answer(ctx context.Context, s sender, queryID, text string, alert bool) {
	_, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		h.logSendError("answer_callback", err)
	}
}

func (h *Handlers) logSendError(call string, err error) {
	h.logger.WithFields(logging.Fields{
		"event": "telegram_send_failed",
		"call":  call,
	}).WithError(err).Warn("telegram api call failed")
}

// parseCommand returns the command name of "/cmd@bot args" style text.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", false
	}

	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name), name != ""
}

func profileFromUser(u *models.User) user.Profile {
	return user.Profile{
		TelegramID:   u.ID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
	}
}
