package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/go-telegram/bot/models"

	"ai_trade_gateway/internal/domain"
)

// Callback data of the admin panel buttons.
const (
	callbackAdd    = "admin_add"
	callbackRemove = "admin_remove"
	callbackList   = "admin_list"
	callbackStats  = "admin_stats"
	callbackBack   = "admin_back"
	callbackClose  = "admin_close"

	callbackPrefix = "admin_"
)

// whitelistPageSize caps how many entries the admin list shows.
const whitelistPageSize = 20

const (
	textWelcome = "🤖 <b>Welcome to AI Trade!</b>\n\n" +
		"AI-assisted trading signals right inside Telegram.\n\n" +
		"📊 <b>Features:</b>\n" +
		"• Trading signals\n" +
		"• AI market analysis\n" +
		"• Economic calendar\n" +
		"• AI assistant chat\n\n" +
		"Tap the button below to open the app 👇"

	textAccessDeniedFormat = "⛔️ <b>Access closed</b>\n\n" +
		"Unfortunately you do not have access to this service yet.\n\n" +
		"To request access contact the administrator: %s"

	textUnavailable = "⚠️ The service is temporarily unavailable. Please try /start again in a minute."

	textHelpFormat = "📚 <b>AI Trade help</b>\n\n" +
		"<b>Commands:</b>\n" +
		"/start - start working with the bot\n" +
		"/help - show this help\n\n" +
		"<b>How to use:</b>\n" +
		"1. Tap \"Open AI Trade\"\n" +
		"2. Pick a currency pair and timeframe\n" +
		"3. Get an AI signal\n" +
		"4. Open the trade with your broker\n\n" +
		"<b>Support:</b> %s"

	textAdminOnly         = "⛔️ You do not have access to the admin panel."
	textAccessDeniedAlert = "⛔️ Access denied"

	textPanelFormat = "🔐 <b>Admin panel</b>\n\n" +
		"👥 Users in whitelist: %d\n" +
		"📊 Total users: %d\n\n" +
		"Choose an action:"
	textPanelNoStats = "🔐 <b>Admin panel</b>\n\n" +
		"⚠️ Statistics are temporarily unavailable.\n\n" +
		"Choose an action:"

	textStatsFormat = "📊 <b>Statistics</b>\n\n" +
		"👥 Total users: <b>%d</b>\n" +
		"✅ In whitelist: <b>%d</b>\n" +
		"❌ Without access: <b>%d</b>"
	textStatsUnavailable = "⚠️ Statistics are temporarily unavailable."

	textEnterUser       = "Send @username or Telegram ID of the user:"
	textAddPrompt       = "➕ <b>Add user</b>\n\n" + textEnterUser
	textRemovePrompt    = "➖ <b>Remove user</b>\n\n" + textEnterUser
	textUserAdded       = "✅ User %s added to the whitelist!"
	textUserRemoved     = "❌ User %s removed from the whitelist!"
	textUserNotFound    = "⚠️ User not found."
	textInvalidUser     = "⚠️ That does not look like @username or a numeric Telegram ID."
	textActionFailed    = "⚠️ Could not update the whitelist. Please try again."
	textWhitelistEmpty  = "📭 Whitelist is empty."
	textListUnavailable = "⚠️ Whitelist is temporarily unavailable."
)

func accessDeniedText(supportURL string) string {
	return fmt.Sprintf(textAccessDeniedFormat, html.EscapeString(supportHandle(supportURL)))
}

func helpText(supportURL string) string {
	return fmt.Sprintf(textHelpFormat, html.EscapeString(supportHandle(supportURL)))
}

// supportHandle renders https://t.me/name links as @name.
func supportHandle(supportURL string) string {
	if name, ok := strings.CutPrefix(supportURL, "https://t.me/"); ok && name != "" && !strings.Contains(name, "/") {
		return "@" + name
	}
	return supportURL
}

func statsText(total, whitelisted int64) string {
	without := total - whitelisted
	if without < 0 {
		without = 0
	}
	return fmt.Sprintf(textStatsFormat, total, whitelisted, without)
}

// whitelistText renders at most whitelistPageSize entries; total drives the
// overflow line.
func whitelistText(users []domain.User, total int64) string {
	if len(users) == 0 {
		return textWhitelistEmpty
	}

	shown := users
	if len(shown) > whitelistPageSize {
		shown = shown[:whitelistPageSize]
	}

	lines := make([]string, 0, len(shown))
	for i, u := range shown {
		label := fmt.Sprintf("ID: %d", u.TelegramID)
		if u.Username != "" {
			label = "@" + u.Username
		}
		line := fmt.Sprintf("%d. %s", i+1, html.EscapeString(label))
		if u.FirstName != "" {
			line += " " + html.EscapeString(u.FirstName)
		}
		lines = append(lines, line)
	}

	text := "📋 <b>Whitelist</b>\n\n" + strings.Join(lines, "\n")

	if total < int64(len(users)) {
		total = int64(len(users))
	}
	if rest := total - int64(len(shown)); rest > 0 {
		text += fmt.Sprintf("\n\n... and %d more", rest)
	}

	return text
}

func welcomeKeyboard(miniAppURL, supportURL string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "🚀 Open AI Trade", WebApp: &models.WebAppInfo{URL: miniAppURL}}},
			{{Text: "📊 Support", URL: supportURL}},
		},
	}
}

func accessDeniedKeyboard(supportURL string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "📝 Request access", URL: supportURL}},
		},
	}
}

func adminKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "➕ Add", CallbackData: callbackAdd},
				{Text: "➖ Remove", CallbackData: callbackRemove},
			},
			{
				{Text: "📋 Whitelist", CallbackData: callbackList},
				{Text: "📊 Statistics", CallbackData: callbackStats},
			},
			{
				{Text: "✖️ Close", CallbackData: callbackClose},
			},
		},
	}
}

func backKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "🔙 Back", CallbackData: callbackBack}},
		},
	}
}
