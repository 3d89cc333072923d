package telegram

import (
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/picobot/pkg/bus"
)

func senderID(user telego.User) string {
	id := strconv.FormatInt(user.ID, 10)
	if user.Username != "" {
		return id + "|" + user.Username
	}
	return id
}

// eventFromMessage converts a text or document message. Messages carrying
// neither (stickers, photos, service messages) are skipped.
func eventFromMessage(msg *telego.Message) (*bus.TextMessage, bool) {
	if msg == nil || msg.From == nil {
		return nil, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	var doc *bus.Document
	if d := msg.Document; d != nil {
		doc = &bus.Document{
			FileID:   d.FileID,
			FileName: d.FileName,
			MimeType: d.MimeType,
			Size:     d.FileSize,
		}
	}
	if text == "" && doc == nil {
		return nil, false
	}

	return &bus.TextMessage{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		Username:  msg.From.Username,
		MessageID: msg.MessageID,
		Text:      text,
		Document:  doc,
	}, true
}

// eventFromCallback converts a button press. Presses on messages the bot
// can no longer see carry no chat and are skipped.
func eventFromCallback(query *telego.CallbackQuery) (*bus.CallbackEvent, bool) {
	if query == nil || query.Message == nil {
		return nil, false
	}
	return &bus.CallbackEvent{
		ChatID:    query.Message.GetChat().ID,
		UserID:    query.From.ID,
		MessageID: query.Message.GetMessageID(),
		QueryID:   query.ID,
		Data:      query.Data,
	}, true
}

func inlineKeyboard(markup bus.Markup) *telego.InlineKeyboardMarkup {
	if len(markup) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(markup))
	for _, row := range markup {
		if len(row) == 0 {
			continue
		}
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telego.InlineKeyboardButton{Text: b.Label, CallbackData: b.Token})
		}
		rows = append(rows, tu.InlineKeyboardRow(buttons...))
	}
	return tu.InlineKeyboard(rows...)
}

func parseMode(f bus.Format) string {
	if f == bus.FormatHTML {
		return telego.ModeHTML
	}
	return ""
}
