package bus

import "time"

// ConversationKey identifies one participant of one chat. It is the slot
// key for pending continuations.
type ConversationKey struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// Event is an inbound event from a transport. The set is closed:
// *TextMessage and *CallbackEvent are the only implementations.
type Event interface {
	Key() ConversationKey
	event()
}

// Document is a file attached to a text message. FileID is the opaque
// handle the transport uses to fetch or resend the bytes.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type TextMessage struct {
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	MessageID int       `json:"message_id"`
	Text      string    `json:"text"`
	Document  *Document `json:"document,omitempty"`
	// BotUsername is the receiving bot's own username, when the transport
	// knows it. Commands addressed to another bot ("/cmd@other") are ignored.
	BotUsername string `json:"bot_username,omitempty"`
}

func (m *TextMessage) Key() ConversationKey {
	return ConversationKey{ChatID: m.ChatID, UserID: m.UserID}
}

func (*TextMessage) event() {}

// CallbackEvent is an inline button press. Data is the action token the
// button was built with; it comes back from an untrusted client.
type CallbackEvent struct {
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	MessageID int    `json:"message_id"`
	QueryID   string `json:"query_id"`
	Data      string `json:"data"`
}

func (c *CallbackEvent) Key() ConversationKey {
	return ConversationKey{ChatID: c.ChatID, UserID: c.UserID}
}

func (*CallbackEvent) event() {}

// Button is one inline button: a label and the action token sent back on press.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Markup is a grid of inline buttons, one slice per row.
type Markup [][]Button

// Format selects how reply text is interpreted by the transport.
type Format string

const (
	FormatPlain Format = ""
	FormatHTML  Format = "html"
)

// Reply is an outbound action. The set is closed: *NewMessage,
// *EditMessage and *SendBinary.
type Reply interface {
	Chat() int64
	reply()
}

type NewMessage struct {
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text"`
	Markup  Markup `json:"markup,omitempty"`
	ReplyTo int    `json:"reply_to,omitempty"`
	Format  Format `json:"format,omitempty"`
}

func (m *NewMessage) Chat() int64 { return m.ChatID }
func (*NewMessage) reply()        {}

type EditMessage struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Markup    Markup `json:"markup,omitempty"`
	Format    Format `json:"format,omitempty"`
}

func (m *EditMessage) Chat() int64 { return m.ChatID }
func (*EditMessage) reply()        {}

// SendBinary asks the transport to deliver stored bytes by their external reference.
type SendBinary struct {
	ChatID      int64  `json:"chat_id"`
	ExternalRef string `json:"external_ref"`
	DisplayName string `json:"display_name"`
	ReplyTo     int    `json:"reply_to,omitempty"`
}

func (m *SendBinary) Chat() int64 { return m.ChatID }
func (*SendBinary) reply()        {}

type InboundMessage struct {
	Channel    string    `json:"channel"`
	TraceID    string    `json:"trace_id"`
	Event      Event     `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage carries at most one reply. CallbackQueryID is set for
// callback events so the transport can acknowledge the button press even
// when there is nothing to send.
type OutboundMessage struct {
	Channel         string `json:"channel"`
	TraceID         string `json:"trace_id"`
	Reply           Reply  `json:"reply,omitempty"`
	CallbackQueryID string `json:"callback_query_id,omitempty"`
}
