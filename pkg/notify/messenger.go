package notify

import "context"

// Button is an inline action under a message. Exactly one of Data (callback
// payload) or URL should be set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Messenger is the outbound half of the chat transport. Chat is either a
// numeric chat id or a channel username such as "@moviechannel".
// Text and captions use Telegram's legacy Markdown.
type Messenger interface {
	SendMessage(ctx context.Context, chat, text string, buttons ...Button) error
	SendPhoto(ctx context.Context, chat, photoURL, caption string, buttons ...Button) error
}
