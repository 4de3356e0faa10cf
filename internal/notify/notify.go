package notify

import (
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Reporter keeps the single current-error slot shown to the user. A new
// report supersedes the previous one; there is no error queue.
type Reporter struct {
	mu      sync.RWMutex
	current string

	bot    *tgbotapi.BotAPI
	chatID int64
}

// New creates a log-only reporter.
func New() *Reporter {
	return &Reporter{}
}

// NewTelegram creates a reporter that additionally pushes each error to a
// Telegram chat, which is how a headless sync daemon reaches its user.
func NewTelegram(token string, chatID int64) (*Reporter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Reporter{bot: bot, chatID: chatID}, nil
}

// Report records the failure as the current error and forwards it.
func (r *Reporter) Report(op string, err error) {
	msg := fmt.Sprintf("%s failed: %v", op, err)

	r.mu.Lock()
	r.current = msg
	r.mu.Unlock()

	log.Printf("sync error: %s", msg)

	if r.bot != nil {
		if _, sendErr := r.bot.Send(tgbotapi.NewMessage(r.chatID, "⚠️ "+msg)); sendErr != nil {
			log.Printf("telegram notify: %v", sendErr)
		}
	}
}

// Current returns the latest reported error message, or "" when clear.
func (r *Reporter) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Clear dismisses the current error.
func (r *Reporter) Clear() {
	r.mu.Lock()
	r.current = ""
	r.mu.Unlock()
}
