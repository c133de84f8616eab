// Package alert delivers best-effort operator notifications over Telegram.
// Repeated alerts are suppressed by an explicit, bounded TTL cache owned by
// the Notifier instance; there is no package-level state.
package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	defaultDedupeTTL = 2 * time.Minute
	maxDedupeEntries = 512
	sendTimeout      = 5 * time.Second
)

// Notifier sends deduplicated Telegram messages. A zero-credential Notifier
// is valid and drops everything silently.
type Notifier struct {
	token  string
	chatID string
	ttl    time.Duration
	rest   *resty.Client

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewNotifier creates a Notifier; ttl <= 0 uses the default dedupe window.
func NewNotifier(token, chatID string, ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Notifier{
		token:  token,
		chatID: chatID,
		ttl:    ttl,
		rest:   resty.New().SetTimeout(sendTimeout),
		recent: make(map[string]time.Time),
	}
}

// Notify sends one alert unless an identical one fired within the TTL.
// Failures are logged and swallowed; alerting never disturbs the tick.
func (n *Notifier) Notify(level, title, body string) {
	if n.token == "" || n.chatID == "" {
		return
	}
	if !n.shouldSend(level, title, body) {
		return
	}

	text := title
	if body != "" {
		text = title + "\n" + body
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)
	_, err := n.rest.R().
		SetBody(map[string]any{
			"chat_id":                  n.chatID,
			"text":                     fmt.Sprintf("[%s] %s", level, text),
			"disable_web_page_preview": true,
		}).
		Post(url)
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("telegram alert failed")
	}
}

// shouldSend records the alert key and reports whether it is outside the
// dedupe window. The cache is pruned and size-capped so it cannot grow
// without bound.
func (n *Notifier) shouldSend(level, title, body string) bool {
	key := level + ":" + title + ":" + body
	if len(key) > 500 {
		key = key[:500]
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	if last, ok := n.recent[key]; ok && now.Sub(last) < n.ttl {
		return false
	}

	for k, ts := range n.recent {
		if now.Sub(ts) >= n.ttl {
			delete(n.recent, k)
		}
	}
	if len(n.recent) >= maxDedupeEntries {
		// Full of live entries; drop the alert rather than the cache.
		return false
	}

	n.recent[key] = now
	return true
}
