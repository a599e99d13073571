// Package notifier forwards accepted leads to the operator chat via the
// Telegram Bot API.
package notifier

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cookiespooky/np-tma-backend/internal/initdata"
)

const (
	// ClientTimeout is the total outbound request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second
)

// placeholder substitutes for optional identity fields the user has not set.
const placeholder = "—"

// sender is the subset of the Bot API client the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends lead messages to a fixed operator chat.
type TelegramNotifier struct {
	bot            sender
	operatorChatID int64
}

// New creates a TelegramNotifier. It performs a getMe call against the
// Bot API, so an invalid token or unreachable endpoint fails here rather
// than on the first lead.
func New(botToken, apiBaseURL string, operatorChatID int64) (*TelegramNotifier, error) {
	endpoint := strings.TrimSuffix(apiBaseURL, "/") + "/bot%s/%s"

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, newHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot API client: %w", err)
	}

	return &TelegramNotifier{
		bot:            bot,
		operatorChatID: operatorChatID,
	}, nil
}

// NotifyLead sends one lead message to the operator chat. No retry: a
// failed send surfaces to the caller, and the user may re-submit after
// the rate-limit window.
func (n *TelegramNotifier) NotifyLead(ctx context.Context, identity *initdata.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.operatorChatID, FormatLeadMessage(identity))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send lead notification: %w", err)
	}

	return nil
}

// FormatLeadMessage renders the fixed-shape operator message. Absent
// optional fields are shown as a placeholder dash.
func FormatLeadMessage(identity *initdata.Identity) string {
	name := strings.TrimSpace(identity.FirstName + " " + identity.LastName)
	if name == "" {
		name = placeholder
	}

	username := placeholder
	if identity.Username != "" {
		username = "@" + identity.Username
	}

	var b strings.Builder
	b.WriteString("📬 New lead from the mini app\n")
	fmt.Fprintf(&b, "Name: %s\n", name)
	fmt.Fprintf(&b, "Username: %s\n", username)
	fmt.Fprintf(&b, "ID: %d", identity.ID)
	return b.String()
}

// newHTTPClient creates an HTTP client configured for Bot API delivery.
// It has appropriate timeouts and does not follow redirects.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
