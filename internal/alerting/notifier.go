package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"balance-telemetry/internal/model"
)

// Notification describes a finished anomaly remediation run.
type Notification struct {
	RunID      string
	Outcome    string
	Removed    int64
	Iterations int
	Declined   bool
	Thresholds model.Thresholds
	Finished   time.Time
	Err        error
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return model.Transient("send telegram request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("outcome", note.Outcome).
		Msg("remediation report sent")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Balance telemetry] anomaly purge\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	builder.WriteString(fmt.Sprintf("Outcome: %s\n", note.Outcome))
	builder.WriteString(fmt.Sprintf("Removed: %d snapshot(s) in %d iteration(s)\n", note.Removed, note.Iterations))
	builder.WriteString(fmt.Sprintf("Thresholds: stable Δ %s USD, RLB Δ %s\n",
		decimal.NewFromFloat(note.Thresholds.StableDelta).StringFixed(2),
		decimal.NewFromFloat(note.Thresholds.TokenDelta).StringFixed(2)))
	if note.Declined {
		builder.WriteString("Operator declined the purge; nothing was deleted.\n")
	}
	if !note.Finished.IsZero() {
		builder.WriteString(fmt.Sprintf("Finished: %s UTC\n", note.Finished.UTC().Format(time.RFC3339)))
	}
	if note.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %v\n", note.Err))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
