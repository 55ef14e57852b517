package notifier

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTelegramURL = "https://api.telegram.org"

type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string
	// Retries is the number of send attempts, Delay the pause between them.
	Retries int
	Delay   time.Duration
	client  *http.Client
}

func NewTelegramNotifier(token, chatID, proxyURL string, retries int, delay time.Duration) (*TelegramNotifier, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	}
	if retries < 1 {
		retries = 1
	}
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		BaseURL: defaultTelegramURL,
		Retries: retries,
		Delay:   delay,
		client:  client,
	}, nil
}

// Send posts message to the chat, retrying failed attempts.
func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = t.send(ctx, message); err == nil {
			return nil
		}
		log.Printf("TelegramNotifier.Send | attempt %d/%d failed: %v", attempt, t.Retries, err)
		if attempt == t.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.Delay):
		}
	}
	return err
}

func (t *TelegramNotifier) send(ctx context.Context, message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.BaseURL, "/"), t.Token)
	form := url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}
