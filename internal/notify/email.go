// Package notify содержит каналы доставки напоминаний и диспетчер отправки.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const sendgridAPIBase = "https://api.sendgrid.com"

// SendGridClient инкапсулирует HTTP-взаимодействие с SendGrid Mail Send API.
type SendGridClient struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewSendGridClient создаёт HTTP-клиент для отправки писем через SendGrid.
// baseURL переопределяется только в тестах; пустая строка означает боевой адрес.
func NewSendGridClient(apiKey, from, baseURL string) *SendGridClient {
	if baseURL == "" {
		baseURL = sendgridAPIBase
	}
	return &SendGridClient{
		apiKey:  apiKey,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send отправляет письмо и возвращает идентификатор сообщения у провайдера.
// Повторных попыток на этом уровне нет: неудачная доставка будет повторена
// следующим проходом обхода графиков.
func (c *SendGridClient) Send(ctx context.Context, to, subject, body string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("sendgrid client not configured: missing api key")
	}

	payload := sendgridPayload{
		Personalizations: []sendgridPersonalization{
			{To: []sendgridAddress{{Email: to}}},
		},
		From:    sendgridAddress{Email: c.from},
		Subject: subject,
		Content: []sendgridContent{
			{Type: "text/plain", Value: body},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	url := c.baseURL + "/v3/mail/send"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("sendgrid rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return resp.Header.Get("X-Message-Id"), nil
}
