package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioClient инкапсулирует HTTP-взаимодействие с Twilio Messages API.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewTwilioClient создаёт HTTP-клиент для отправки SMS через Twilio.
// baseURL переопределяется только в тестах; пустая строка означает боевой адрес.
func NewTwilioClient(accountSID, authToken, fromNumber, baseURL string) *TwilioClient {
	if baseURL == "" {
		baseURL = twilioAPIBase
	}
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type twilioMessageResponse struct {
	SID string `json:"sid"`
}

// Send отправляет SMS и возвращает SID сообщения, подтверждённый провайдером.
// Повторных попыток на этом уровне нет.
func (c *TwilioClient) Send(ctx context.Context, to, body string) (string, error) {
	if c.accountSID == "" || c.authToken == "" || c.fromNumber == "" {
		return "", fmt.Errorf("twilio client not configured: missing credentials")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("twilio rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result twilioMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.SID, nil
}
