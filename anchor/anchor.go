// Package anchor публикует content-hash audit pack'а во внешнем сервисе
// якорения (он пишет хэш в публичный блокчейн и возвращает квитанцию).
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client якорит хэш и возвращает квитанцию сервиса.
type Client interface {
	Anchor(ctx context.Context, contestID int, contentHash string) (receipt string, err error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient — клиент реального сервиса якорения.
func NewHTTPClient(baseURL, apiKey string) Client {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type anchorRequest struct {
	ContestID   int    `json:"contest_id"`
	ContentHash string `json:"content_hash"`
}

type anchorResponse struct {
	Receipt string `json:"receipt"`
}

func (c *httpClient) Anchor(ctx context.Context, contestID int, contentHash string) (string, error) {
	body, err := json.Marshal(anchorRequest{ContestID: contestID, ContentHash: contentHash})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("anchor service returned %d: %s", resp.StatusCode, payload)
	}

	var out anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode anchor response: %w", err)
	}
	if out.Receipt == "" {
		return "", fmt.Errorf("anchor service returned an empty receipt")
	}
	return out.Receipt, nil
}

type logOnlyClient struct {
	logger *slog.Logger
}

// NewLogOnlyClient — заглушка для окружений без настроенного сервиса:
// хэш только логируется, статус пакета остаётся pending-совместимым.
func NewLogOnlyClient(logger *slog.Logger) Client {
	return &logOnlyClient{logger: logger}
}

func (c *logOnlyClient) Anchor(ctx context.Context, contestID int, contentHash string) (string, error) {
	c.logger.InfoContext(ctx, "anchor service not configured, logging content hash only",
		slog.Int("contest_id", contestID),
		slog.String("content_hash", contentHash),
	)
	return "log-only:" + contentHash, nil
}
