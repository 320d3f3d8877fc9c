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

	"github.com/JPShag/ComitSwapBot/internal/swap"
)

// tweetMaxLen is the Twitter/X character limit.
const tweetMaxLen = 280

// Twitter posts swap announcements via the Twitter API v2.
type Twitter struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

// NewTwitter creates a Twitter notifier using the given bearer token.
func NewTwitter(bearerToken string) *Twitter {
	return &Twitter{
		baseURL:     "https://api.twitter.com",
		bearerToken: bearerToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBaseURL overrides the API base URL, used in tests.
func (t *Twitter) SetBaseURL(url string) {
	t.baseURL = strings.TrimSuffix(url, "/")
}

// Name identifies the sink in logs.
func (t *Twitter) Name() string { return "twitter" }

// Notify posts a tweet and returns the tweet id.
func (t *Twitter) Notify(ctx context.Context, s *swap.AtomicSwap) (string, error) {
	// The limit counts characters, not bytes; slicing on bytes could
	// split a multi-byte rune at the boundary.
	text := FormatSwapMessage(s)
	if runes := []rune(text); len(runes) > tweetMaxLen {
		text = string(runes[:tweetMaxLen-3]) + "..."
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("twitter returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding tweet response: %w", err)
	}

	return result.Data.ID, nil
}
