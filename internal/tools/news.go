package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/tickerdesk/internal/version"
)

const (
	// DefaultNewsBaseURL is the RapidAPI Yahoo Finance host.
	DefaultNewsBaseURL = "https://yahoo-finance15.p.rapidapi.com"
	newsPath           = "/api/v1/markets/news"
)

// NewsTool fetches recent Yahoo Finance headlines for a ticker.
type NewsTool struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewNewsTool creates a headline tool. An empty baseURL uses
// DefaultNewsBaseURL; a nil httpClient gets a 30s timeout.
func NewNewsTool(baseURL, apiKey string, httpClient *http.Client) *NewsTool {
	if baseURL == "" {
		baseURL = DefaultNewsBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsTool{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Name implements Tool.
func (n *NewsTool) Name() string { return "yahoo_news" }

// Description implements Tool.
func (n *NewsTool) Description() string {
	return "Retrieves recent Yahoo News headlines about a company, identified by its stock ticker, for sentiment analysis."
}

// Call implements Tool.
func (n *NewsTool) Call(ctx context.Context, query string) (string, error) {
	if n.apiKey == "" {
		return "", fmt.Errorf("RAPIDAPI_KEY is not set")
	}
	ticker := strings.ToUpper(strings.TrimSpace(query))

	u, err := url.Parse(n.baseURL + newsPath)
	if err != nil {
		return "", fmt.Errorf("parse news URL: %w", err)
	}
	q := u.Query()
	q.Set("ticker", ticker)
	q.Set("type", "ALL")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", n.apiKey)
	req.Header.Set("X-RapidAPI-Host", u.Host)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("news API status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("news API returned malformed JSON")
	}

	headlines := ParseHeadlines(body)
	if len(headlines) == 0 {
		return fmt.Sprintf("No headlines were returned for %s.", ticker), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Headlines for %s:\n", ticker)
	for _, h := range headlines {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ParseHeadlines returns the non-empty titles under body[].title.
func ParseHeadlines(payload []byte) []string {
	var out []string
	for _, title := range gjson.GetBytes(payload, "body.#.title").Array() {
		if s := strings.TrimSpace(title.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
