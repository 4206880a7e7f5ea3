package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/achadsiri/gemini-cli/llm"
)

const maxFetchBytes = 2 << 20

func webFetchTool(client *http.Client) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolWebFetch,
			Description: "Fetches a web page over http or https and returns its readable text content.",
			Parameters: objectSchema(map[string]any{
				"url": prop("string", "The URL to fetch, starting with http:// or https://."),
			}, "url"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			rawURL, err := requireString(args, "url")
			if err != nil {
				return ToolResult{}, err
			}
			text, err := fetchReadable(ctx, client, rawURL)
			if err != nil {
				return ToolResult{}, err
			}
			return ToolResult{
				LLMContent:    fmt.Sprintf("Content from %s:\n\n%s", rawURL, text),
				ReturnDisplay: fmt.Sprintf("Fetched %s.", rawURL),
			}, nil
		},
	}
}

// fetchReadable downloads rawURL and extracts the article text of HTML
// pages. Other content types are returned as-is.
func fetchReadable(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; gemini-cli)")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return strings.TrimSpace(string(body)), nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return "", fmt.Errorf("no readable content at %s", rawURL)
	}
	return strings.TrimSpace(article.TextContent), nil
}
