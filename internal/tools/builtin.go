package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// MessageSearcher is implemented by the session store; used by the
// search_memory tool.
type MessageSearcher interface {
	SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]string, error)
}

// RegisterBuiltins wires the default tool set. searcher may be nil, in which
// case search_memory reports no results.
func RegisterBuiltins(r *Registry, searcher MessageSearcher, client *http.Client) error {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	if err := r.Register("current_time", func(_ context.Context, _ map[string]string) (string, error) {
		return time.Now().UTC().Format(time.RFC1123), nil
	}); err != nil {
		return err
	}

	if err := r.Register("search_memory", func(ctx context.Context, inputs map[string]string) (string, error) {
		query := strings.TrimSpace(inputs["query"])
		sessionID := strings.TrimSpace(inputs["session_id"])
		if searcher == nil || query == "" {
			return "no stored context matched", nil
		}
		hits, err := searcher.SearchMessages(ctx, sessionID, query, 5)
		if err != nil {
			return "", fmt.Errorf("search memory: %w", err)
		}
		if len(hits) == 0 {
			return "no stored context matched", nil
		}
		return strings.Join(hits, "; "), nil
	}); err != nil {
		return err
	}

	return r.Register("check_service", func(ctx context.Context, inputs map[string]string) (string, error) {
		url := strings.TrimSpace(inputs["url"])
		if url == "" {
			return "", fmt.Errorf("check_service: url input is required")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("check_service: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Sprintf("%s is unreachable: %v", url, err), nil
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Sprintf("%s responded %d", url, resp.StatusCode), nil
		}
		return fmt.Sprintf("%s is healthy (%d)", url, resp.StatusCode), nil
	})
}
