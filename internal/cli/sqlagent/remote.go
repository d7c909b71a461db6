package sqlagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type remoteOptions struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

// newRemoteCommand talks to a running `sqlagent serve` instead of opening the
// store locally.
func newRemoteCommand(env *environment) *cobra.Command {
	opts := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Call a running sqlagent API server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("base-url") {
				opts.baseURL = firstNonEmpty(env.lookupValue("SQLAGENT_API_URL"), opts.baseURL)
			}
			if !cmd.Flags().Changed("api-key") {
				opts.apiKey = firstNonEmpty(opts.apiKey, env.lookupValue("SQLAGENT_API_KEY"))
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "sqlagent API base URL (env SQLAGENT_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", "", "API key for authenticated requests (env SQLAGENT_API_KEY)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "HTTP timeout")

	simple := func(use, short, method, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return env.callRemote(cmd.Context(), opts, method, path, nil)
			},
		}
	}
	cmd.AddCommand(
		simple("health", "GET /v1/health", http.MethodGet, "/v1/health"),
		simple("ready", "GET /v1/ready", http.MethodGet, "/v1/ready"),
		simple("schema", "GET /v1/schema", http.MethodGet, "/v1/schema"),
		&cobra.Command{
			Use:   "ask <question>",
			Short: "POST /v1/ask",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				body, err := json.Marshal(map[string]string{"question": strings.Join(args, " ")})
				if err != nil {
					return err
				}
				return env.callRemote(cmd.Context(), opts, http.MethodPost, "/v1/ask", body)
			},
		},
		&cobra.Command{
			Use:   "sessions [session-id]",
			Short: "GET /v1/sessions or /v1/sessions/{id}",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := "/v1/sessions"
				if len(args) == 1 {
					path += "/" + url.PathEscape(strings.TrimSpace(args[0]))
				}
				return env.callRemote(cmd.Context(), opts, http.MethodGet, path, nil)
			},
		},
	)
	return cmd
}

func (e *environment) callRemote(ctx context.Context, opts *remoteOptions, method, path string, body []byte) error {
	client := &http.Client{Timeout: opts.timeout}
	endpoint := strings.TrimRight(opts.baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, opts.apiKey, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(e.stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(e.stdout, string(responseBody))
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return strings.TrimSpace(b)
}
