package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/proctorix/examgate/internal/token"
	"github.com/rs/zerolog"
)

// Pipeline is the single path for authenticated calls to the upstream exam
// platform. For every request it attaches the session's access token and
// CSRF token, refreshes proactively near expiry, and on a 401 invokes the
// refresh coordinator then replays the original request exactly once.
// Side effects are request-scoped except the shared token store mutation
// during refresh.
type Pipeline struct {
	baseURL string
	httpc   *http.Client
	store   *token.Store
	coord   *token.Coordinator
	skew    time.Duration
	log     zerolog.Logger
}

// NewPipeline creates the authenticated request pipeline.
func NewPipeline(baseURL string, timeout, skew time.Duration, store *token.Store, coord *token.Coordinator, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		store:   store,
		coord:   coord,
		skew:    skew,
		log:     log.With().Str("component", "upstream_pipeline").Logger(),
	}
}

// Do performs one authenticated upstream call. body (when non-nil) is JSON
// encoded; a 2xx response is decoded into out (when non-nil).
func (p *Pipeline) Do(ctx context.Context, sid, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	// Proactive refresh: if the access token is about to expire, renew it
	// before dispatch so the call never surfaces an avoidable 401.
	if cred, ok := p.store.Get(ctx, sid); ok && !cred.Empty() {
		if p.store.NearExpiry(ctx, sid, p.skew) {
			if _, err := p.coord.Refresh(ctx, sid); err != nil {
				return err
			}
		}
	}

	resp, err := p.send(ctx, sid, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)

		// One refresh, one replay. A second 401 is terminal.
		if _, err := p.coord.Refresh(ctx, sid); err != nil {
			return err
		}

		resp, err = p.send(ctx, sid, method, path, payload)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			p.log.Warn().Str("sid", sid).Str("path", path).Msg("401 after replay, terminating session")
			p.coord.Terminate(ctx, sid)
			return token.ErrSessionExpired
		}
	}

	return p.classify(resp, out)
}

// send builds and dispatches one request with current credentials attached.
func (p *Pipeline) send(ctx context.Context, sid, method, path string, payload []byte) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if cred, ok := p.store.Get(ctx, sid); ok {
		if cred.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		}
		if cred.CSRFToken != "" {
			req.Header.Set("X-CSRFToken", cred.CSRFToken)
		}
	}

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	return resp, nil
}

// classify maps the upstream status to the gateway error taxonomy.
func (p *Pipeline) classify(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited

	case resp.StatusCode == http.StatusBadRequest:
		var body struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(raw, &body)
		return &ValidationError{Detail: body.Detail}

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
