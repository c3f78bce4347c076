// Package backend is the HTTP client for the external BetAnalyzer API.
//
// The backend owns everything non-trivial: OCR and probability estimation for
// uploaded slips, usage metering, Stripe checkout, and persistence. This
// package consumes it as an opaque JSON API and translates transport-level
// failures into domain errors, including the structured 403 upgrade marker
// that signals entitlement exhaustion.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/metrics"
)

const (
	// DefaultTimeout bounds every backend request. Checkout polling applies
	// its own per-attempt handling on top of this.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is read for decoding.
	maxErrorBody = 64 * 1024
)

// Config contains configuration for the backend client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://api.example.com".
	// The "/api" prefix is appended per request.
	BaseURL string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Client calls the BetAnalyzer REST API.
//
// A bearer token is attached when the caller supplies one; requests without a
// token are sent bare, which is legal for the public endpoints (auth, daily
// picks).
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a backend API client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// =============================================================================
// Request Plumbing
// =============================================================================

// do executes one API request and decodes a 2xx JSON body into out (when out
// is non-nil). Non-2xx responses and transport failures become domain errors.
func (c *Client) do(ctx context.Context, op, method, path, token string, body io.Reader, contentType string, out interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, body)
	if err != nil {
		return domain.Internal(err, op, "failed to build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(op, "network_error").Inc()
		if ctx.Err() != nil {
			return domain.Unavailable(ctx.Err(), op, "request cancelled")
		}
		return domain.Unavailable(err, op, "backend unreachable")
	}
	defer resp.Body.Close()

	metrics.BackendRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Internal(err, op, "failed to decode backend response")
	}
	return nil
}

// getJSON issues a GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, op, path, token string, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, token, nil, "", out)
}

// postJSON issues a POST with a JSON body and decodes the response.
func (c *Client) postJSON(ctx context.Context, op, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return domain.Internal(err, op, "failed to encode request body")
		}
		body = bytes.NewReader(buf)
	}
	return c.do(ctx, op, http.MethodPost, path, token, body, "application/json", out)
}

// =============================================================================
// Error Mapping
// =============================================================================

// apiDetail is the FastAPI-style error body. The detail field is either a
// plain string or, for entitlement rejections, an object carrying the upgrade
// marker and a human-readable reason.
type apiDetail struct {
	Detail json.RawMessage `json:"detail"`
}

type upgradeDetail struct {
	Message          string `json:"message"`
	Reason           string `json:"reason"`
	ShowSubscription bool   `json:"show_subscription"`
	ShowUpgrade      bool   `json:"show_upgrade"`
}

// errorFromResponse maps a non-2xx response to a domain error.
//
// Central policy: 401 is an auth error regardless of body; a 403 whose detail
// carries the upgrade marker is an entitlement error that overrides any local
// ALLOW; everything else surfaces the server-provided detail string when one
// is present, or a generic fallback.
func (c *Client) errorFromResponse(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	detail, upgrade := decodeDetail(raw)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if detail == "" {
			detail = "Authentication required"
		}
		return domain.Unauthorized(op, detail)

	case http.StatusForbidden:
		if upgrade != nil {
			msg := upgrade.Message
			if msg == "" {
				msg = upgrade.Reason
			}
			if msg == "" {
				msg = "Free analyses exhausted. Subscribe for unlimited access."
			}
			return domain.UpgradeRequired(op, msg)
		}
		if detail == "" {
			detail = "You don't have permission to do that"
		}
		return domain.Forbidden(op, detail)

	case http.StatusNotFound:
		if detail == "" {
			detail = "Resource not found"
		}
		return domain.Errorf(domain.ENOTFOUND, op, "%s", detail)

	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if detail == "" {
			detail = "Invalid request"
		}
		return domain.Invalid(op, detail)

	case http.StatusTooManyRequests:
		return domain.RateLimit(op)

	case http.StatusRequestEntityTooLarge:
		return domain.Errorf(domain.ETOOLARGE, op, "Upload too large")

	default:
		if detail == "" {
			detail = fmt.Sprintf("Backend returned status %d", resp.StatusCode)
		}
		err := domain.Errorf(domain.EINTERNAL, op, "%s", detail)
		c.logger.Warn("backend error response",
			"op", op,
			"status", resp.StatusCode,
			"detail", detail,
		)
		return err
	}
}

// decodeDetail extracts the detail string and, when present, the structured
// upgrade marker from an error body.
func decodeDetail(raw []byte) (string, *upgradeDetail) {
	var body apiDetail
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s, nil
	}

	var u upgradeDetail
	if err := json.Unmarshal(body.Detail, &u); err == nil {
		if u.ShowSubscription || u.ShowUpgrade {
			return u.Message, &u
		}
		return u.Message, nil
	}

	return "", nil
}
