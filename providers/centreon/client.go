// Package centreon implements the providers.Client contract against the
// Centreon REST v1 API, which wraps the CLAPI command set.
package centreon

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yairfalse/vigil/providers"
	"github.com/yairfalse/vigil/types"
)

// ProviderName is the registry name of this adapter
const ProviderName = "centreon"

const (
	apiPath       = "/api/index.php"
	tokenHeader   = "centreon-auth-token"
	clapiObject   = "centreon_clapi"
	valueSep      = ";"
	listSep       = "|"
	objectPoller  = "INSTANCE"
	actionApplyCf = "APPLYCFG"
)

func init() {
	providers.RegisterProvider(ProviderName, func(ctx context.Context, config providers.ProviderConfig) (providers.Client, error) {
		client := NewClient(config)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		return client, nil
	})
}

// Client is an authenticated Centreon CLAPI session
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.RWMutex
	token string
}

// clapiRequest is the body of every CLAPI call
type clapiRequest struct {
	Action string `json:"action"`
	Object string `json:"object,omitempty"`
	Values string `json:"values,omitempty"`
}

type clapiResponse struct {
	Result json.RawMessage `json:"result"`
}

type authResponse struct {
	AuthToken string `json:"authToken"`
}

// NewClient creates a client. Call Connect before issuing requests.
func NewClient(config providers.ProviderConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !config.ValidateCerts}, // #nosec G402 -- validate_certs=false is an explicit opt-out
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := int(config.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &Client{
		baseURL:  strings.TrimRight(config.URL, "/"),
		username: config.Username,
		password: config.Password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		limiter: limiter,
	}
}

// Connect authenticates and stores the session token
func (c *Client) Connect(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("authenticate"), strings.NewReader(form.Encode()))
	if err != nil {
		return connectionError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectionError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return connectionError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return connectionError(&providers.APIError{Action: "authenticate", Detail: errorDetail(resp.StatusCode, body)})
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return connectionError(fmt.Errorf("failed to decode authentication response: %w", err))
	}
	if auth.AuthToken == "" {
		return connectionError(fmt.Errorf("authentication response carried no token"))
	}

	c.mu.Lock()
	c.token = auth.AuthToken
	c.mu.Unlock()

	log.Debug().Str("url", c.baseURL).Msg("Authenticated to Centreon API")
	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ResolvePoller looks up a poller by exact name
func (c *Client) ResolvePoller(ctx context.Context, instance string) (*providers.Poller, error) {
	var rows []map[string]any
	if err := c.callInto(ctx, "show", objectPoller, instance, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if field(row, "name") == instance {
			return &providers.Poller{ID: field(row, "id"), Name: instance}, nil
		}
	}
	return nil, fmt.Errorf("poller %q: %w", instance, providers.ErrNotFound)
}

// PublishConfig generates, tests and pushes the poller configuration
func (c *Client) PublishConfig(ctx context.Context, instance string) error {
	_, err := c.call(ctx, actionApplyCf, "", instance)
	return err
}

// Entities returns the API surface for one entity kind
func (c *Client) Entities(kind types.Kind) (providers.EntityAPI, error) {
	spec, ok := objectSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return &entityAPI{client: c, spec: spec}, nil
}

func (c *Client) apiURL(action string) string {
	q := url.Values{}
	q.Set("action", action)
	if action == "action" {
		q.Set("object", clapiObject)
	}
	return c.baseURL + apiPath + "?" + q.Encode()
}

// call issues one CLAPI action and returns the raw result payload.
// A rejected session token is renewed once and the request replayed.
func (c *Client) call(ctx context.Context, action, object, values string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(clapiRequest{Action: action, Object: object, Values: values})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	status, body, err := c.send(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, object, err)
	}
	if sessionRejected(status) {
		log.Debug().Str("action", action).Str("object", object).Int("status", status).Msg("Centreon session rejected, re-authenticating")
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		status, body, err = c.send(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", action, object, err)
		}
		if sessionRejected(status) {
			return nil, connectionError(&providers.APIError{Action: action, Object: object, Detail: errorDetail(status, body)})
		}
	}

	log.Debug().
		Str("action", action).
		Str("object", object).
		Str("values", values).
		Int("status", status).
		Msg("CLAPI call")

	if status < 200 || status >= 300 {
		return nil, &providers.APIError{Action: action, Object: object, Detail: errorDetail(status, body)}
	}

	var parsed clapiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &providers.APIError{Action: action, Object: object, Detail: fmt.Sprintf("malformed response: %v", err)}
	}
	return parsed.Result, nil
}

// send posts one CLAPI payload with the current session token
func (c *Client) send(ctx context.Context, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("action"), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	c.mu.RLock()
	req.Header.Set(tokenHeader, c.token)
	c.mu.RUnlock()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func sessionRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// callInto issues a CLAPI action and decodes the result into out
func (c *Client) callInto(ctx context.Context, action, object, values string, out any) error {
	raw, err := c.call(ctx, action, object, values)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &providers.APIError{Action: action, Object: object, Detail: fmt.Sprintf("unexpected result shape: %v", err)}
	}
	return nil
}

// errorDetail extracts the message of a failed call. The API answers
// errors with a bare JSON string; anything else is reported verbatim.
func errorDetail(status int, body []byte) string {
	var msg string
	if err := json.Unmarshal(body, &msg); err == nil && msg != "" {
		return msg
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return fmt.Sprintf("HTTP %d: %s", status, text)
}

func connectionError(err error) error {
	return &types.Error{Kind: types.ErrorConnection, Op: "authenticate", Err: err}
}

// field renders a row value as a string whatever its JSON type
func field(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func joinValues(parts ...string) string {
	return strings.Join(parts, valueSep)
}

func joinList(names []string) string {
	return strings.Join(names, listSep)
}
