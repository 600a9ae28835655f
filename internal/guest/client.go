package guest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sharetube/partysync/pkg/protocol"
)

var ErrRequestFailed = errors.New("request failed")

// Client talks to the REST part of the party API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *slog.Logger
}

// NewClient takes the server root, e.g. http://localhost:8080.
func NewClient(serverURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type Membership struct {
	PartyId  string            `json:"party_id"`
	MemberId string            `json:"member_id"`
	Token    string            `json:"token"`
	Snapshot protocol.Snapshot `json:"snapshot"`
}

type displayNameBody struct {
	DisplayName string `json:"display_name"`
}

// CreateParty creates a party hosted by the caller.
func (c *Client) CreateParty(ctx context.Context, displayName string) (Membership, error) {
	var m Membership
	if err := c.do(ctx, http.MethodPost, "/api/v1/parties", displayNameBody{displayName}, &m); err != nil {
		return Membership{}, fmt.Errorf("failed to create party: %w", err)
	}

	return m, nil
}

func (c *Client) JoinParty(ctx context.Context, partyId, displayName string) (Membership, error) {
	var m Membership
	path := "/api/v1/parties/" + url.PathEscape(partyId) + "/members"
	if err := c.do(ctx, http.MethodPost, path, displayNameBody{displayName}, &m); err != nil {
		return Membership{}, fmt.Errorf("failed to join party: %w", err)
	}
	m.PartyId = partyId

	return m, nil
}

func (c *Client) FetchState(ctx context.Context, partyId string) (protocol.Snapshot, error) {
	var s protocol.Snapshot
	path := "/api/v1/parties/" + url.PathEscape(partyId) + "/state"
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to fetch state: %w", err)
	}

	return s, nil
}

// WebsocketURL is the push channel address for a membership.
func (c *Client) WebsocketURL(partyId, token string) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/ws/parties/" + url.PathEscape(partyId)
	u.RawQuery = url.Values{"token": {token}}.Encode()

	return u.String()
}

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *protocol.Error `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	c.logger.DebugContext(ctx, "called", "method", method, "path", path)

	var reader io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if env.Error != nil {
			return fmt.Errorf("%w: %s: %s", ErrRequestFailed, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	c.logger.DebugContext(ctx, "returned", "status", resp.StatusCode)
	return json.Unmarshal(env.Data, dst)
}

// PartyFetcher binds a client to one party for a session's poll loop.
type PartyFetcher struct {
	Client  *Client
	PartyId string
}

func (f PartyFetcher) FetchState(ctx context.Context) (protocol.Snapshot, error) {
	return f.Client.FetchState(ctx, f.PartyId)
}
