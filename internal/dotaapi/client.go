package dotaapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edvart/dotastats/internal/record"
)

const (
	defaultBaseURL = "https://api.steampowered.com"

	matchHistoryBySeqPath = "/IDOTA2Match_570/GetMatchHistoryBySequenceNum/v1"
	matchDetailsPath      = "/IDOTA2Match_570/GetMatchDetails/v1"
	playerSummariesPath   = "/ISteamUser/GetPlayerSummaries/v0002"

	// MaxSummaryIDs is the number of Steam ids GetPlayerSummaries accepts per call.
	MaxSummaryIDs = 100
)

var (
	ErrNoAPIKey         = errors.New("no API key configured")
	ErrMatchUnavailable = errors.New("match details unavailable")
	ErrRateLimited      = errors.New("API rate limit exceeded")
)

// Client handles Steam Web API requests. Responses are returned as raw records; mapping
// them onto entities is up to the caller.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	minInterval time.Duration

	mu   sync.Mutex
	last time.Time
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMinInterval sets the minimum spacing between two requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new Steam Web API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until minInterval has passed since the previous request.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := time.Until(c.last.Add(c.minInterval)); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.last = time.Now()
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

type matchHistoryResponse struct {
	Result struct {
		Status       int             `json:"status"`
		StatusDetail string          `json:"statusDetail"`
		Matches      []record.Record `json:"matches"`
	} `json:"result"`
}

// MatchHistoryBySequence returns up to count match summaries starting at sequence number
// startAt (inclusive), in sequence order.
func (c *Client) MatchHistoryBySequence(ctx context.Context, startAt uint64, count int) ([]record.Record, error) {
	params := url.Values{}
	params.Set("start_at_match_seq_num", strconv.FormatUint(startAt, 10))
	params.Set("matches_requested", strconv.Itoa(count))

	var resp matchHistoryResponse
	if err := c.get(ctx, matchHistoryBySeqPath, params, &resp); err != nil {
		return nil, err
	}
	if resp.Result.Status != 1 {
		return nil, fmt.Errorf("match history status %d: %s", resp.Result.Status, resp.Result.StatusDetail)
	}
	return resp.Result.Matches, nil
}

type matchDetailsResponse struct {
	Result record.Record `json:"result"`
}

// MatchDetails fetches the full record of one match. Matches the API cannot serve
// yield ErrMatchUnavailable.
func (c *Client) MatchDetails(ctx context.Context, matchID uint64) (record.Record, error) {
	params := url.Values{}
	params.Set("match_id", strconv.FormatUint(matchID, 10))

	var resp matchDetailsResponse
	if err := c.get(ctx, matchDetailsPath, params, &resp); err != nil {
		return nil, err
	}
	if msg, ok := resp.Result["error"]; ok {
		return nil, fmt.Errorf("match %d: %v: %w", matchID, msg, ErrMatchUnavailable)
	}
	if !resp.Result.Has("match_id") {
		return nil, fmt.Errorf("match %d: empty result: %w", matchID, ErrMatchUnavailable)
	}
	return resp.Result, nil
}

type playerSummariesResponse struct {
	Response struct {
		Players []record.Record `json:"players"`
	} `json:"response"`
}

// PlayerSummaries fetches public profiles. Unknown ids are silently absent from the result.
func (c *Client) PlayerSummaries(ctx context.Context, steamIDs []uint64) ([]record.Record, error) {
	if len(steamIDs) == 0 {
		return nil, nil
	}
	if len(steamIDs) > MaxSummaryIDs {
		return nil, fmt.Errorf("%d steam ids requested, at most %d allowed", len(steamIDs), MaxSummaryIDs)
	}
	ids := make([]string, len(steamIDs))
	for i, id := range steamIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	params := url.Values{}
	params.Set("steamids", strings.Join(ids, ","))

	var resp playerSummariesResponse
	if err := c.get(ctx, playerSummariesPath, params, &resp); err != nil {
		return nil, err
	}
	return resp.Response.Players, nil
}
