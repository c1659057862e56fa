// Package social talks to the external social-graph service that owns
// friendship membership. The points core only ever asks one question of
// it: is this pair of users friends.
package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client queries the social-graph service's friendship endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a friendship oracle client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// friendshipResponse is the wire shape of the oracle's answer.
type friendshipResponse struct {
	Friends bool `json:"friends"`
}

// IsFriend asks the social-graph service whether the two users are
// friends. Failures propagate: eligibility fails closed rather than
// guessing at graph membership.
func (c *Client) IsFriend(ctx context.Context, userID, otherID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/friendships?user=%s&other=%s",
		c.baseURL, url.QueryEscape(userID), url.QueryEscape(otherID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("building friendship request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("querying social graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("social graph returned status %d", resp.StatusCode)
	}

	var body friendshipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decoding friendship response: %w", err)
	}
	return body.Friends, nil
}

// StaticOracle answers friendship from a fixed set of unordered pairs.
// Used in development and tests when no social-graph service is
// configured.
type StaticOracle struct {
	pairs map[[2]string]bool
}

// NewStaticOracle creates an oracle over the given friend pairs.
func NewStaticOracle(pairs ...[2]string) *StaticOracle {
	o := &StaticOracle{pairs: make(map[[2]string]bool, len(pairs))}
	for _, p := range pairs {
		o.pairs[normalize(p[0], p[1])] = true
	}
	return o
}

func normalize(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// IsFriend reports whether the pair is in the static set.
func (o *StaticOracle) IsFriend(_ context.Context, userID, otherID string) (bool, error) {
	return o.pairs[normalize(userID, otherID)], nil
}
