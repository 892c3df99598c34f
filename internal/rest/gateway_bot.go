package rest

import (
	"context"
	"net/http"
)

// SessionStartLimit reports how many identifies remain in the current window.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"` // milliseconds
	MaxConcurrency int `json:"max_concurrency"`
}

// GatewayBot is the response of GET /gateway/bot.
type GatewayBot struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GatewayBot fetches the gateway URL and recommended shard count.
func (c *Client) GatewayBot(ctx context.Context) (*GatewayBot, error) {
	var gb GatewayBot
	err := c.DoJSON(ctx, Request{Route: NewRoute(http.MethodGet, "/gateway/bot")}, &gb)
	if err != nil {
		return nil, err
	}
	return &gb, nil
}
