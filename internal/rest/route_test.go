package rest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoute(t *testing.T) {
	r := NewRoute(http.MethodPost, "/channels/{channel_id}/messages", "123")

	assert.Equal(t, "/channels/123/messages", r.Path())
	assert.Equal(t, "POST /channels/{channel_id}/messages", r.BucketKey())
	assert.Equal(t, "POST /channels/123/messages", r.String())
}

func TestNewRoute_EscapesParams(t *testing.T) {
	r := NewRoute(http.MethodPut, "/channels/{channel_id}/messages/{message_id}/reactions/{emoji}/@me", "1", "2", "a/b c")
	assert.Equal(t, "/channels/1/messages/2/reactions/a%2Fb%20c/@me", r.Path())
}

func TestNewRoute_NoParams(t *testing.T) {
	r := NewRoute(http.MethodGet, "/gateway/bot")
	assert.Equal(t, "/gateway/bot", r.Path())
	assert.Equal(t, "GET /gateway/bot", r.BucketKey())
}

func TestLiteralRoute(t *testing.T) {
	tests := []struct {
		path     string
		wantKey  string
		wantPath string
	}{
		{"/channels/123/messages", "GET /channels/{id}/messages", "/channels/123/messages"},
		{"/channels/456/messages/789", "GET /channels/{id}/messages/{id}", "/channels/456/messages/789"},
		{"/gateway/bot", "GET /gateway/bot", "/gateway/bot"},
		{"/users/@me?with_counts=true", "GET /users/@me", "/users/@me"},
		{"/v10/guilds/42", "GET /v10/guilds/{id}", "/v10/guilds/42"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := LiteralRoute(http.MethodGet, tt.path)
			assert.Equal(t, tt.wantKey, r.BucketKey())
			assert.Equal(t, tt.wantPath, r.Path())
		})
	}
}

func TestLiteralRoute_SharesBucketAcrossIDs(t *testing.T) {
	a := LiteralRoute(http.MethodGet, "/channels/111/messages")
	b := LiteralRoute(http.MethodGet, "/channels/222/messages")
	assert.Equal(t, a.BucketKey(), b.BucketKey())

	c := LiteralRoute(http.MethodPost, "/channels/111/messages")
	assert.NotEqual(t, a.BucketKey(), c.BucketKey())
}
