// Package auth provides bot token credentials for REST and gateway calls.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoToken is returned when neither a token nor a token file is configured.
var ErrNoToken = errors.New("bot token is required")

const tokenPrefix = "Bot "

// Credentials holds the bot token.
type Credentials struct {
	Token string // Raw token without the "Bot " scheme
}

// LoadCredentials builds credentials from an inline token or, when that is
// empty, from the contents of tokenFile.
func LoadCredentials(token, tokenFile string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" && tokenFile != "" {
		var err error
		token, err = LoadToken(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
	}

	token = strings.TrimPrefix(token, tokenPrefix)
	if token == "" {
		return nil, ErrNoToken
	}

	return &Credentials{Token: token}, nil
}

// LoadToken reads a token from a file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// AuthorizationHeader returns the value for the Authorization header.
func (c *Credentials) AuthorizationHeader() string {
	return tokenPrefix + c.Token
}

// Headers returns the authentication headers for a REST request.
func (c *Credentials) Headers() map[string]string {
	return map[string]string{
		"Authorization": c.AuthorizationHeader(),
	}
}

// Redacted returns the token with everything but a short prefix masked,
// for log output.
func (c *Credentials) Redacted() string {
	if len(c.Token) <= 8 {
		return "********"
	}
	return c.Token[:4] + strings.Repeat("*", 8)
}

// String implements fmt.Stringer so credentials never print in full.
func (c *Credentials) String() string {
	return c.Redacted()
}
