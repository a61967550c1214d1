package config

import (
	"errors"
	"os"
	"strings"
)

const TokenEnv = "X_BEARER_TOKEN"

// ErrNoToken means neither the environment nor the config file holds a bearer token.
var ErrNoToken = errors.New("no bearer token: set " + TokenEnv + " or api.bearer_token in the config file")

// Token resolves the bearer token, environment first.
func (c *Config) Token() (string, error) {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(c.API.BearerToken); v != "" {
		return v, nil
	}
	return "", ErrNoToken
}
