package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultSessionFile  = ".cache/telegram/session.json"
	defaultAuthTimeout  = time.Minute
	defaultUpdateBuffer = 256
)

// rawBotConfig is the driver's JSON config block. Durations use Go syntax.
type rawBotConfig struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	PublishTimeout string `json:"publish_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	AuthTimeout    string `json:"auth_timeout"`
	SessionFile    string `json:"session_file"`
}

// botCredentials come from the config block first and the environment second.
type botCredentials struct {
	AppID    int    `env:"TELEGRAM_APP_ID"`
	AppHash  string `env:"TELEGRAM_APP_HASH"`
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

func (c *botCredentials) fillFrom(fallback botCredentials) {
	if c.AppID == 0 {
		c.AppID = fallback.AppID
	}
	if c.AppHash == "" {
		c.AppHash = strings.TrimSpace(fallback.AppHash)
	}
	if c.BotToken == "" {
		c.BotToken = strings.TrimSpace(fallback.BotToken)
	}
}

func (c botCredentials) validate() error {
	var problems []error
	if c.AppID <= 0 {
		problems = append(problems, errors.New("app_id must be > 0"))
	}
	if c.AppHash == "" {
		problems = append(problems, errors.New("app_hash is required"))
	}
	if c.BotToken == "" {
		problems = append(problems, errors.New("bot_token is required"))
	}

	return errors.Join(problems...)
}

type botConfig struct {
	credentials    botCredentials
	publishTimeout time.Duration
	authTimeout    time.Duration
	updateBuffer   int
	sessionFile    string
}

// parseBotConfig decodes the config block and fills empty credentials from
// environment. A nil environment reads the process environment.
func parseBotConfig(raw []byte, environment map[string]string) (botConfig, error) {
	if len(raw) == 0 {
		return botConfig{}, errors.New("missing config")
	}

	var block rawBotConfig
	if err := json.Unmarshal(raw, &block); err != nil {
		return botConfig{}, fmt.Errorf("unmarshal: %w", err)
	}
	fromEnv, err := env.ParseAsWithOptions[botCredentials](env.Options{Environment: environment})
	if err != nil {
		return botConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := botConfig{
		credentials: botCredentials{
			AppID:    block.AppID,
			AppHash:  strings.TrimSpace(block.AppHash),
			BotToken: strings.TrimSpace(block.BotToken),
		},
		updateBuffer: block.UpdateBuffer,
		sessionFile:  strings.TrimSpace(block.SessionFile),
	}
	cfg.credentials.fillFrom(fromEnv)
	if cfg.updateBuffer <= 0 {
		cfg.updateBuffer = defaultUpdateBuffer
	}
	if cfg.sessionFile == "" {
		cfg.sessionFile = defaultSessionFile
	}
	if cfg.publishTimeout, err = durationOr(block.PublishTimeout, defaultPublishTimeout); err != nil {
		return botConfig{}, fmt.Errorf("publish_timeout: %w", err)
	}
	if cfg.authTimeout, err = durationOr(block.AuthTimeout, defaultAuthTimeout); err != nil {
		return botConfig{}, fmt.Errorf("auth_timeout: %w", err)
	}
	if err := cfg.credentials.validate(); err != nil {
		return botConfig{}, err
	}

	return cfg, nil
}

// durationOr parses a positive duration, returning fallback for blank input.
func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, err
	case parsed <= 0:
		return 0, fmt.Errorf("%s is not positive", raw)
	default:
		return parsed, nil
	}
}
