package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ResolveToken returns the bot credential, checked once at startup.
// Precedence: token_file (first line of a local secret file), then the
// TELEGRAM_TOKEN environment variable, then the inline config value.
func (c *Config) ResolveToken() (string, error) {
	if path := strings.TrimSpace(c.Telegram.TokenFile); path != "" {
		tok, err := readTokenFile(path)
		if err != nil {
			return "", fmt.Errorf("telegram.token_file: %w", err)
		}
		return tok, nil
	}
	if tok := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); tok != "" {
		return tok, nil
	}
	if tok := strings.TrimSpace(c.Telegram.Token); tok != "" {
		return tok, nil
	}
	return "", errors.New("telegram token is not configured (token_file, TELEGRAM_TOKEN or telegram.token)")
}

func readTokenFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("empty token file")
	}
	tok := strings.TrimSpace(sc.Text())
	if tok == "" {
		return "", errors.New("empty token file")
	}
	return tok, nil
}
