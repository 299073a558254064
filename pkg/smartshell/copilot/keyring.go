// Package copilot – keyring.go stores the API key in the operating system's
// keyring (Linux: Secret Service, macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving the key:
//  1. OS keyring
//  2. Environment variable (SMARTSHELL_API_KEY, then the provider's own name)
//  3. .env file (loaded by godotenv)
//  4. config.yaml value
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	keyringService = "smartshell"
	keyringAPIKey  = "api_key"

	envAPIKey = "SMARTSHELL_API_KEY"
)

// providerKeyNames lists the env vars checked for a provider, in order.
func providerKeyNames(provider string) []string {
	switch strings.ToLower(provider) {
	case "openai":
		return []string{envAPIKey, "OPENAI_API_KEY"}
	default:
		return []string{envAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring, or "" if absent.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// StoreAPIKey saves the model API key in the keyring.
func StoreAPIKey(value string) error {
	if err := StoreKeyring(keyringAPIKey, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the model API key from the keyring.
func DeleteAPIKey() error {
	return DeleteKeyring(keyringAPIKey)
}

// ResolveAPIKey fills cfg.API.APIKey from the keyring when present.
// Env and config values were already applied by the loader.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}
	if cfg.API.APIKey != "" && !IsEnvReference(cfg.API.APIKey) {
		logger.Debug("API key loaded from config/env")
		return
	}
	logger.Warn("no API key found. Set one with: smartshell config set-key")
}

// ReadPassword reads a secret from the terminal without echo.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var buf [1024]byte
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(buf[:n])), nil
	}

	secret, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
