// Package copilot – loader.go loads the YAML configuration. Values may
// reference environment variables, which are also read from .env files.
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	return cfg, nil
}

// LoadDefaultConfig returns defaults with secrets from the environment,
// for runs without a config file.
func LoadDefaultConfig() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	resolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes cfg as YAML. The API key is never written in
// clear text; a ${SMARTSHELL_API_KEY} reference is stored instead.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	if sanitized.API.APIKey != "" && !IsEnvReference(sanitized.API.APIKey) {
		sanitized.API.APIKey = "${" + envAPIKey + "}"
	}

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if existing, err := os.ReadFile(path); err == nil {
			_ = os.WriteFile(path+".bak", existing, 0o600)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches the standard locations.
func FindConfigFile() string {
	candidates := []string{
		"smartshell.yaml",
		"smartshell.yml",
		"config.yaml",
		filepath.Join(DefaultStateDir(), "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files without overriding existing variables.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local", filepath.Join(DefaultStateDir(), ".env")} {
		_ = godotenv.Load(f)
	}
}

func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifierType, modifierValue, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifierType {
		case "?":
			if modifierValue == "" {
				modifierValue = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + modifierValue
		case "-":
			return modifierValue
		}
		return match
	})
}

// expandEnvVarsWithValidation fails when a ${VAR:?error} variable is unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}
	rest := result[idx+len("ERROR:"):]
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	msg := rest[colon+1:]
	if nl := strings.IndexByte(msg, '\n'); nl != -1 {
		msg = msg[:nl]
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colon], strings.TrimSpace(msg))
}

// resolveSecrets fills the API key from the environment when the config
// leaves it empty or unexpanded.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey != "" && !IsEnvReference(cfg.API.APIKey) {
		return
	}
	cfg.API.APIKey = ""
	for _, name := range providerKeyNames(cfg.API.Provider) {
		if key := os.Getenv(name); key != "" {
			cfg.API.APIKey = key
			return
		}
	}
}

func resolveRelativePaths(cfg *Config, configPath string) {
	dir := filepath.Dir(configPath)
	cfg.Session.StateDir = resolvePathFromConfig(cfg.Session.StateDir, dir)
	cfg.Logging.File = resolvePathFromConfig(cfg.Logging.File, dir)
	cfg.Translate.CachePath = resolvePathFromConfig(cfg.Translate.CachePath, dir)
}

// resolvePathFromConfig expands ~ and makes relative paths absolute against
// the config file's directory.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "$")
}

// checkFilePermissions warns if the config file is readable by others.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
