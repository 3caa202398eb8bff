package cli

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds CLI configuration
type Config struct {
	ServerURL  string
	PlayerID   string
	PlayerFile string
	Output     string
	Verbose    bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		ServerURL:  getEnvOrDefault("SCANOGRAM_SERVER", "http://localhost:5002"),
		PlayerID:   os.Getenv("SCANOGRAM_PLAYER_ID"),
		PlayerFile: getEnvOrDefault("SCANOGRAM_PLAYER_FILE", defaultPlayerFile()),
		Output:     "text",
		Verbose:    false,
	}
}

// LoadPlayerID loads the player id from file if not already set
func (c *Config) LoadPlayerID() error {
	if c.PlayerID != "" {
		return nil
	}

	data, err := os.ReadFile(c.PlayerFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first run
		}
		return err
	}

	c.PlayerID = strings.TrimSpace(string(data))
	return nil
}

// SavePlayerID remembers the id the server assigned so later commands act
// as the same player
func (c *Config) SavePlayerID(id string) error {
	c.PlayerID = id

	dir := filepath.Dir(c.PlayerFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.PlayerFile, []byte(id), 0600)
}

func defaultPlayerFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scanogram/player"
	}
	return filepath.Join(home, ".scanogram", "player")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
