package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where engram stores its own data
	DSN string
	// Driver is the storage driver (memory, sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// AuthToken, when set, is required as a bearer token on every RPC request
	AuthToken string
	// ChunkSize is the maximum chunk length in characters
	ChunkSize int

	// Embedding configuration
	EmbedProvider   string // ENGRAM_EMBED_PROVIDER (default: hash)
	EmbedAPIKey     string // ENGRAM_EMBED_API_KEY
	EmbedBaseURL    string // ENGRAM_EMBED_BASE_URL (default: https://api.openai.com/v1)
	EmbedModel      string // ENGRAM_EMBED_MODEL (default: text-embedding-3-small)
	EmbedDimensions int    // ENGRAM_EMBED_DIMENSIONS (default: 384)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// FromEnv loads configuration from ENGRAM_* environment variables.
// Values already set on the profile (e.g. from flags) are kept.
func (p *Profile) FromEnv() {
	if p.AuthToken == "" {
		p.AuthToken = os.Getenv("ENGRAM_AUTH_TOKEN")
	}
	if p.DSN == "" {
		p.DSN = os.Getenv("ENGRAM_DSN")
	}
	if p.EmbedProvider == "" {
		p.EmbedProvider = getEnvOrDefault("ENGRAM_EMBED_PROVIDER", "hash")
	}
	if p.EmbedAPIKey == "" {
		p.EmbedAPIKey = os.Getenv("ENGRAM_EMBED_API_KEY")
	}
	if p.EmbedBaseURL == "" {
		p.EmbedBaseURL = getEnvOrDefault("ENGRAM_EMBED_BASE_URL", "https://api.openai.com/v1")
	}
	if p.EmbedModel == "" {
		p.EmbedModel = getEnvOrDefault("ENGRAM_EMBED_MODEL", "text-embedding-3-small")
	}
	if p.EmbedDimensions == 0 {
		p.EmbedDimensions = getIntEnvOrDefault("ENGRAM_EMBED_DIMENSIONS", 384)
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "memory"
	}
	if p.Driver != "memory" && p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported storage driver %q", p.Driver)
	}

	if p.ChunkSize <= 0 {
		p.ChunkSize = 500
	}

	// The memory driver keeps everything in process and needs no data
	// directory; postgres needs only its DSN.
	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("postgres driver requires a dsn")
		}
		return nil
	}
	if p.Driver == "memory" {
		return nil
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "engram")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/engram"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		dbFile := fmt.Sprintf("engram_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
