package profile

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo".
	Mode string
	// Addr is the binding address for the HTTP form server.
	Addr string
	// Port is the binding port for the HTTP form server.
	Port int
	// Data is the data directory (sqlite database location).
	Data string
	// Driver is the database driver, "postgres" or "sqlite".
	Driver string
	// DSN is the database source name. When empty and the driver is
	// postgres, it is assembled from the DB_* environment variables.
	DSN string
	// Version is the current service version.
	Version string

	// BotToken is the Telegram bot API token (TELEGRAM_BOT_TOKEN).
	BotToken string
	// EventURL is the public base URL used when issuing form links (EVENT_URL).
	EventURL string

	// Database connection settings, loaded from DB_* environment variables.
	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", p.BotToken)
	p.EventURL = getEnvOrDefault("EVENT_URL", p.EventURL)

	p.DBUser = getEnvOrDefault("DB_USER", "")
	p.DBPass = getEnvOrDefault("DB_PASS", "")
	p.DBHost = getEnvOrDefault("DB_HOST", "localhost")
	p.DBPort = getEnvOrDefault("DB_PORT", "5432")
	p.DBName = getEnvOrDefault("DB_NAME", "herald")
	if p.Mode == "dev" || p.Mode == "demo" {
		if name := os.Getenv("TEST_DB_NAME"); name != "" {
			p.DBName = name
		}
	}
}

// PostgresDSN assembles a lib/pq connection string from the DB_* settings.
func (p *Profile) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s@%s/%s?sslmode=disable",
		url.UserPassword(p.DBUser, p.DBPass).String(),
		net.JoinHostPort(p.DBHost, p.DBPort),
		url.PathEscape(p.DBName))
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

	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if p.EventURL == "" {
		return errors.New("EVENT_URL is required")
	}
	p.EventURL = strings.TrimRight(p.EventURL, "/")

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			if p.DBUser == "" {
				return errors.New("DB_USER is required for the postgres driver")
			}
			p.DSN = p.PostgresDSN()
		}
	case "sqlite":
		if p.DSN == "" {
			dataDir, err := checkDataDir(p.Data)
			if err != nil {
				return err
			}
			p.Data = dataDir
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("herald_%s.db", p.Mode))
		}
	default:
		return errors.Errorf("unknown database driver %q", p.Driver)
	}

	return nil
}

// HTTPAddr returns the listen address for the form server.
func (p *Profile) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", p.Addr, p.Port)
}
