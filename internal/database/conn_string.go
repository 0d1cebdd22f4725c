package database

import (
	"fmt"
	"net/url"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
)

// BuildConnString builds a PostgreSQL wire connection string from config.
// QuestDB speaks the same protocol on sink.pg_port.
func BuildConnString(cfg config.SinkConfig) string {
	// URL-encode credentials to handle special characters
	user := url.QueryEscape(cfg.User)
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user,
		escapedPassword,
		cfg.Host,
		cfg.PGPort,
		cfg.Database,
		sslMode,
	)
}
