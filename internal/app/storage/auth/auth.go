// Package auth provides functionality for dynamic database authentication.
package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/merchantiq/storesync/internal/app/storage/auth/aws"
	"github.com/merchantiq/storesync/internal/config"
)

// ResolveAuthToken resolves a dynamic authentication token for the given user.
// Returns an empty string if dynamic authentication is not configured.
// The returned token can be used as a password in a PostgreSQL connection string.
// This is useful for short-lived connections (e.g., migrations) where a
// BeforeConnect hook cannot be used.
func ResolveAuthToken(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}

	if cfg.DynamicAuth == nil {
		return "", nil
	}

	if cfg.DynamicAuth.AWSRDSIAM != nil {
		return aws.NewToken(ctx, cfg, user)
	}

	return "", fmt.Errorf("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")
}

// NewDynamicAuth creates a new dynamic authentication function based on the configuration.
func NewDynamicAuth(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (func(ctx context.Context, connConfig *pgx.ConnConfig) error, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	if cfg.DynamicAuth == nil {
		return nil, fmt.Errorf("dynamic authentication is not configured")
	}

	// NOTE: if and when more dynamic authentication types are added, we should
	// add a check that ensures only one dynamic authentication type is
	// configured.

	if cfg.DynamicAuth.AWSRDSIAM != nil {
		return aws.PgxAuthFunc(ctx, cfg, user)
	}

	return nil, fmt.Errorf("dynamic auth is configured but no supported auth method (e.g., awsRdsIam) is specified")
}

// MigrationConnectionString builds a PostgreSQL connection string suitable for
// running migrations. It resolves a dynamic auth token (if configured) and
// embeds it in the connection string so that both pgx.Connect and golang-migrate
// (which opens its own internal connection) can authenticate.
//
// Without dynamic auth the static password is embedded when one is
// configured; otherwise the string carries no password and pgpass-based
// authentication can take over.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}

	user := cfg.GetMigrationUser()

	token, err := ResolveAuthToken(ctx, cfg, user)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token for migration user: %w", err)
	}
	if token != "" {
		return cfg.BuildConnectionStringWithAuth(user, token), nil
	}

	password, err := cfg.GetPassword()
	switch {
	case err == nil:
		return cfg.BuildConnectionStringWithAuth(user, password), nil
	case cfg.PasswordFile != "":
		// A configured password file that cannot be read is a
		// misconfiguration, not a pgpass fallback.
		return "", fmt.Errorf("failed to resolve migration credentials: %w", err)
	default:
		return cfg.BuildConnectionStringWithAuth(user, ""), nil
	}
}
