package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"text/template"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/merchantiq/storesync/database"
	"github.com/merchantiq/storesync/internal/app/storage/auth"
	"github.com/merchantiq/storesync/internal/config"
)

const (
	// Fixed role name granted to every provisioned user
	fixedRoleName = "storesync_service"
)

// usernamePattern restricts usernames to identifiers that need no quoting
// in the prime SQL template.
var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var primeDbCmd = &cobra.Command{
	Use:   "prime-db [username]",
	Short: "Prime the database with role and user",
	Long: `Prime the database by creating the required role and user.

This command:
- Creates the role 'storesync_service' if it doesn't exist
- Creates a user (specified as positional argument) if it doesn't exist
- Grants the role and table privileges to the user
- Reads the password from STDIN

The command uses the --config option to connect to the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrimeDb,
}

func init() {
	primeDbCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	primeDbCmd.Flags().Bool("dry-run", false, "Print the SQL that would be executed to standard output")

	if err := primeDbCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

func runPrimeDb(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	username := args[0]
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username %q: must match %s", username, usernamePattern)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	var reader io.Reader
	if term.IsTerminal(int(os.Stdin.Fd())) {
		slog.Info("Reading password from terminal...")
		passwordReader, err := readerFromTerminal()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		reader = passwordReader
	} else {
		reader = cmd.InOrStdin()
	}

	passwordBytes, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := sanitizePassword(string(passwordBytes))
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	primeSQL, err := executePrimeTemplate(username, password)
	if err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), primeSQL)
		return nil
	}

	if err := executePrimeSQL(ctx, primeSQL, configPath); err != nil {
		return fmt.Errorf("failed to execute prime SQL: %w", err)
	}

	return nil
}

func executePrimeSQL(ctx context.Context, primeSQL string, configPath string) error {
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Storage.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	connString, err := auth.MigrationConnectionString(ctx, cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to build migration connection string: %w", err)
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(ctx); closeErr != nil {
			slog.Error("Error closing database connection", "error", closeErr)
		}
	}()

	tx, err := conn.BeginTx(
		ctx,
		pgx.TxOptions{
			IsoLevel:   pgx.Serializable,
			AccessMode: pgx.ReadWrite,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("Failed to rollback transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, primeSQL); err != nil {
		return fmt.Errorf("failed to prime database: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("Database primed successfully", "role", fixedRoleName)
	return nil
}

// executePrimeTemplate renders the embedded prime.sql.tmpl template.
func executePrimeTemplate(username, password string) (string, error) {
	tmpl, err := template.New("prime").Parse(string(database.PrimeTemplate()))
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := struct {
		Username string
		Password string
	}{
		Username: username,
		Password: password,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func readerFromTerminal() (io.Reader, error) {
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(passwordBytes) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}

	return bytes.NewReader(passwordBytes), nil
}

func sanitizePassword(password string) string {
	password = strings.TrimSpace(password)
	password = strings.ReplaceAll(password, "'", "''")
	return password
}
