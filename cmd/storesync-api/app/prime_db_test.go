package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "trims whitespace", in: "  s3cret\n", want: "s3cret"},
		{name: "escapes single quotes", in: "pa'ss", want: "pa''ss"},
		{name: "trims then escapes", in: " it's \n", want: "it''s"},
		{name: "empty", in: "\n", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sanitizePassword(tt.in))
		})
	}
}

func TestExecutePrimeTemplate(t *testing.T) {
	t.Parallel()

	sql, err := executePrimeTemplate("syncuser", "s3cret")
	require.NoError(t, err)

	assert.Contains(t, sql, "CREATE ROLE storesync_service")
	assert.Contains(t, sql, "CREATE USER syncuser WITH PASSWORD 's3cret'")
	assert.Contains(t, sql, "GRANT storesync_service TO syncuser")
}

// primeDbTestRoot wires primeDbCmd under a fresh root so each execution
// parses its own argument list.
func primeDbTestRoot(in string, out *bytes.Buffer) *cobra.Command {
	root := &cobra.Command{Use: "storesync-api"}
	root.AddCommand(primeDbCmd)
	root.SetIn(strings.NewReader(in))
	root.SetOut(out)
	root.SetErr(out)
	return root
}

func TestPrimeDb(t *testing.T) {
	t.Run("dry run prints the SQL", func(t *testing.T) {
		var out bytes.Buffer
		root := primeDbTestRoot("s3cret\n", &out)
		root.SetArgs([]string{"prime-db", "syncuser", "--config", "unused.yaml", "--dry-run"})

		require.NoError(t, root.Execute())

		assert.Contains(t, out.String(), "CREATE USER syncuser WITH PASSWORD 's3cret'")
	})

	t.Run("invalid username is rejected", func(t *testing.T) {
		var out bytes.Buffer
		root := primeDbTestRoot("s3cret\n", &out)
		root.SetArgs([]string{"prime-db", "Sync-User", "--config", "unused.yaml", "--dry-run"})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid username")
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		var out bytes.Buffer
		root := primeDbTestRoot("\n", &out)
		root.SetArgs([]string{"prime-db", "syncuser", "--config", "unused.yaml", "--dry-run"})

		err := root.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password cannot be empty")
	})
}
