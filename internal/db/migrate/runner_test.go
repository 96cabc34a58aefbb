package migrate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunValidatesArguments(t *testing.T) {
	require.Error(t, Run("", "up"))
	require.Error(t, Run("postgres://localhost/db", "sideways"))
}

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", DriverURL("postgres://u:p@h:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://h/db", DriverURL("postgresql://h/db"))
	require.Equal(t, "pgx5://h/db", DriverURL("pgx5://h/db"))
}
