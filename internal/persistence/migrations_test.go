package persistence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingExecer struct {
	statements []string
	failOn     string
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && sql == r.failOn {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	r.statements = append(r.statements, sql)
	return pgconn.CommandTag{}, nil
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))
	return dir
}

func TestApplyMigrations_InNameOrder(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"README.md":      "notes",
	})

	db := &recordingExecer{}
	require.NoError(t, applyMigrations(context.Background(), db, dir, zap.NewNop()))
	assert.Equal(t, []string{"SELECT 1;", "SELECT 2;"}, db.statements)
}

func TestApplyMigrations_StopsOnFailure(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_first.sql":  "SELECT 1;",
		"002_broken.sql": "SELEC 2;",
		"003_third.sql":  "SELECT 3;",
	})

	db := &recordingExecer{failOn: "SELEC 2;"}
	err := applyMigrations(context.Background(), db, dir, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken.sql")
	assert.Equal(t, []string{"SELECT 1;"}, db.statements)
}

func TestApplyMigrations_MissingDir(t *testing.T) {
	err := applyMigrations(context.Background(), &recordingExecer{}, filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	require.Error(t, err)
}

func TestRunMigrations_NoPool(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), nil, "does-not-matter", zap.NewNop()))
}

func TestRepositoryMigrationsAreListed(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", DefaultMigrationsDir))
	require.NoError(t, err)
	assert.Contains(t, files, "001_auth_audit.sql")
}
