package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/internal/domain/models"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "keys.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_KeysLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "--config", cfg, "keys", "list", "-o", "json")
	require.NoError(t, err)
	var empty dto.KeyListResponse
	require.NoError(t, json.Unmarshal([]byte(out), &empty))
	assert.Zero(t, empty.Total)

	out, err = runCLI(t, "--config", cfg, "keys", "rotate")
	require.NoError(t, err)
	assert.Contains(t, out, "rotated: new active key")

	out, err = runCLI(t, "--config", cfg, "keys", "rotate")
	require.NoError(t, err)
	assert.Contains(t, out, "no rotation needed")

	out, err = runCLI(t, "--config", cfg, "keys", "rotate", "--force", "-o", "json")
	require.NoError(t, err)
	var rotated dto.RotationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &rotated))
	assert.True(t, rotated.Rotated)
	assert.NotEmpty(t, rotated.PreviousKeyID)

	out, err = runCLI(t, "--config", cfg, "keys", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "active")
	assert.Contains(t, lines[2], "superseded")

	out, err = runCLI(t, "--config", cfg, "keys", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "purged 0 key(s)")
}

func TestCLI_TokenIssue(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "--config", cfg, "token", "issue", "--subject", "svc-a", "--authority", "a", "--authority", "b", "--ttl", "10m")
	require.NoError(t, err)

	claims := &models.Claims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(out), claims)
	require.NoError(t, err)
	assert.Equal(t, "svc-a", claims.Subject)
	assert.Equal(t, "a b", claims.Authorities)
	assert.NotEmpty(t, parsed.Header["kid"])

	_, err = runCLI(t, "--config", cfg, "token", "issue")
	assert.Error(t, err, "subject is required")
}
