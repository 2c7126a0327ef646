package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/domain/models"
)

const grantsYAML = `
users:
  "1001": [system:key:query, system:key:rotate]
subjects:
  deploy-bot: [system:token:issue]
`

func writeGrants(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestStaticPermissionLoader_Lookup(t *testing.T) {
	loader, err := NewStaticPermissionLoader(writeGrants(t, grantsYAML))
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity *models.Identity
		want     []string
	}{
		{"by user id", &models.Identity{Subject: "alice", UserID: "1001"}, []string{"system:key:query", "system:key:rotate"}},
		{"by subject", &models.Identity{Subject: "deploy-bot"}, []string{"system:token:issue"}},
		{"user id wins over subject", &models.Identity{Subject: "deploy-bot", UserID: "1001"}, []string{"system:key:query", "system:key:rotate"}},
		{"unknown caller", &models.Identity{Subject: "mallory", UserID: "9"}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := loader.LoadPermissions(ctx, tc.identity)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStaticPermissionLoader_ReturnsCopy(t *testing.T) {
	loader := NewStaticPermissionLoaderFromGrants(Grants{Subjects: map[string][]string{"a": {"x"}}})
	got, err := loader.LoadPermissions(context.Background(), &models.Identity{Subject: "a"})
	require.NoError(t, err)
	got[0] = "mutated"

	again, _ := loader.LoadPermissions(context.Background(), &models.Identity{Subject: "a"})
	assert.Equal(t, []string{"x"}, again)
}

func TestStaticPermissionLoader_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeGrants(t, grantsYAML)
	loader, err := NewStaticPermissionLoader(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("users: [not, a, map"), 0o600))
	assert.Error(t, loader.Reload())

	got, err := loader.LoadPermissions(context.Background(), &models.Identity{Subject: "deploy-bot"})
	require.NoError(t, err)
	assert.Equal(t, []string{"system:token:issue"}, got)
}

func TestStaticPermissionLoader_MissingFile(t *testing.T) {
	_, err := NewStaticPermissionLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
