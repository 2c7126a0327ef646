package policy

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service"
	"gopkg.in/yaml.v3"
)

// StaticPermissionLoader implements service.PermissionLoader from a YAML grants file.
// Grants are looked up by user id first, then by subject. A caller with no grant gets an empty set.
// StaticPermissionLoader 基于 YAML 授权文件实现 service.PermissionLoader。
// 先按用户 ID 查找，再按 subject 查找；没有授权的调用方得到空集合。
type StaticPermissionLoader struct {
	path string

	mu     sync.RWMutex
	grants Grants
}

// Grants is the on-disk shape of the permissions file.
//
//	users:
//	  "1001": [system:key:query, system:key:rotate]
//	subjects:
//	  deploy-bot: [system:token:issue]
type Grants struct {
	Users    map[string][]string `yaml:"users"`
	Subjects map[string][]string `yaml:"subjects"`
}

// NewStaticPermissionLoader loads grants from path. It returns an error if the file cannot be read or parsed.
// NewStaticPermissionLoader 从指定路径加载授权。文件无法读取或解析时返回错误。
func NewStaticPermissionLoader(path string) (*StaticPermissionLoader, error) {
	l := &StaticPermissionLoader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewStaticPermissionLoaderFromGrants builds a loader over in-memory grants.
func NewStaticPermissionLoaderFromGrants(g Grants) *StaticPermissionLoader {
	return &StaticPermissionLoader{grants: g}
}

// Reload re-reads the grants file. On failure the previous grants stay in effect.
func (l *StaticPermissionLoader) Reload() error {
	if l.path == "" {
		return nil
	}
	file, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read permissions file: %w", err)
	}

	var g Grants
	if err := yaml.Unmarshal(file, &g); err != nil {
		return fmt.Errorf("failed to unmarshal permissions file: %w", err)
	}

	l.mu.Lock()
	l.grants = g
	l.mu.Unlock()
	return nil
}

// LoadPermissions returns a copy of the authorities granted to identity.
func (l *StaticPermissionLoader) LoadPermissions(_ context.Context, identity *models.Identity) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	granted, ok := l.grants.Users[identity.UserID]
	if !ok || identity.UserID == "" {
		granted = l.grants.Subjects[identity.Subject]
	}
	out := make([]string, len(granted))
	copy(out, granted)
	return out, nil
}

var _ service.PermissionLoader = (*StaticPermissionLoader)(nil)
