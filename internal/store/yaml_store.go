// Package store provides the persisted protocol.NodeStore implementations a
// driver can use to remember cluster topology across restarts, so it
// doesn't have to be handed the full seed list again every time: a YAML
// file for simple deployments, a SQLite table for embedding into a larger
// application's own database.
package store

import (
	"context"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/renameio"

	"github.com/typedb/typedb-driver-sub001/internal/protocol"
)

// YamlStore persists the known replica list in a YAML file, rewritten
// atomically on every Set via renameio so a crash mid-write never leaves a
// truncated file behind.
type YamlStore struct {
	path    string
	servers []protocol.NodeInfo
	mu      sync.RWMutex
}

// NewYamlStore loads path if it exists, or starts empty if it doesn't.
func NewYamlStore(path string) (*YamlStore, error) {
	servers := []protocol.NodeInfo{}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &servers); err != nil {
			return nil, err
		}
	}

	return &YamlStore{path: path, servers: servers}, nil
}

func (s *YamlStore) Get(ctx context.Context) ([]protocol.NodeInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.NodeInfo, len(s.servers))
	copy(out, s.servers)
	return out, nil
}

func (s *YamlStore) Set(ctx context.Context, servers []protocol.NodeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(servers)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	s.servers = servers
	return nil
}

var _ protocol.NodeStore = (*YamlStore)(nil)
