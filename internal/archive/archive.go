// Package archive stores completed exchanges as YAML files on disk.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/warriorcabo/ai-orchestration-system/internal/orchestrator"
)

// timestampLayout prefixes every archived file name.
const timestampLayout = "20060102T150405.000Z"

// FileStore writes one YAML document per exchange under <dir>/<user>/.
type FileStore struct {
	dir string
}

var _ orchestrator.OutputStore = (*FileStore)(nil)

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the archive root.
func (s *FileStore) Dir() string { return s.dir }

// Save implements orchestrator.OutputStore.
func (s *FileStore) Save(ctx context.Context, ex orchestrator.Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	userDir := filepath.Join(s.dir, safeName(ex.UserID))
	if err := os.MkdirAll(userDir, 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	data, err := yaml.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshalling exchange: %w", err)
	}

	name := fmt.Sprintf("%s-%s.yaml", ex.Time.UTC().Format(timestampLayout), uuid.New().String()[:8])
	if err := os.WriteFile(filepath.Join(userDir, name), data, 0640); err != nil {
		return fmt.Errorf("writing exchange: %w", err)
	}
	return nil
}

// List returns the archived exchanges of userID, oldest first.
// A user with no archive yields an empty slice.
func (s *FileStore) List(userID string) ([]orchestrator.Exchange, error) {
	userDir := filepath.Join(s.dir, safeName(userID))
	entries, err := os.ReadDir(userDir)
	if errors.Is(err, os.ErrNotExist) {
		return []orchestrator.Exchange{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]orchestrator.Exchange, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(userDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		var ex orchestrator.Exchange
		if err := yaml.Unmarshal(data, &ex); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		out = append(out, ex)
	}
	return out, nil
}

// safeName maps a user id onto a single path element. The sanitized id is
// suffixed with a hash of the raw id so distinct ids never share a directory.
func safeName(id string) string {
	sum := sha256.Sum256([]byte(id))
	suffix := hex.EncodeToString(sum[:4])

	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	name := sb.String()
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name + "-" + suffix
}
