// Package testutil provides test helper utilities for aiorch tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// OfflineProject returns files for a project whose roles all route to the
// mock provider, so no credentials or network are needed.
func OfflineProject() map[string]string {
	return map[string]string{
		".aiorch/config.yaml": `version: 1
routing:
  plan: true
  planner: mock
  generator: mock
  reviewer: mock
orchestration:
  max_retries: 2
  max_feedback_loops: 1
  backoff_base: 1ms
  max_backoff: 5ms
session:
  persist: true
  db_path: .aiorch/sessions.db
output:
  enabled: true
  dir: .aiorch/outputs
`,
	}
}

// NoPersistProject is OfflineProject with session persistence and the
// output archive switched off.
func NoPersistProject() map[string]string {
	return map[string]string{
		".aiorch/config.yaml": `version: 1
routing:
  plan: false
  generator: mock
  reviewer: ""
session:
  persist: false
output:
  enabled: false
`,
	}
}

// InvalidProject returns a config that fails validation.
func InvalidProject() map[string]string {
	return map[string]string{
		".aiorch/config.yaml": "version: 1\nrouting:\n  generator: carrier-pigeon\n",
	}
}
