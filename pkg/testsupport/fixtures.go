// Package testsupport provides small helpers for loading test fixtures.
package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// FixturePath returns the path of a fixture under the package's testdata
// directory.
func FixturePath(name string) string {
	return filepath.Join("testdata", name)
}

// LoadFixture reads a fixture file, failing the test when it is missing.
func LoadFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(FixturePath(name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return data
}

// LoadFixtureJSON reads a fixture file and unmarshals it into out.
func LoadFixtureJSON(t *testing.T, name string, out any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, name), out); err != nil {
		t.Fatalf("failed to decode fixture %s: %v", name, err)
	}
}

// WriteFixture writes content under a temp directory and returns its path.
// Useful for exercising file-backed stores without touching testdata.
func WriteFixture(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}
