// Package testsupport holds helpers shared by the package tests: fixture
// and golden file loading, and a Recorder that stands in for storage.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// UpdateGoldenEnv names the environment variable that makes
// CompareWithGolden rewrite golden files instead of comparing them.
const UpdateGoldenEnv = "UOW_UPDATE_GOLDEN"

// LoadFixture reads a fixture file relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureYAML decodes a YAML fixture into dest.
func LoadFixtureYAML(t *testing.T, path string, dest any) {
	t.Helper()

	if err := yaml.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to decode YAML fixture from %s: %v", path, err)
	}
}

// LoadRows decodes a YAML fixture holding rows keyed by class name, the
// shape CreateOrUpdateManaged consumes:
//
//	Customer:
//	  - {id: 1, name: Ana}
func LoadRows(t *testing.T, path string) map[string][]map[string]any {
	t.Helper()

	rows := map[string][]map[string]any{}
	LoadFixtureYAML(t, path, &rows)
	return rows
}

// WriteGolden writes data to a golden file, creating its directory.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// WriteGoldenYAML encodes v as YAML into a golden file.
func WriteGoldenYAML(t *testing.T, path string, v any) {
	t.Helper()

	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode golden file %s: %v", path, err)
	}
	WriteGolden(t, path, data)
}

// CompareWithGolden compares actual with the golden file at path. A missing
// golden file is created, and every file is rewritten when UpdateGoldenEnv
// is set.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) != "" {
		WriteGolden(t, path, actual)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nexpected:\n%s\nactual:\n%s", path, expected, actual)
	}
}

// CompareYAMLWithGolden encodes v as YAML and compares it with path.
func CompareYAMLWithGolden(t *testing.T, path string, v any) {
	t.Helper()

	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	CompareWithGolden(t, path, data)
}

// TempFile writes content to a file removed when the test ends.
func TempFile(t testing.TB, pattern string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), pattern)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// FixturePath joins filename to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath joins filename to the testdata/golden directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
