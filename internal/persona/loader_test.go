package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()

	good := `name: companion
speaker: a friendly assistant
addressee: the user
styleNotes: warm, brief sentences
`
	if err := os.WriteFile(filepath.Join(dir, "companion.yaml"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	// Malformed file is skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(":\n  - ["), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-YAML files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if profiles[0].Speaker != "a friendly assistant" {
		t.Errorf("unexpected speaker: %q", profiles[0].Speaker)
	}
}

func TestLoadFromDirectory_NameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "quiet.yml"), []byte("styleNotes: soft\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(profiles) != 1 || profiles[0].Name != "quiet" {
		t.Errorf("expected name from filename, got %v", profiles)
	}
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	profiles, err := LoadFromDirectory("/nonexistent/personas", testLogger())
	if err != nil || profiles != nil {
		t.Errorf("missing dir should be a quiet no-op, got %v, %v", profiles, err)
	}
}

func TestFind(t *testing.T) {
	profiles := []Profile{{Name: "a"}, {Name: "b"}}
	if p := Find(profiles, "b"); p == nil || p.Name != "b" {
		t.Error("expected to find b")
	}
	if p := Find(profiles, "c"); p != nil {
		t.Error("expected nil for unknown persona")
	}
}
