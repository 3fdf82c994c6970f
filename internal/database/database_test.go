package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveMigrationsDir(t *testing.T) {
	dir := t.TempDir()

	abs, err := resolveMigrationsDir(dir)
	if err != nil {
		t.Fatalf("existing dir rejected: %v", err)
	}
	if abs != dir {
		t.Fatalf("want %s, got %s", dir, abs)
	}
}

func TestResolveMigrationsDirRelativeToCwd(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.Mkdir("migrations", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	abs, err := resolveMigrationsDir("migrations")
	if err != nil {
		t.Fatalf("relative dir rejected: %v", err)
	}
	if filepath.Base(abs) != "migrations" || !filepath.IsAbs(abs) {
		t.Fatalf("unexpected resolution %s", abs)
	}
}

func TestResolveMigrationsDirErrors(t *testing.T) {
	if _, err := resolveMigrationsDir(""); err == nil {
		t.Fatal("empty dir must be rejected")
	}
	if _, err := resolveMigrationsDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing dir must be rejected")
	}

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := resolveMigrationsDir(file); err == nil {
		t.Fatal("plain file must be rejected")
	}
}
