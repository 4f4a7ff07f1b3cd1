package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const lockableConfig = `
webhook:
  secret: x
extract:
  fields: review->state
sink:
  kind: sqlite
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLockDryRun(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, lockableConfig)

	report, err := Lock(path, true)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(report.Hash))
	}
	if _, err := os.Stat(filepath.Join(dir, ChecksumsFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, lockableConfig)

	report, err := Lock(path, false)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("report.Written = false")
	}

	manifest, err := LoadChecksums(dir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if manifest.Hashes["config.yaml"] != report.Hash {
		t.Errorf("manifest hash = %q, want %q", manifest.Hashes["config.yaml"], report.Hash)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load() after lock failed: %v", err)
	}
}

func TestLoadRejectsTamperedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, lockableConfig)

	if _, err := Lock(path, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	writeConfig(t, dir, lockableConfig+"\n# edited\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail after the config changed")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("error = %v, want hash mismatch", err)
	}
}

func TestLockPreservesOtherEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, lockableConfig)

	manifest := "version: 1\ngenerated_at: \"2024-01-01T00:00:00Z\"\nhashes:\n  other.yaml: abc\n"
	if err := os.WriteFile(filepath.Join(dir, ChecksumsFile), []byte(manifest), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Lock(path, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}

	got, err := LoadChecksums(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hashes["other.yaml"] != "abc" {
		t.Error("existing entry dropped")
	}
	if got.Hashes["config.yaml"] == "" {
		t.Error("config.yaml not recorded")
	}
}

func TestComputeBlake3HashDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "a: 1\n")

	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := ComputeBlake3Hash(path)
	if h1 != h2 {
		t.Error("hash should be deterministic")
	}
	if err := VerifyFileHash(path, h1); err != nil {
		t.Errorf("VerifyFileHash() = %v", err)
	}
	if err := VerifyFileHash(path, strings.Repeat("0", 64)); err == nil {
		t.Error("VerifyFileHash() should fail on wrong hash")
	}
}
