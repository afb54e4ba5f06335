package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
database:
  driver: sqlite
  path: test.db
storage:
  local_path: `+uploads+`
jwt:
  secret: short
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" || cfg.Server.Mode != "debug" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.JWT.ExpireTime != 24*time.Hour {
		t.Fatalf("expected 24h token lifetime, got %v", cfg.JWT.ExpireTime)
	}
	if !cfg.Exam.EnforceExpiry || cfg.Exam.ExpiryGraceSeconds != 120 || cfg.Exam.DefaultMentorName != "LearnHub Academy" {
		t.Fatalf("unexpected exam defaults %+v", cfg.Exam)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "test.db" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if _, err := os.Stat(uploads); err != nil {
		t.Fatalf("local storage dir should be created: %v", err)
	}
}

func TestLoadConfigExamOverrides(t *testing.T) {
	dir := writeConfig(t, `
storage:
  local_path: `+t.TempDir()+`
exam:
  enforce_expiry: false
  expiry_grace_seconds: 5
  default_mentor_name: Custom Academy
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exam.EnforceExpiry || cfg.Exam.ExpiryGraceSeconds != 5 || cfg.Exam.DefaultMentorName != "Custom Academy" {
		t.Fatalf("overrides not applied: %+v", cfg.Exam)
	}
	// 未覆盖的项保持默认
	if cfg.Exam.LockTTLSeconds != 15 {
		t.Fatalf("expected default lock ttl, got %d", cfg.Exam.LockTTLSeconds)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	release := writeConfig(t, `
server:
  mode: release
storage:
  local_path: `+t.TempDir()+`
jwt:
  secret: too-short
`)
	if _, err := LoadConfig(release); err == nil {
		t.Fatal("expected short secret to be rejected in release mode")
	}

	negative := writeConfig(t, `
storage:
  local_path: `+t.TempDir()+`
exam:
  expiry_grace_seconds: -1
`)
	if _, err := LoadConfig(negative); err == nil {
		t.Fatal("expected negative grace to be rejected")
	}
}
