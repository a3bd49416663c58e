package config

import "testing"

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("TEST_INT_VAL", "42")
	if got := intFromEnv("TEST_INT_VAL", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := intFromEnv("TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}

func TestLoad_RequiresWorkdir(t *testing.T) {
	t.Setenv("WORKDIR", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when WORKDIR is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WORKDIR", dir)
	t.Setenv("VECTOR_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Databases.Vector.Backend != "memory" {
		t.Errorf("expected memory backend with no DSN, got %q", cfg.Databases.Vector.Backend)
	}
	if cfg.AnalysisQueueCapacity <= 0 {
		t.Errorf("expected positive queue capacity")
	}
}
