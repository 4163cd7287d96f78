package am

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := DefaultConfig()
	cfg.Pulse.Workers = 12
	cfg.Log.File = "/var/log/cadence.log"

	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig() failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if loaded.Pulse.Workers != 12 {
		t.Errorf("workers = %d, want 12", loaded.Pulse.Workers)
	}
	if loaded.Log.File != "/var/log/cadence.log" {
		t.Errorf("log.file = %q", loaded.Log.File)
	}
}

func TestWriteConfig_RotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := DefaultConfig()

	for i := 1; i <= 5; i++ {
		cfg.Pulse.Workers = i
		if err := WriteConfig(path, cfg); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Errorf("expected backup %s: %v", suffix, err)
		}
	}
	if _, err := os.Stat(path + ".back4"); !os.IsNotExist(err) {
		t.Error("only three backups should be kept")
	}

	previous, err := LoadFromFile(path + ".back1")
	if err != nil {
		t.Fatal(err)
	}
	if previous.Pulse.Workers != 4 {
		t.Errorf(".back1 should hold the previous version, got workers = %d", previous.Pulse.Workers)
	}
}
