package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anchorhold/anchorhold/store"
)

func TestLoadConfigNumbersReachFactories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchorhold.json")
	body := `{
		"store": {"type": "lru", "size": 16, "nested": {"type": "mem"}},
		"strategy": "manual",
		"compression": "balanced"
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	conf, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	// The lru factory wants its size as a json.Number, not a float64.
	ctx := context.Background()
	s, err := store.Create(ctx, "lru", conf.Store)
	if err != nil {
		t.Fatalf("creating lru store from config: %s", err)
	}
	if s == nil {
		t.Fatal("got nil store")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("got nil error loading a missing config file")
	}
}
