package catalogwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/fabpanel/pkg/catalog"
	"github.com/bft-labs/fabpanel/pkg/log"
	"github.com/bft-labs/fabpanel/pkg/panel"
)

func TestPlugin_ReindexesOnNewBlueprint(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.New(dir, nil)
	if err != nil {
		t.Fatalf("catalog.New() failed: %v", err)
	}

	var mu sync.Mutex
	var refreshes int
	plugin := New(Config{
		DebounceDelay: 10 * time.Millisecond,
		OnRefresh: func([]catalog.Entry) {
			mu.Lock()
			refreshes++
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := plugin.Initialize(ctx, panel.PluginConfig{Catalog: cat, Logger: log.NewNoopLogger()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer plugin.Shutdown(context.Background())

	if err := os.WriteFile(filepath.Join(dir, "modell.3dbp"), []byte{0}, 0644); err != nil {
		t.Fatalf("write blueprint: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := cat.Lookup("modell"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := cat.Lookup("modell"); !ok {
		t.Fatal("catalog was not reindexed after a blueprint was added")
	}

	mu.Lock()
	defer mu.Unlock()
	if refreshes == 0 {
		t.Error("OnRefresh was not called")
	}
}

func TestPlugin_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	cat, err := catalog.New(dir, nil)
	if err != nil {
		t.Fatalf("catalog.New() failed: %v", err)
	}

	refreshed := make(chan struct{}, 1)
	plugin := New(Config{
		DebounceDelay: 10 * time.Millisecond,
		OnRefresh:     func([]catalog.Entry) { refreshed <- struct{}{} },
	})
	if err := plugin.Initialize(context.Background(), panel.PluginConfig{Catalog: cat}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer plugin.Shutdown(context.Background())

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-refreshed:
		t.Error("reindexed after a non-blueprint change")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPlugin_DisabledWithoutCatalog(t *testing.T) {
	plugin := New(Config{})
	if err := plugin.Initialize(context.Background(), panel.PluginConfig{Logger: log.NewNoopLogger()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := plugin.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	plugin := New(Config{})
	if plugin.debounceDelay != 100*time.Millisecond {
		t.Errorf("debounceDelay = %v, want 100ms", plugin.debounceDelay)
	}
	if plugin.Name() != "catalogwatcher" {
		t.Errorf("Name() = %s", plugin.Name())
	}
}
