package mcp

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// WatchManifests watches manifestDirs for .json changes and calls onChange
// whenever a manifest file is created, written, removed, or renamed (spec's
// boot-time-only discovery enriched with a live-reload path, gated behind
// MCP_MANIFEST_WATCH). Grounded on
// agentsdk-go/pkg/config/rules.go's fsnotify.NewWatcher + single-goroutine
// event/error select loop, generalized from watching one rules directory to
// several manifest directories.
func WatchManifests(ctx context.Context, dirs []string, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("[mcp] watch %s: %v", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if strings.ToLower(filepath.Ext(event.Name)) != ".json" {
					continue
				}
				if onChange != nil {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[mcp] watcher error: %v", err)
			}
		}
	}()

	return watcher, nil
}
