package config

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KeySource yields the current hub application key. The stream client
// calls it on every connect attempt, so a key restored externally (for
// example after re-pairing the bridge) takes effect on the next retry
// without a restart.
type KeySource struct {
	mu   sync.RWMutex
	key  string
	path string
}

// StaticKey wraps a fixed key with no file backing.
func StaticKey(key string) *KeySource {
	return &KeySource{key: key}
}

// KeyFromFile loads the key from path. The file holds the bare key,
// surrounding whitespace ignored.
func KeyFromFile(path string) (*KeySource, error) {
	ks := &KeySource{path: path}
	if err := ks.reload(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (k *KeySource) Key() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

func (k *KeySource) reload() error {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.key = strings.TrimSpace(string(data))
	k.mu.Unlock()
	return nil
}

// Watch monitors the key file for changes and reloads. fsnotify with a
// slow polling loop as safety net; either path alone is sufficient.
func (k *KeySource) Watch(ctx context.Context) {
	if k.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("[WARN] Key watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(k.path); err != nil {
		log.Printf("[WARN] Key watcher: cannot watch %s (%v), falling back to polling", k.path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
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
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						if err := k.reload(); err != nil {
							log.Printf("[ERROR] Key watcher: reload failed: %v", err)
						} else {
							log.Printf("App key reloaded from %s", k.path)
						}
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[ERROR] Key watcher: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := k.reload(); err != nil {
					log.Printf("[WARN] Key watcher: poll reload failed: %v", err)
				}
			}
		}
	}()
}
