package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path whenever it is written, created or renamed into place, and
// passes the result to onChange. Invalid documents are logged and reported with a non-nil error;
// the previous configuration stays the caller's to keep. onChange runs on the watcher goroutine.
//
// The parent directory is watched rather than the file, so editors that replace the file on save
// keep triggering reloads.
//
// Parameters:
//   - path: the config file
//   - onChange: receives each reloaded Config, or the error that prevented loading it
//
// Returns:
//   - func(): stops watching; safe to call more than once
//   - error: when the watcher cannot be created
func Watch(path string, onChange func(Config, error)) (func(), error) {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Printf("[Config] reload failed: %v", err)
				}
				onChange(cfg, err)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Config] watcher error: %v", err)
			}
		}
	}()

	once := &sync.Once{}
	return func() {
		once.Do(func() {
			close(done)
			watcher.Close()
			wg.Wait()
		})
	}, nil
}
