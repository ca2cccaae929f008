package config

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Dynamic defaults
const (
	DefaultMaxEntities      = 500
	DefaultMaxRelationships = 2000
	DefaultConflictTTL      = 5 * time.Minute
	DefaultFlushInterval    = 2 * time.Second
)

// DynamicValues is the reloadable tuning surface
type DynamicValues struct {
	MaxEntities      int           `json:"max_entities"`
	MaxRelationships int           `json:"max_relationships"`
	ConflictTTL      time.Duration `json:"conflict_ttl"`
	FlushInterval    time.Duration `json:"flush_interval"`
}

func defaultDynamicValues() DynamicValues {
	return DynamicValues{
		MaxEntities:      DefaultMaxEntities,
		MaxRelationships: DefaultMaxRelationships,
		ConflictTTL:      DefaultConflictTTL,
		FlushInterval:    DefaultFlushInterval,
	}
}

// dynamicFile is the JSON shape on disk; durations are strings like "5m"
type dynamicFile struct {
	MaxEntities      *int    `json:"max_entities,omitempty"`
	MaxRelationships *int    `json:"max_relationships,omitempty"`
	ConflictTTL      *string `json:"conflict_ttl,omitempty"`
	FlushInterval    *string `json:"flush_interval,omitempty"`
}

// Dynamic holds tuning values that reload when the backing file changes.
// Readers always see a consistent snapshot.
type Dynamic struct {
	mu     sync.RWMutex
	values DynamicValues
	path   string
	log    *zap.Logger
}

// NewDynamic creates dynamic config backed by the given file. An empty path
// or missing file means defaults only.
func NewDynamic(path string, log *zap.Logger) *Dynamic {
	d := &Dynamic{values: defaultDynamicValues(), path: path, log: log}
	if path != "" {
		if err := d.reload(); err != nil {
			log.Warn("dynamic config not loaded, using defaults", zap.String("path", path), zap.Error(err))
		}
	}
	return d
}

// Values returns the current snapshot
func (d *Dynamic) Values() DynamicValues {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.values
}

func (d *Dynamic) reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	var file dynamicFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	next := defaultDynamicValues()
	if file.MaxEntities != nil && *file.MaxEntities > 0 {
		next.MaxEntities = *file.MaxEntities
	}
	if file.MaxRelationships != nil && *file.MaxRelationships > 0 {
		next.MaxRelationships = *file.MaxRelationships
	}
	if file.ConflictTTL != nil {
		if ttl, err := time.ParseDuration(*file.ConflictTTL); err == nil && ttl > 0 {
			next.ConflictTTL = ttl
		}
	}
	if file.FlushInterval != nil {
		if fi, err := time.ParseDuration(*file.FlushInterval); err == nil && fi > 0 {
			next.FlushInterval = fi
		}
	}

	d.mu.Lock()
	d.values = next
	d.mu.Unlock()
	d.log.Info("dynamic config loaded",
		zap.Int("max_entities", next.MaxEntities),
		zap.Int("max_relationships", next.MaxRelationships),
		zap.Duration("conflict_ttl", next.ConflictTTL),
		zap.Duration("flush_interval", next.FlushInterval))
	return nil
}

// Watch reloads the file whenever it changes, until the context is
// cancelled. It returns immediately when no file is configured.
func (d *Dynamic) Watch(ctx context.Context) error {
	if d.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(d.path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := d.reload(); err != nil {
					d.log.Warn("dynamic config reload failed", zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("dynamic config watcher error", zap.Error(err))
		}
	}
}
