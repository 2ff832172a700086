// Package arealoader watches config/areas.yaml, the file form of the
// static 8-zone Area table and any seed camera calibration, and keeps
// the Repository Façade and Coordinate Transformer in sync with it.
// Watching is fsnotify with a 60s polling fallback, matching the
// license watcher's belt-and-suspenders shape: a missed fsnotify event
// (or an environment where it isn't supported) never leaves the area
// table silently stale for longer than the poll period.
package arealoader

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/technosupport/airfield-guard/internal/coords"
	"github.com/technosupport/airfield-guard/internal/model"
	"github.com/technosupport/airfield-guard/internal/repo"
)

const pollInterval = 60 * time.Second

type areaEntry struct {
	ID   int     `yaml:"id"`
	Name string  `yaml:"name"`
	X1   float64 `yaml:"x1"`
	Y1   float64 `yaml:"y1"`
	X2   float64 `yaml:"x2"`
	Y2   float64 `yaml:"y2"`
}

type calibrationEntry struct {
	Homography [3][3]float64 `yaml:"homography"`
	Scale      float64       `yaml:"scale"`
}

type areaFile struct {
	Areas           []areaEntry                 `yaml:"areas"`
	SeedCalibration map[string]calibrationEntry `yaml:"seed_calibration"`
}

// Loader reloads path into the Repository and Transformer whenever it
// changes, and once on an explicit Load call at startup.
type Loader struct {
	path      string
	repo      *repo.Repository
	transform *coords.Transformer

	lastMod time.Time
}

// New creates a Loader for path, writing through repo and transform.
func New(path string, repository *repo.Repository, transform *coords.Transformer) *Loader {
	return &Loader{path: path, repo: repository, transform: transform}
}

// Load reads path once, upserts the Area table, and seeds calibration.
// A missing or malformed file is not fatal: it is logged and the
// previous in-memory state (or the hardcoded zero-areas state at
// startup) is left untouched, matching the rest of this codebase's
// best-effort config-loading style.
func (l *Loader) Load(ctx context.Context) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("arealoader: read %s: %w", l.path, err)
	}

	var file areaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("arealoader: parse %s: %w", l.path, err)
	}

	areas := make([]model.Area, 0, len(file.Areas))
	for _, a := range file.Areas {
		areas = append(areas, model.Area{ID: a.ID, Name: a.Name, X1: a.X1, Y1: a.Y1, X2: a.X2, Y2: a.Y2})
	}

	if l.repo != nil {
		if err := l.repo.UpsertAreas(ctx, areas); err != nil {
			return fmt.Errorf("arealoader: upsert areas: %w", err)
		}
	}
	l.transform.SetAreas(areas)

	for cameraID, c := range file.SeedCalibration {
		l.transform.SetCalibration(model.Calibration{
			CameraID:   cameraID,
			Homography: c.Homography,
			Scale:      c.Scale,
			ReceivedAt: time.Now(),
		})
	}

	if info, statErr := os.Stat(l.path); statErr == nil {
		l.lastMod = info.ModTime()
	}
	return nil
}

// AreaNames returns id->name for every area currently in path, for
// callers (zones.Engine, dispatch) that need it at construction time.
func (l *Loader) AreaNames() (map[int]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("arealoader: read %s: %w", l.path, err)
	}
	var file areaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("arealoader: parse %s: %w", l.path, err)
	}
	names := make(map[int]string, len(file.Areas))
	for _, a := range file.Areas {
		names[a.ID] = a.Name
	}
	return names, nil
}

// Watch reloads on every fsnotify write/create event on path, with a
// 60s polling fallback in case fsnotify is unavailable or misses an
// event, until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("arealoader: fsnotify unavailable (%v), falling back to polling only", err)
		usePolling = true
	} else if err := watcher.Add(l.path); err != nil {
		log.Printf("arealoader: cannot watch %s (%v), falling back to polling only", l.path, err)
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
						time.Sleep(100 * time.Millisecond) // debounce partial writes
						if err := l.Load(ctx); err != nil {
							log.Printf("arealoader: reload after fsnotify event failed: %v", err)
						}
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("arealoader: watch error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(l.path)
				if err != nil {
					continue
				}
				if info.ModTime().After(l.lastMod) {
					if err := l.Load(ctx); err != nil {
						log.Printf("arealoader: poll reload failed: %v", err)
					}
				}
			}
		}
	}()
}
