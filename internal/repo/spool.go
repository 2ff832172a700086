package repo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/technosupport/airfield-guard/internal/model"
)

// Spool holds first-detection records on disk when Postgres is
// unreachable, and replays them once it recovers.
type Spool struct {
	dir        string
	maxBytes   int64
	replayLock sync.Mutex
	repo       *Repository
}

// NewSpool creates a Spool rooted at dir, capped at maxBytes total.
func NewSpool(dir string, maxBytes int64) *Spool {
	_ = os.MkdirAll(dir, 0750)
	return &Spool{dir: dir, maxBytes: maxBytes}
}

// bindRepo lets the repo wire itself into the spool after both are
// constructed (New(repo, spool) and NewSpool(...) would otherwise need
// each other).
func (s *Spool) bindRepo(r *Repository) { s.repo = r }

func (s *Spool) spoolFile() string {
	return filepath.Join(s.dir, "detect_event_spool.log")
}

// SpoolFirstDetection appends rec as a JSON line to the spool file.
func (s *Spool) SpoolFirstDetection(rec model.FirstDetectionRecord) error {
	if s.isFull() {
		return fmt.Errorf("repo: spool directory at capacity (%d bytes)", s.maxBytes)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.spoolFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *Spool) isFull() bool {
	var size int64
	_ = filepath.Walk(s.dir, func(_ string, info fs.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size >= s.maxBytes
}

// StartReplayer runs ReplayOnce on a ticker until ctx is cancelled.
func (s *Spool) StartReplayer(ctx context.Context, repo *Repository) {
	s.bindRepo(repo)
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplayOnce(ctx)
			}
		}
	}()
}

// ReplayOnce moves the current spool file aside and retries every record
// in it against Postgres. Records that still fail are re-spooled by
// SaveFirstDetection's own failure path, so nothing is lost, just rotated.
func (s *Spool) ReplayOnce(ctx context.Context) {
	s.replayLock.Lock()
	defer s.replayLock.Unlock()

	if s.repo == nil {
		return
	}

	info, err := os.Stat(s.spoolFile())
	if os.IsNotExist(err) || (info != nil && info.Size() == 0) {
		return
	}

	replayPath := filepath.Join(s.dir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))
	if err := os.Rename(s.spoolFile(), replayPath); err != nil {
		log.Printf("[repo] failed to rotate spool for replay: %v", err)
		return
	}
	defer os.Remove(replayPath)

	f, err := os.Open(replayPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var succeeded int
	for scanner.Scan() {
		var rec model.FirstDetectionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if err := s.repo.SaveFirstDetection(ctx, rec); err == nil {
			succeeded++
		}
	}

	if succeeded > 0 {
		log.Printf("[repo] replayed %d spooled first-detection records", succeeded)
	}
}
