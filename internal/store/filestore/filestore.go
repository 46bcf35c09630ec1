// Package filestore implements the journey store (C3) against
// on-device files: one JSON blob per journey, written via a temp-file
// + atomic rename so a crash mid-write never leaves a torn record
// (§4.3, "write new file + atomic rename, or equivalent transactional
// primitive").
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/store"
)

// FileStore is the default Store backend.
type FileStore struct {
	dir string

	// locks guards one *sync.Mutex per journey id for Lock/Guard. The
	// map itself is protected by mapMu.
	mapMu sync.Mutex
	locks map[string]*sync.Mutex

	// idx mirrors on-disk state in memory so list_active and
	// list_for_resume_before don't need a directory scan on every
	// call. Rebuilt from disk at New.
	idxMu sync.RWMutex
	idx   map[string]*journey.Journey
}

// New opens (and, if necessary, creates) a file-backed store rooted at
// dir, rehydrating its in-memory index from whatever journeys already
// exist on disk.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &journey.StoreError{Op: "mkdir", Cause: err}
	}
	fs := &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
		idx:   make(map[string]*journey.Journey),
	}
	if err := fs.rehydrate(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) rehydrate() error {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return &journey.StoreError{Op: "readdir", Cause: err}
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, e.Name()))
		if err != nil {
			return &journey.StoreError{Op: "read", Cause: err}
		}
		var j journey.Journey
		if err := json.Unmarshal(data, &j); err != nil {
			return &journey.StoreError{Op: "unmarshal", Cause: err}
		}
		fs.idx[j.JourneyID.String()] = &j
	}
	return nil
}

func (fs *FileStore) path(journeyID string) string {
	return filepath.Join(fs.dir, journeyID+".json")
}

func (fs *FileStore) Load(ctx context.Context, journeyID string) (*journey.Journey, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	j, ok := fs.idx[journeyID]
	if !ok {
		return nil, nil
	}
	return j.Clone(), nil
}

func (fs *FileStore) Save(ctx context.Context, j *journey.Journey) error {
	j.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(j)
	if err != nil {
		return &journey.StoreError{Op: "marshal", Cause: err}
	}

	final := fs.path(j.JourneyID.String())
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &journey.StoreError{Op: "write", Cause: err}
	}
	if err := os.Rename(tmp, final); err != nil {
		return &journey.StoreError{Op: "rename", Cause: err}
	}

	fs.idxMu.Lock()
	fs.idx[j.JourneyID.String()] = j.Clone()
	fs.idxMu.Unlock()
	return nil
}

func (fs *FileStore) ListActive(ctx context.Context, distinctID string) ([]*journey.Journey, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	var out []*journey.Journey
	for _, j := range fs.idx {
		if j.DistinctID == distinctID && !j.Status.Terminal() {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (fs *FileStore) ListForResumeBefore(ctx context.Context, instant time.Time) ([]*journey.Journey, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	cutoff := instant.UnixNano()
	var out []*journey.Journey
	for _, j := range fs.idx {
		if j.Status == journey.StatusPaused && j.ResumeAt != nil && *j.ResumeAt <= cutoff {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (fs *FileStore) CountEverCreated(ctx context.Context, campaignID, distinctID string) (int, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	count := 0
	for _, j := range fs.idx {
		if j.CampaignID == campaignID && j.DistinctID == distinctID {
			count++
		}
	}
	return count, nil
}

func (fs *FileStore) LastStarted(ctx context.Context, campaignID, distinctID string) (time.Time, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	var last time.Time
	for _, j := range fs.idx {
		if j.CampaignID == campaignID && j.DistinctID == distinctID && j.CreatedAt.After(last) {
			last = j.CreatedAt
		}
	}
	return last, nil
}

func (fs *FileStore) HasConverted(ctx context.Context, campaignID, distinctID string) (bool, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	for _, j := range fs.idx {
		if j.CampaignID == campaignID && j.DistinctID == distinctID && j.ExitReason == journey.ExitConverted {
			return true, nil
		}
	}
	return false, nil
}

// ListAllRunning returns every journey currently in StatusRunning,
// across all users. Not part of the core store.Store contract (§4.3
// only requires per-user and per-deadline listing); it backs the
// hanging-journey detector (internal/supervisor), which must sweep the
// whole store rather than one user at a time.
func (fs *FileStore) ListAllRunning(ctx context.Context) ([]*journey.Journey, error) {
	fs.idxMu.RLock()
	defer fs.idxMu.RUnlock()
	var out []*journey.Journey
	for _, j := range fs.idx {
		if j.Status == journey.StatusRunning {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (fs *FileStore) Lock(ctx context.Context, journeyID string) (store.Guard, error) {
	fs.mapMu.Lock()
	mu, ok := fs.locks[journeyID]
	if !ok {
		mu = &sync.Mutex{}
		fs.locks[journeyID] = mu
	}
	fs.mapMu.Unlock()

	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return &guard{mu: mu}, nil
	case <-ctx.Done():
		// The goroutine above still owns the eventual lock; let it
		// acquire and release immediately so Lock never leaks a held
		// mutex the caller never sees.
		go func() { <-done; mu.Unlock() }()
		return nil, ctx.Err()
	}
}

type guard struct {
	mu   *sync.Mutex
	once sync.Once
}

func (g *guard) Release() {
	g.once.Do(g.mu.Unlock)
}

var _ store.Store = (*FileStore)(nil)

// PathFor exposes the on-disk path for a journey id, for diagnostics.
func (fs *FileStore) PathFor(journeyID string) string {
	return fs.path(journeyID)
}
