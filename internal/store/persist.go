package store

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/veclite-io/veclite/internal/events"
	"github.com/veclite-io/veclite/internal/metadata"
	"github.com/veclite-io/veclite/internal/vector"
	"github.com/veclite-io/veclite/internal/verrors"
)

const onDiskVersion = 1

// saveFuture coalesces concurrent Save callers onto one in-flight save:
// a pending save is handed back to every concurrent caller instead of
// starting a second one.
type saveFuture struct {
	mu      sync.Mutex
	pending *sync.WaitGroup
	err     error
}

func (f *saveFuture) run(do func() error) error {
	f.mu.Lock()
	if f.pending != nil {
		wg := f.pending
		f.mu.Unlock()
		wg.Wait()
		f.mu.Lock()
		err := f.err
		f.mu.Unlock()
		return err
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	f.pending = wg
	f.mu.Unlock()

	err := do()

	f.mu.Lock()
	f.err = err
	f.pending = nil
	f.mu.Unlock()
	wg.Done()
	return err
}

type vectorMetaEntry struct {
	ID     vector.ID `json:"id"`
	Offset int64     `json:"offset"`
	Length int       `json:"length"`
	Dim    int       `json:"dim"`
}

type metaFile struct {
	Version          int                          `json:"version"`
	DefaultVectorSize int                         `json:"defaultVectorSize"`
	IDCounter        uint64                        `json:"idCounter"`
	Vectors          []vectorMetaEntry             `json:"vectors"`
	Metadata         map[string]metadata.Metadata  `json:"metadata"`
}

func (s *Store) metaPath() string {
	name := "meta.json"
	if s.cfg.UseCompression {
		name += ".gz"
	}
	return filepath.Join(s.cfg.DataDir, name)
}

func (s *Store) vecPath() string {
	name := "vec.bin"
	if s.cfg.UseCompression {
		name += ".gz"
	}
	return filepath.Join(s.cfg.DataDir, name)
}

// Save persists the store to its two-file on-disk format. Concurrent
// calls coalesce onto a single in-flight save.
func (s *Store) Save() error {
	return s.save.run(s.doSave)
}

func (s *Store) doSave() error {
	s.mu.RLock()
	dataDir := s.cfg.DataDir
	if dataDir == "" {
		s.mu.RUnlock()
		return nil
	}
	snapshot := make([]*entry, 0, len(s.byKey))
	for _, key := range s.order {
		if e, ok := s.byKey[key]; ok {
			snapshot = append(snapshot, e)
		}
	}
	metaCopy := make(map[string]metadata.Metadata, len(s.metaByID))
	for k, v := range s.metaByID {
		metaCopy[k] = v.Clone()
	}
	mf := metaFile{
		Version:           onDiskVersion,
		DefaultVectorSize: s.defaultDim,
		IDCounter:         s.idCounter,
		Metadata:          metaCopy,
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	vecFile, err := os.Create(s.vecPath())
	if err != nil {
		return fmt.Errorf("creating vec.bin: %w", err)
	}
	defer vecFile.Close()

	var vecWriter io.Writer = vecFile
	var gw *gzip.Writer
	if s.cfg.UseCompression {
		gw = gzip.NewWriter(vecFile)
		vecWriter = gw
	}

	var offset int64
	for _, e := range snapshot {
		if err := binary.Write(vecWriter, binary.LittleEndian, e.vec); err != nil {
			return fmt.Errorf("writing vector %s: %w", e.id, err)
		}
		length := len(e.vec) * 4
		mf.Vectors = append(mf.Vectors, vectorMetaEntry{ID: e.id, Offset: offset, Length: length, Dim: e.dim})
		offset += int64(length)
	}
	if gw != nil {
		if err := gw.Close(); err != nil {
			return fmt.Errorf("closing gzip writer: %w", err)
		}
	}

	metaBytes, err := json.Marshal(mf)
	if err != nil {
		return fmt.Errorf("marshaling meta.json: %w", err)
	}
	if err := writeMaybeGzipped(s.metaPath(), metaBytes, s.cfg.UseCompression); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}

	s.emitter.Emit(events.DBSaved, map[string]any{"count": len(snapshot)})
	return nil
}

func writeMaybeGzipped(path string, data []byte, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if !compress {
		_, err := f.Write(data)
		return err
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func readMaybeGzipped(path string, compress bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !compress {
		return io.ReadAll(f)
	}
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

// Load restores the store from its on-disk files. Missing files are not
// an error (fresh database). A malformed version field is fatal. A
// vector with an out-of-range offset/length is skipped with a warning,
// not an abort.
func (s *Store) Load() error {
	s.mu.Lock()
	dataDir := s.cfg.DataDir
	s.mu.Unlock()
	if dataDir == "" {
		return nil
	}

	metaBytes, err := readMaybeGzipped(s.metaPath(), s.cfg.UseCompression)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading meta.json: %w", err)
	}

	var mf metaFile
	if err := json.Unmarshal(metaBytes, &mf); err != nil {
		return fmt.Errorf("parsing meta.json: %w", err)
	}
	if mf.Version != onDiskVersion {
		return fmt.Errorf("%w: meta.json version %d", verrors.ErrInvalidVersion, mf.Version)
	}

	vecBytes, err := readMaybeGzipped(s.vecPath(), s.cfg.UseCompression)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading vec.bin: %w", err)
	}

	byKey := make(map[string]*entry, len(mf.Vectors))
	order := make([]string, 0, len(mf.Vectors))
	for _, ve := range mf.Vectors {
		if ve.Offset < 0 || ve.Length < 0 || ve.Offset+int64(ve.Length) > int64(len(vecBytes)) {
			s.log.Warn("skipping vector with out-of-range offset/length", slog.String("id", ve.ID.String()))
			continue
		}
		n := ve.Length / 4
		vec := make([]float32, n)
		if err := binary.Read(bytes.NewReader(vecBytes[ve.Offset:ve.Offset+int64(ve.Length)]), binary.LittleEndian, vec); err != nil {
			s.log.Warn("skipping corrupt vector entry", slog.String("id", ve.ID.String()), slog.Any("error", err))
			continue
		}
		key := ve.ID.Key()
		byKey[key] = &entry{id: ve.ID, vec: vec, dim: ve.Dim, exists: true}
		order = append(order, key)
	}

	s.mu.Lock()
	s.byKey = byKey
	s.order = order
	s.metaByID = mf.Metadata
	if s.metaByID == nil {
		s.metaByID = make(map[string]metadata.Metadata)
	}
	if mf.DefaultVectorSize > 0 {
		s.defaultDim = mf.DefaultVectorSize
	}
	s.idCounter = mf.IDCounter
	s.mu.Unlock()

	s.emitter.Emit(events.DBLoaded, map[string]any{"count": len(byKey)})
	return nil
}
