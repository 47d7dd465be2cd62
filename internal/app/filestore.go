package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/lanhub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrStoreFull    = errors.New("file store full")
	ErrFileTooLarge = errors.New("file too large")
	ErrSizeMismatch = errors.New("declared size does not match data")
)

// FileStore is an append-only in-memory table of uploads.
type FileStore struct {
	mu       sync.RWMutex
	files    map[domain.FileID]*domain.FileRecord
	order    []domain.FileID
	used     int64
	maxFile  int64
	maxTotal int64
	now      func() time.Time
}

// NewFileStore bounds single uploads by maxFile and the whole store by maxTotal.
// Non-positive limits disable the check.
func NewFileStore(maxFile, maxTotal int64) *FileStore {
	return &FileStore{
		files:    make(map[domain.FileID]*domain.FileRecord),
		maxFile:  maxFile,
		maxTotal: maxTotal,
		now:      time.Now,
	}
}

// Put stores a copy of data. The record is invisible to Get and List until Put returns.
func (s *FileStore) Put(name string, size int64, data []byte, uploaderID, uploaderName string) (domain.FileMeta, error) {
	if size != int64(len(data)) {
		return domain.FileMeta{}, fmt.Errorf("%w: declared %d, got %d", ErrSizeMismatch, size, len(data))
	}
	if s.maxFile > 0 && size > s.maxFile {
		return domain.FileMeta{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, size, s.maxFile)
	}

	rec := &domain.FileRecord{
		FileMeta: domain.FileMeta{
			ID:           domain.FileID(uuid.NewString()),
			Name:         name,
			Size:         size,
			UploaderID:   uploaderID,
			UploaderName: uploaderName,
			UploadedAt:   s.now(),
		},
		Data: append([]byte(nil), data...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxTotal > 0 && s.used+size > s.maxTotal {
		return domain.FileMeta{}, fmt.Errorf("%w: %d of %d bytes used", ErrStoreFull, s.used, s.maxTotal)
	}
	s.files[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	s.used += size
	log.Info().Str("module", "app.files").Str("file_id", string(rec.ID)).Str("name", name).Int64("size", size).Msg("file stored")
	return rec.FileMeta, nil
}

// Get returns the stored record. Data must be treated as read-only.
func (s *FileStore) Get(id domain.FileID) (domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[id]
	if !ok {
		return domain.FileRecord{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	return *rec, nil
}

// List returns metadata in upload order.
func (s *FileStore) List() []domain.FileMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FileMeta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id].FileMeta)
	}
	return out
}

// Stats reports file count and bytes held.
func (s *FileStore) Stats() (count int, bytes int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), s.used
}
