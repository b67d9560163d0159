package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
)

type AuditService struct {
	logChan chan *model.AuditLog
	logFile *os.File
	buffer  *ring[*model.AuditLog]
	repo    AuditRepo
	done    chan struct{}
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error)
}

// NewAuditService starts the audit consumer. logDir may be empty to skip the
// JSONL file; repo may be nil to keep only the in-memory ring.
func NewAuditService(logDir string, repo AuditRepo, bufferSize int) (*AuditService, error) {
	var f *os.File
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		filename := filepath.Join(logDir, "audit-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
		var err error
		f, err = os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	svc := &AuditService{
		logChan: make(chan *model.AuditLog, bufferSize),
		logFile: f,
		buffer:  newRing[*model.AuditLog](bufferSize),
		repo:    repo,
		done:    make(chan struct{}),
	}
	go svc.processLogs()
	return svc, nil
}

// Log never blocks the request path; a full queue drops the entry.
func (s *AuditService) Log(entry *model.AuditLog) {
	s.buffer.Add(entry)
	select {
	case s.logChan <- entry:
	default:
		logger.Warn("audit log buffer full, dropping entry", "id", entry.ID)
	}
}

func (s *AuditService) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, filter)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "audit repo list failed, serving from memory")
	}
	return s.buffer.List(filter.Limit, filter.Matches), nil
}

func (s *AuditService) processLogs() {
	defer close(s.done)
	var encoder *json.Encoder
	if s.logFile != nil {
		encoder = json.NewEncoder(s.logFile)
	}
	for entry := range s.logChan {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), entry); err != nil {
				logger.Error("failed to write audit log", "error", err)
			}
		}
		if encoder != nil {
			if err := encoder.Encode(entry); err != nil {
				logger.Error("failed to append audit file", "error", err)
			}
		}
	}
}

// Close drains pending entries and closes the file.
func (s *AuditService) Close() {
	close(s.logChan)
	<-s.done
	if s.logFile != nil {
		s.logFile.Close()
	}
}

// ring keeps the newest max items.
type ring[T any] struct {
	mu        sync.Mutex
	maxSize   int
	records   []T
	nextIndex int
}

func newRing[T any](maxSize int) *ring[T] {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ring[T]{
		maxSize: maxSize,
		records: make([]T, 0, maxSize),
	}
}

func (b *ring[T]) Add(entry T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, entry)
		return
	}
	b.records[b.nextIndex] = entry
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns up to limit matching items, newest first.
func (b *ring[T]) List(limit int, match func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]T, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		entry := b.records[idx]
		if match != nil && !match(entry) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results
}
