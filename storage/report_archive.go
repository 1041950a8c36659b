package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"
	"time"
)

type ReportKind string

const (
	ReportHealth ReportKind = "health"
	ReportRepair ReportKind = "repair"
)

// ReportArchive keeps a copy of every health and repair report.
type ReportArchive interface {
	Archive(ctx context.Context, kind ReportKind, runID string, at time.Time, report interface{}) (string, error)
	Load(ctx context.Context, key string, into interface{}) error
}

// ReportKey lays reports out as reports/<kind>/<yyyy>/<mm>/<dd>/<run-id>.json.
func ReportKey(kind ReportKind, runID string, at time.Time) string {
	at = at.UTC()
	return path.Join("reports", string(kind), at.Format("2006"), at.Format("01"), at.Format("02"), runID+".json")
}

type objectReportArchive struct {
	store ObjectStore
}

func NewReportArchive(store ObjectStore) ReportArchive {
	return &objectReportArchive{store: store}
}

func (a *objectReportArchive) Archive(ctx context.Context, kind ReportKind, runID string, at time.Time, report interface{}) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode %s report: %w", kind, err)
	}
	key := ReportKey(kind, runID, at)
	if _, err := a.store.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return "", err
	}
	return key, nil
}

func (a *objectReportArchive) Load(ctx context.Context, key string, into interface{}) error {
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(into); err != nil {
		return fmt.Errorf("decode report %s: %w", key, err)
	}
	return nil
}

// MemoryObjectStore keeps objects in process. It backs the archive when no bucket is configured.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (m *MemoryObjectStore) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return &UploadResult{Key: key}, nil
}

func (m *MemoryObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	body, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *MemoryObjectStore) GetPublicURL(key string) string { return "" }

// Keys lists stored keys, unordered.
func (m *MemoryObjectStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
