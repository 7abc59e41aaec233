// Package cache skips redundant phase work via fingerprint records. A phase
// is skipped only when its fingerprint (phase name + relevant config subset +
// input hash) matches the last completed run and the referenced output
// artifact is still on disk.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/artifact"
	"github.com/stylescan/stylescan/internal/model"
)

// Record is the completion record stored for one phase.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	CompletedAt time.Time `json:"completed_at"`
	OutputRef   string    `json:"output_ref"`
}

// Manager reads and writes the fingerprint record file. Reads and writes are
// serialized through an in-process mutex; the record file itself is written
// atomically by the artifact store.
type Manager struct {
	artifacts *artifact.Store
	force     bool
	mu        sync.Mutex
}

// NewManager creates a cache manager. With force set, every lookup misses.
func NewManager(st *artifact.Store, force bool) *Manager {
	return &Manager{artifacts: st, force: force}
}

// Fingerprint hashes the phase name, the config subset relevant to the phase,
// and the hash of the phase's input.
func Fingerprint(phase model.Phase, configSubset any, inputHash string) (string, error) {
	cfgJSON, err := json.Marshal(configSubset)
	if err != nil {
		return "", eris.Wrap(err, "cache: marshal config subset")
	}
	h := sha256.New()
	h.Write([]byte(phase))
	h.Write([]byte{0})
	h.Write(cfgJSON)
	h.Write([]byte{0})
	h.Write([]byte(inputHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// InputHash hashes a set of input strings order-independently (the path set
// for deepen/metadata may arrive in any order).
func InputHash(items []string) string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldSkip reports whether the phase can be skipped, and if so, the output
// reference to load instead of running it. A record whose artifact vanished
// from disk is treated as a miss.
func (m *Manager) ShouldSkip(phase model.Phase, fingerprint string) (bool, string) {
	if m.force {
		return false, ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.load()
	rec, ok := records[string(phase)]
	if !ok || rec.Fingerprint != fingerprint {
		return false, ""
	}
	if !m.artifacts.Exists(rec.OutputRef) {
		zap.L().Debug("cache: record present but artifact missing, treating as miss",
			zap.String("phase", string(phase)),
			zap.String("output_ref", rec.OutputRef),
		)
		return false, ""
	}

	zap.L().Info("cache hit, skipping phase",
		zap.String("phase", string(phase)),
		zap.Time("completed_at", rec.CompletedAt),
	)
	return true, rec.OutputRef
}

// RecordCompletion overwrites the phase's record after a successful run.
func (m *Manager) RecordCompletion(phase model.Phase, fingerprint, outputRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.load()
	records[string(phase)] = Record{
		Fingerprint: fingerprint,
		CompletedAt: time.Now().UTC(),
		OutputRef:   outputRef,
	}
	return m.artifacts.WriteJSON(artifact.CacheRecordFile, records)
}

// load reads the record file; a missing or corrupt file yields an empty map.
func (m *Manager) load() map[string]Record {
	records := make(map[string]Record)
	if !m.artifacts.Exists(artifact.CacheRecordFile) {
		return records
	}
	if err := m.artifacts.ReadJSON(artifact.CacheRecordFile, &records); err != nil {
		zap.L().Warn("cache: unreadable record file, starting fresh", zap.Error(err))
		return make(map[string]Record)
	}
	return records
}
