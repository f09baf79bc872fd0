package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// catalogSnapshotWriter persists the advertised catalog whenever it
// changes. A zero path disables it.
type catalogSnapshotWriter struct {
	home    string
	path    string
	history int
	logger  *zap.Logger

	mu sync.Mutex
}

func newCatalogSnapshotWriter(path string, history int, logger *zap.Logger) *catalogSnapshotWriter {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	home, resolved := resolveStatePath(path)
	return &catalogSnapshotWriter{home: home, path: resolved, history: history, logger: logger}
}

func (w *catalogSnapshotWriter) Write(ep Endpoint, tools []proxyTool, stamp time.Time) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := buildCatalogSnapshot(ep, tools, stamp)
	written, err := writeSnapshotWithHistory(w.home, w.path, snapshot, w.history, stamp)
	if err != nil {
		w.logger.Warn("failed to persist catalog snapshot", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Debug("persisted catalog snapshot", zap.String("path", written), zap.Int("tools", len(tools)))
}

func buildCatalogSnapshot(ep Endpoint, tools []proxyTool, generatedAt time.Time) map[string]any {
	records := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		record := toolRecord(t.Tool)
		if hash := hashSchema(record); hash != "" {
			record["schemaHash"] = hash
		}
		records = append(records, record)
	}
	return map[string]any{
		"generatedAt": generatedAt.UTC().Format(time.RFC3339Nano),
		"ideEndpoint": ep.String(),
		"tools":       records,
	}
}

// loadCatalogSnapshot reads back the tool names of a persisted snapshot.
func loadCatalogSnapshot(path string) (time.Time, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, nil, err
	}
	var raw struct {
		GeneratedAt string `json:"generatedAt"`
		Tools       []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return time.Time{}, nil, fmt.Errorf("parse snapshot: %w", err)
	}
	var generated time.Time
	if raw.GeneratedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw.GeneratedAt); err == nil {
			generated = parsed
		}
	}
	names := make([]string, 0, len(raw.Tools))
	for _, t := range raw.Tools {
		if name := strings.TrimSpace(t.Name); name != "" {
			names = append(names, name)
		}
	}
	return generated, names, nil
}

func writeSnapshotWithHistory(home, basePath string, payload any, historyCount int, stamp time.Time) (string, error) {
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	resolvedBase, err := mkdirAllUnder(home, basePath)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')
	if err := writeAtomic(resolvedBase, data); err != nil {
		return "", err
	}
	if historyCount > 0 {
		ts := stamp.UTC().Format("20060102-150405.000")
		stamped := fmt.Sprintf("%s.%s.json", strings.TrimSuffix(resolvedBase, ".json"), ts)
		if stampedPath, err := mkdirAllUnder(home, stamped); err == nil {
			_ = writeAtomic(stampedPath, data)
		}
		_ = pruneHistory(resolvedBase, historyCount)
	}
	return resolvedBase, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func pruneHistory(basePath string, keep int) error {
	if keep < 0 {
		return nil
	}
	dir := filepath.Dir(basePath)
	prefix := strings.TrimSuffix(filepath.Base(basePath), ".json") + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	history := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		full := filepath.Join(dir, name)
		if full == basePath {
			continue
		}
		history = append(history, full)
	}
	if len(history) <= keep {
		return nil
	}
	sort.Strings(history)
	for i := 0; i < len(history)-keep; i++ {
		_ = os.Remove(history[i])
	}
	return nil
}

func hashSchema(record map[string]any) string {
	data, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
