package sheets

import (
	"context"
	"strings"
	"sync"
)

// MemoryWriter keeps written ranges in memory, keyed by sheet name.
type MemoryWriter struct {
	mu     sync.Mutex
	sheets map[string][][]any
	writes int
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{sheets: make(map[string][][]any)}
}

func sheetName(rng string) string {
	name, _, _ := strings.Cut(rng, "!")
	return name
}

func (m *MemoryWriter) Clear(_ context.Context, rng string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sheets, sheetName(rng))
	return nil
}

func (m *MemoryWriter) Update(_ context.Context, rng string, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]any, len(rows))
	for i, r := range rows {
		cp[i] = append([]any(nil), r...)
	}
	m.sheets[sheetName(rng)] = cp
	m.writes++
	return nil
}

// Sheet returns the rows last written to name.
func (m *MemoryWriter) Sheet(name string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sheets[name]
}

// Writes counts Update calls.
func (m *MemoryWriter) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

var _ ValuesWriter = (*MemoryWriter)(nil)
