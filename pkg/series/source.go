package series

import (
	"fmt"
	"sort"

	"dicomprojector/internal/models"
)

// Handle identifies a slice within a Source. For file-backed sources it is the file path.
type Handle string

// Source provides the slices of a series. Implementations must return a freshly
// loaded slice on every Load call; the series never keeps parsed slices around.
type Source interface {
	// List returns the handles of every candidate slice, in no particular order
	List() ([]Handle, error)

	// Load reads the slice identified by the handle
	Load(h Handle) (*models.Slice, error)
}

// MemorySource serves already decoded slices. Load returns copies so callers
// are free to modify what they receive.
type MemorySource struct {
	slices map[Handle]*models.Slice
}

// NewMemorySource creates a source from a map of handle to slice
func NewMemorySource(slices map[Handle]*models.Slice) *MemorySource {
	return &MemorySource{slices: slices}
}

// List implements Source
func (m *MemorySource) List() ([]Handle, error) {
	handles := make([]Handle, 0, len(m.slices))
	for h := range m.slices {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles, nil
}

// Load implements Source
func (m *MemorySource) Load(h Handle) (*models.Slice, error) {
	s, ok := m.slices[h]
	if !ok {
		return nil, fmt.Errorf("slice %q not found", h)
	}
	c := *s
	c.Pixels = append([]int32(nil), s.Pixels...)
	return &c, nil
}
