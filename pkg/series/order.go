package series

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"dicomprojector/internal/models"
)

// extractNumber returns the value of the first run of digits in the base name
// of the handle. ok is false for names without digits.
func extractNumber(h Handle) (num int64, ok bool) {
	base := filepath.Base(string(h))
	start := strings.IndexFunc(base, isDigit)
	if start < 0 {
		return 0, false
	}
	end := strings.IndexFunc(base[start:], func(r rune) bool { return !isDigit(r) })
	digits := base[start:]
	if end >= 0 {
		digits = digits[:end]
	}
	num, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// orderByName sorts handles with a numeric part by that number first,
// followed by the remaining handles in lexical order.
func orderByName(handles []Handle) []Handle {
	type numbered struct {
		num int64
		h   Handle
	}
	var numeric []numbered
	var other []Handle
	for _, h := range handles {
		if n, ok := extractNumber(h); ok {
			numeric = append(numeric, numbered{n, h})
		} else {
			other = append(other, h)
		}
	}
	sort.SliceStable(numeric, func(i, j int) bool {
		if numeric[i].num != numeric[j].num {
			return numeric[i].num < numeric[j].num
		}
		return numeric[i].h < numeric[j].h
	})
	sort.Slice(other, func(i, j int) bool { return other[i] < other[j] })

	ordered := make([]Handle, 0, len(handles))
	for _, n := range numeric {
		ordered = append(ordered, n.h)
	}
	return append(ordered, other...)
}

// identity is the ordering key read from every slice when reordering
type identity struct {
	handle   Handle
	study    string
	series   int
	instance int
}

// orderByInstance reads every slice and sorts by study, series and instance
// number. Each loaded slice is passed to visit before being discarded.
func orderByInstance(src Source, handles []Handle, visit func(*models.Slice, Handle) error) ([]Handle, error) {
	ids := make([]identity, 0, len(handles))
	for _, h := range handles {
		s, err := src.Load(h)
		if err != nil {
			return nil, fmt.Errorf("failed to load slice %s: %w", h, err)
		}
		if err := visit(s, h); err != nil {
			return nil, err
		}
		ids = append(ids, identity{h, s.StudyID, s.SeriesID, s.InstanceNumber})
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.study != b.study {
			return a.study < b.study
		}
		if a.series != b.series {
			return a.series < b.series
		}
		return a.instance < b.instance
	})
	ordered := make([]Handle, len(ids))
	for i, id := range ids {
		ordered[i] = id.handle
	}
	return ordered, nil
}
