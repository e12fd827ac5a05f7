package projection

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the views a Selector produces
type Kind int

const (
	// Single is the plane at a given index
	Single Kind = iota
	// Middle is the plane at half the axis extent
	Middle
	// Center is the plane halfway between the first and last content-bearing planes
	Center
	// Contents are all the content-bearing planes
	Contents
	// All are all the planes of the axis
	All
	// MIP is the maximum intensity projection along the axis
	MIP
	// AAP is the accumulated attenuation projection along the axis
	AAP
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Middle:
		return "middle"
	case Center:
		return "center"
	case Contents:
		return "contents"
	case All:
		return "all"
	case MIP:
		return "mip"
	case AAP:
		return "aap"
	}
	return "unknown"
}

// Aggregate reports whether the kind combines every plane into one view
func (k Kind) Aggregate() bool {
	return k == MIP || k == AAP
}

// Selector chooses views along one axis
type Selector struct {
	Kind Kind

	// Index is the plane of a Single selector
	Index int
}

// String returns the textual form accepted by ParseSelectors
func (s Selector) String() string {
	switch s.Kind {
	case Single:
		return strconv.Itoa(s.Index)
	case Middle:
		return "m"
	case Center:
		return "c"
	case All:
		return "*"
	}
	return s.Kind.String()
}

// ParseSelectors parses a comma separated list of selectors: a plane index,
// "m" (middle), "c" (content center), "*" (every plane), "contents",
// "mip" or "aap". An empty string selects nothing.
func ParseSelectors(text string) ([]Selector, error) {
	var selectors []Selector
	for _, field := range strings.Split(text, ",") {
		field = strings.ToLower(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		var s Selector
		switch field {
		case "m", "middle":
			s.Kind = Middle
		case "c", "center":
			s.Kind = Center
		case "*", "all":
			s.Kind = All
		case "contents":
			s.Kind = Contents
		case "mip":
			s.Kind = MIP
		case "aap":
			s.Kind = AAP
		default:
			index, err := strconv.Atoi(field)
			if err != nil || index < 0 {
				return nil, fmt.Errorf("invalid view selector %q", field)
			}
			s = Selector{Kind: Single, Index: index}
		}
		selectors = append(selectors, s)
	}
	return selectors, nil
}

// FormatSelectors is the inverse of ParseSelectors
func FormatSelectors(selectors []Selector) string {
	parts := make([]string, len(selectors))
	for i, s := range selectors {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
