package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// DepthSelector selects a depth layer by index, or the bottom-most valid
// value of each water column.
type DepthSelector struct {
	Index  int
	Bottom bool
}

// BottomDepth selects the deepest non-missing value per column.
var BottomDepth = DepthSelector{Bottom: true}

// DepthIndex selects layer i.
func DepthIndex(i int) DepthSelector {
	return DepthSelector{Index: i}
}

// ParseDepth parses "bottom" or a non-negative layer index.
func ParseDepth(s string) (DepthSelector, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "bottom") {
		return BottomDepth, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return DepthSelector{}, fmt.Errorf("%w: depth must be a layer index or \"bottom\", got %q", ErrInvalidQuery, s)
	}
	return DepthIndex(i), nil
}

// String returns "bottom" or the layer index.
func (d DepthSelector) String() string {
	if d.Bottom {
		return "bottom"
	}
	return strconv.Itoa(d.Index)
}
