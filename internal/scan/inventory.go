package scan

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type SortKey string

const (
	SortByName      SortKey = "name"
	SortBySize      SortKey = "size"
	SortByFileCount SortKey = "file_count"
	SortByModFolder SortKey = "mod_folder"
)

func ParseSortKey(value string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(value))); key {
	case SortByName, SortBySize, SortByFileCount, SortByModFolder:
		return key, nil
	case "":
		return SortBySize, nil
	default:
		return "", fmt.Errorf("unknown sort key: %s", value)
	}
}

// Inventory is an ordered list of scanned archives. It is not safe for
// concurrent use.
type Inventory struct {
	entries []Entry
}

func NewInventory(entries []Entry) *Inventory {
	return &Inventory{entries: entries}
}

func (i *Inventory) Len() int {
	return len(i.entries)
}

func (i *Inventory) Entries() []Entry {
	return slices.Clone(i.entries)
}

func (i *Inventory) Get(index int) (Entry, bool) {
	if index < 0 || index >= len(i.entries) {
		return Entry{}, false
	}
	return i.entries[index], true
}

func (i *Inventory) Find(id string) (Entry, bool) {
	for _, entry := range i.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

func (i *Inventory) Remove(index int) (Entry, bool) {
	entry, ok := i.Get(index)
	if !ok {
		return Entry{}, false
	}
	i.entries = slices.Delete(i.entries, index, index+1)
	return entry, true
}

// Sort is stable, so sorting by one key then another keeps the first order
// among ties of the second.
func (i *Inventory) Sort(key SortKey, descending bool) {
	compare := comparator(key)
	if descending {
		asc := compare
		compare = func(a, b Entry) int { return asc(b, a) }
	}
	slices.SortStableFunc(i.entries, compare)
}

func comparator(key SortKey) func(a, b Entry) int {
	switch key {
	case SortByName:
		return func(a, b Entry) int { return cmp.Compare(a.FileName, b.FileName) }
	case SortByFileCount:
		return func(a, b Entry) int { return cmp.Compare(a.FileCount, b.FileCount) }
	case SortByModFolder:
		return func(a, b Entry) int { return cmp.Compare(a.ModFolder, b.ModFolder) }
	default:
		return func(a, b Entry) int { return cmp.Compare(a.FileSize, b.FileSize) }
	}
}

func (i *Inventory) TotalSize() int64 {
	var total int64
	for _, entry := range i.entries {
		total += entry.FileSize
	}
	return total
}

func (i *Inventory) TotalFileCount() uint64 {
	var total uint64
	for _, entry := range i.entries {
		total += uint64(entry.FileCount)
	}
	return total
}

func (i *Inventory) BadCount() int {
	return len(i.BadIndices())
}

func (i *Inventory) BadIndices() []int {
	var indices []int
	for index, entry := range i.entries {
		if entry.Bad {
			indices = append(indices, index)
		}
	}
	return indices
}

// FilterBad drops every bad entry and returns how many were removed.
func (i *Inventory) FilterBad() int {
	before := len(i.entries)
	i.entries = slices.DeleteFunc(i.entries, func(entry Entry) bool { return entry.Bad })
	return before - len(i.entries)
}

func (i *Inventory) Paths() []string {
	paths := make([]string, len(i.entries))
	for index, entry := range i.entries {
		paths[index] = entry.Path
	}
	return paths
}

// FilterBySize drops every entry larger than limit and returns how many
// were removed.
func (i *Inventory) FilterBySize(limit int64) int {
	before := len(i.entries)
	i.entries = slices.DeleteFunc(i.entries, func(entry Entry) bool { return entry.FileSize > limit })
	return before - len(i.entries)
}

// AutoThreshold returns the size of the keep-th largest entry. It reports
// false when the inventory holds keep entries or fewer.
func (i *Inventory) AutoThreshold(keep int) (int64, bool) {
	if keep <= 0 || len(i.entries) <= keep {
		return 0, false
	}
	sizes := make([]int64, len(i.entries))
	for index, entry := range i.entries {
		sizes[index] = entry.FileSize
	}
	slices.SortFunc(sizes, func(a, b int64) int { return cmp.Compare(b, a) })
	return sizes[keep-1], true
}
