// Package duplicates partitions file records into candidate groups.
// Only groups with two or more members are ever returned: a file alone in
// its group cannot be a duplicate of anything.
package duplicates

import (
	"cmp"
	"slices"
	"strings"

	"dupaudit/pkg/collector"
)

// Key identifies a candidate group after a hashing stage.
type Key struct {
	Size int64
	Hash string
}

// GroupBySize partitions files by exact size and discards singleton groups.
// Groups are ordered by size and members by path, so the result does not
// depend on input order.
func GroupBySize(files []collector.FileRecord) [][]collector.FileRecord {
	return Regroup(files, func(f collector.FileRecord) int64 { return f.Size }, cmp.Compare[int64])
}

// GroupByHash partitions files by (size, hash) using hashes looked up by path.
// Files without an entry in hashes are dropped.
func GroupByHash(files []collector.FileRecord, hashes map[string]string) [][]collector.FileRecord {
	known := make([]collector.FileRecord, 0, len(files))
	for _, f := range files {
		if _, ok := hashes[f.Path]; ok {
			known = append(known, f)
		}
	}

	return Regroup(known, func(f collector.FileRecord) Key {
		return Key{Size: f.Size, Hash: hashes[f.Path]}
	}, compareKeys)
}

// Regroup partitions files by key, drops groups with fewer than two members,
// sorts members by path and orders groups with compareKey.
func Regroup[K comparable](files []collector.FileRecord, key func(collector.FileRecord) K, compareKey func(a, b K) int) [][]collector.FileRecord {
	groups := make(map[K][]collector.FileRecord)
	for _, f := range files {
		k := key(f)
		groups[k] = append(groups[k], f)
	}

	keys := make([]K, 0, len(groups))
	for k, group := range groups {
		if len(group) < 2 {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKey)

	result := make([][]collector.FileRecord, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		SortByPath(group)
		result = append(result, group)
	}

	return result
}

// SortByPath sorts files by path in place.
func SortByPath(files []collector.FileRecord) {
	slices.SortFunc(files, func(a, b collector.FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
}

// Flatten concatenates groups into one slice.
func Flatten(groups [][]collector.FileRecord) []collector.FileRecord {
	var n int
	for _, g := range groups {
		n += len(g)
	}

	out := make([]collector.FileRecord, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Size, b.Size); c != 0 {
		return c
	}
	return strings.Compare(a.Hash, b.Hash)
}
