// Package batch groups the rows of batched link sub-ops by the base rows
// that own them.
package batch

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// GroupByKey groups values by key, keeping their relative order.
//
//	rows, _ := fetchCourses(ctx, studentIDs)
//	grouped := batch.GroupByKey(rows, func(r courseRow) int64 { return r.owner })
//	// grouped[studentID] holds the courses of the student.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys returns the groups in the order of keys. Keys without
// a group get an empty, non-nil slice.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		if g, ok := groups[key]; ok {
			result[i] = g
		} else {
			result[i] = []V{}
		}
	}
	return result
}

// Unique returns the keys without duplicates, in first-seen order.
func Unique[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Chunk splits keys into chunks of at most size keys, to keep IN lists
// under the bound parameter limit of the database. A non-positive size
// returns a single chunk.
func Chunk[K any](keys []K, size int) [][]K {
	if len(keys) == 0 {
		return nil
	}
	if size <= 0 || len(keys) <= size {
		return [][]K{keys}
	}
	chunks := make([][]K, 0, (len(keys)+size-1)/size)
	for size < len(keys) {
		keys, chunks = keys[size:], append(chunks, keys[:size:size])
	}
	return append(chunks, keys)
}
