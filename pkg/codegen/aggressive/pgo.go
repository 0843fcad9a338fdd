package aggressive

import (
	"encoding/binary"

	"github.com/minz/wasmpipe/pkg/ir"
)

// edgeProfile is a minimal per-function, per-block execution-count table:
// spec.md §4.6 "Profile-guided optimisation" says the backend "uses per-edge
// frequencies to order blocks (takes over the streaming-layout role)". The
// wire format is intentionally simple since no profiling tool in the corpus
// produces one for this IR: a flat sequence of (function name length,
// name bytes, block count, then one big-endian uint64 count per block in
// declaration order).
type edgeProfile struct {
	counts map[string][]uint64
}

func parseProfile(data []byte) *edgeProfile {
	p := &edgeProfile{counts: make(map[string][]uint64)}
	off := 0
	for off < len(data) {
		if off+2 > len(data) {
			break
		}
		nameLen := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if off+nameLen > len(data) {
			break
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		if off+4 > len(data) {
			break
		}
		blockCount := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		counts := make([]uint64, blockCount)
		for i := 0; i < blockCount; i++ {
			if off+8 > len(data) {
				break
			}
			counts[i] = binary.BigEndian.Uint64(data[off:])
			off += 8
		}
		p.counts[name] = counts
	}
	return p
}

// reorderByProfile lays out fn.Blocks by descending execution frequency
// instead of optimizer.StreamingLayout's DFS order, preserving BlockIds as
// identities (spec.md's "BlockIds are identities, not positions" invariant
// applies here exactly as it does to the plain streaming-layout pass).
func reorderByProfile(fn *ir.Function, counts []uint64) bool {
	if len(counts) != len(fn.Blocks) {
		return false
	}
	type weighted struct {
		block ir.BasicBlock
		count uint64
	}
	entries := make([]weighted, len(fn.Blocks))
	for i, b := range fn.Blocks {
		entries[i] = weighted{block: b, count: counts[i]}
	}
	// Stable insertion sort by descending count: block lists here are small
	// (a few dozen blocks at most) and stability keeps ties in their
	// original relative order, matching sort.SliceStable without pulling in
	// a comparator-based sort for a list this size.
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].count < entries[j].count {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
	changed := false
	for i, e := range entries {
		if fn.Blocks[i].ID != e.block.ID {
			changed = true
		}
		fn.Blocks[i] = e.block
	}
	if changed {
		fn.Reindex()
	}
	return changed
}
