// Package btree implements the persistent per-column B+-tree index of
// spec.md §4.4: an ordered map from a typed Value to one or more RecordIDs,
// serialized one node per page, with leaf chaining for range scans.
//
// Grounded on the teacher's storage_engine/access/indexfile_manager/bplustree
// package: the split/promote algorithm (SplitLeaf, splitInternal,
// insertIntoParent, createNewRoot), the fetch/write-through-buffer-pool
// node lifecycle (newNode/fetchNode/writeNode), and the metadata-page root
// pointer (NewBPlusTree's page-0 reservation) all follow that package's
// shape. Two deliberate departures, both called out in spec.md §9:
//   - Nodes carry no persisted parent pointer; the layout in §4.4 has none,
//     and DESIGN NOTES §9 recommends an explicit path stack during descent
//     instead, which is what Insert below does.
//   - Duplicate keys are never coalesced into one leaf slot: every insert
//     adds a new (key, record) pair at its lower-bound position, matching
//     §4.4 step 3, instead of the teacher's update-in-place-on-match.
package btree

import (
	"encoding/binary"
	"fmt"

	"colstore/internal/coltype"
	"colstore/internal/page"
)

// RecordID is the dense ordinal a Column assigns to an appended value.
type RecordID uint64

// Order is BTREE_ORDER; MaxKeys is the absolute upper bound on keys held
// by any node of any key type (spec.md §3, §6).
const (
	Order   = 128
	MaxKeys = Order - 1
)

// nodeHeaderSize is is_leaf(1) + data_type(1) + key_count(2).
const nodeHeaderSize = 4

// maxKeysFor returns the largest key count a node of this DataType can
// serialize within one page, capped at MaxKeys. Narrow types (ints,
// floats, bool) reach the full MaxKeys; STRING's 256-byte cells reduce it,
// which is spec.md §4.4's "reduce BTREE_ORDER for wide key types" option.
// Leaf and internal layouts happen to yield the same bound: a leaf node
// spends 8 bytes per key on RecordID plus 8 once for next_leaf; an
// internal node spends 8 bytes per key on one extra child pointer.
func maxKeysFor(t coltype.DataType) int {
	perKey := t.CellSize() + 8
	budget := page.Size - nodeHeaderSize - 8
	n := budget / perKey
	if n > MaxKeys {
		n = MaxKeys
	}
	if n < 1 {
		n = 1
	}
	return n
}

// node is the in-memory form of one page of the index file.
type node struct {
	id       page.ID
	isLeaf   bool
	dataType coltype.DataType

	keys []coltype.Value

	// leaf-only
	records  []RecordID
	nextLeaf page.ID

	// internal-only
	children []page.ID
}

// serialize writes n into dst (exactly page.Size bytes), per spec.md
// §4.4's node layout. It returns an error if the encoding would not fit;
// Index.saveNode reports that as dberr.ErrNodeTooLarge and leaves the
// node's page unchanged.
func serializeNode(n *node, dst []byte) error {
	for i := range dst {
		dst[i] = 0
	}
	if len(n.keys) > MaxKeys {
		return fmt.Errorf("btree: node has %d keys, max %d", len(n.keys), MaxKeys)
	}

	off := 0
	if n.isLeaf {
		dst[off] = 1
	} else {
		dst[off] = 0
	}
	off++
	dst[off] = byte(n.dataType)
	off++
	binary.LittleEndian.PutUint16(dst[off:], uint16(len(n.keys)))
	off += 2

	cellSize := n.dataType.CellSize()
	for _, k := range n.keys {
		if off+cellSize > page.Size {
			return fmt.Errorf("btree: serialized node exceeds page size while writing keys")
		}
		if err := coltype.EncodeCell(k, dst[off:off+cellSize]); err != nil {
			return err
		}
		off += cellSize
	}

	if n.isLeaf {
		for _, r := range n.records {
			if off+8 > page.Size {
				return fmt.Errorf("btree: serialized node exceeds page size while writing records")
			}
			binary.LittleEndian.PutUint64(dst[off:], uint64(r))
			off += 8
		}
		if off+8 > page.Size {
			return fmt.Errorf("btree: serialized node exceeds page size while writing next_leaf")
		}
		binary.LittleEndian.PutUint64(dst[off:], uint64(n.nextLeaf))
		off += 8
	} else {
		for _, c := range n.children {
			if off+8 > page.Size {
				return fmt.Errorf("btree: serialized node exceeds page size while writing children")
			}
			binary.LittleEndian.PutUint64(dst[off:], uint64(c))
			off += 8
		}
	}
	return nil
}

// deserializeNode parses src (page.Size bytes) into a node. An all-zero
// page is an uninitialized node and yields an empty leaf of dataType t.
// Structural inconsistencies (key_count too large, an internal node whose
// children count disagrees with key_count+1) are repaired conservatively
// by truncation; repaired reports whether a repair was applied so the
// caller can emit the §7 "index invariant repaired" warning.
func deserializeNode(id page.ID, t coltype.DataType, src []byte) (n *node, repaired bool, err error) {
	if isAllZero(src) {
		return &node{id: id, isLeaf: true, dataType: t}, false, nil
	}

	off := 0
	isLeaf := src[off] == 1
	off++
	dataType := coltype.DataType(src[off])
	off++
	keyCount := int(binary.LittleEndian.Uint16(src[off:]))
	off += 2

	if keyCount > MaxKeys {
		keyCount = MaxKeys
		repaired = true
	}

	cellSize := dataType.CellSize()
	keys := make([]coltype.Value, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		if off+cellSize > page.Size {
			// Truncate to what actually fits; conservative repair.
			repaired = true
			break
		}
		v, derr := coltype.DecodeCell(dataType, src[off:off+cellSize])
		if derr != nil {
			return nil, false, derr
		}
		keys = append(keys, v)
		off += cellSize
	}

	n = &node{id: id, isLeaf: isLeaf, dataType: dataType, keys: keys}

	if isLeaf {
		records := make([]RecordID, 0, len(keys))
		for i := 0; i < len(keys); i++ {
			if off+8 > page.Size {
				repaired = true
				break
			}
			records = append(records, RecordID(binary.LittleEndian.Uint64(src[off:])))
			off += 8
		}
		if len(records) != len(keys) {
			repaired = true
			if len(records) < len(keys) {
				n.keys = n.keys[:len(records)]
			} else {
				records = records[:len(keys)]
			}
		}
		n.records = records
		if off+8 <= page.Size {
			n.nextLeaf = page.ID(binary.LittleEndian.Uint64(src[off:]))
		}
	} else {
		wantChildren := len(keys) + 1
		children := make([]page.ID, 0, wantChildren)
		for i := 0; i < wantChildren; i++ {
			if off+8 > page.Size {
				repaired = true
				break
			}
			children = append(children, page.ID(binary.LittleEndian.Uint64(src[off:])))
			off += 8
		}
		if len(children) != wantChildren {
			repaired = true
			switch {
			case len(children) < wantChildren && len(children) >= 1:
				// Truncate keys so children == keys+1 stays consistent.
				n.keys = n.keys[:len(children)-1]
			case len(children) == 0:
				n.keys = nil
			}
		}
		n.children = children
	}

	return n, repaired, nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// lowerBound returns the first index i in keys such that keys[i] >= target,
// or len(keys) if no such index exists.
func lowerBound(keys []coltype.Value, target coltype.Value) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if keys[mid].Compare(target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertValueAt(s []coltype.Value, i int, v coltype.Value) []coltype.Value {
	s = append(s, coltype.Value{})
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertRecordAt(s []RecordID, i int, v RecordID) []RecordID {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func insertPageIDAt(s []page.ID, i int, v page.ID) []page.ID {
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
