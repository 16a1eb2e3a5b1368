package btree

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"colstore/internal/bufferpool"
	"colstore/internal/coltype"
	"colstore/internal/dberr"
	"colstore/internal/page"
)

// metaPageID is the reserved page holding the root pointer and the
// page-id high-water mark, per DESIGN NOTES §9 ("Avoid global mutable
// counters"): this state must be per-index and persisted, not a
// process-wide counter, so that reopening an index produces a consistent
// page-id namespace.
const metaPageID page.ID = 0

// Index is a persistent B+-tree over one column's values, addressed by
// (RecordID) leaves. It borrows pages through a shared bufferpool.Pool for
// residency and never talks to the disk manager directly.
type Index struct {
	file     string
	dataType coltype.DataType
	maxKeys  int
	pool     *bufferpool.Pool
	log      *logrus.Entry

	mu         sync.Mutex
	root       page.ID
	nextPageID int64 // next id Alloc will hand out
}

// Open loads (or initializes) the index stored in file, of the given
// DataType, backed by pool.
func Open(file string, dataType coltype.DataType, pool *bufferpool.Pool, log *logrus.Entry) (*Index, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	idx := &Index{
		file:     file,
		dataType: dataType,
		maxKeys:  maxKeysFor(dataType),
		pool:     pool,
		log:      log,
	}

	meta, err := pool.FetchPage(file, metaPageID)
	if err != nil {
		return nil, errors.Wrapf(err, "btree: open %q", file)
	}
	if isAllZero(meta.Data[:]) {
		idx.root = page.NoID
		idx.nextPageID = 1
		binary.LittleEndian.PutUint64(meta.Data[0:], uint64(idx.root))
		binary.LittleEndian.PutUint64(meta.Data[8:], uint64(idx.nextPageID))
		meta.Dirty = true
	} else {
		idx.root = page.ID(binary.LittleEndian.Uint64(meta.Data[0:]))
		idx.nextPageID = int64(binary.LittleEndian.Uint64(meta.Data[8:]))
	}
	return idx, nil
}

func (idx *Index) saveMeta() error {
	meta, err := idx.pool.FetchPage(idx.file, metaPageID)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(meta.Data[0:], uint64(idx.root))
	binary.LittleEndian.PutUint64(meta.Data[8:], uint64(idx.nextPageID))
	meta.Dirty = true
	return nil
}

// allocID reserves the next node page id. Callers hold idx.mu.
func (idx *Index) allocID() (page.ID, error) {
	if idx.nextPageID >= (1 << 62) {
		return 0, dberr.ErrPageIDExhausted
	}
	id := page.ID(idx.nextPageID)
	idx.nextPageID++
	return id, nil
}

func (idx *Index) loadNode(id page.ID) (*node, error) {
	pg, err := idx.pool.FetchPage(idx.file, id)
	if err != nil {
		return nil, errors.Wrapf(err, "btree: load node %d", id)
	}
	n, repaired, err := deserializeNode(id, idx.dataType, pg.Data[:])
	if err != nil {
		return nil, errors.Wrapf(err, "btree: parse node %d", id)
	}
	if repaired {
		idx.log.WithFields(logrus.Fields{"file": idx.file, "page_id": int64(id)}).
			Warn("index invariant repaired while loading node")
	}
	return n, nil
}

func (idx *Index) saveNode(n *node) error {
	pg, err := idx.pool.FetchPage(idx.file, n.id)
	if err != nil {
		return errors.Wrapf(err, "btree: fetch node %d for save", n.id)
	}
	var buf [page.Size]byte
	if err := serializeNode(n, buf[:]); err != nil {
		return errors.Wrapf(dberr.ErrNodeTooLarge, "%s", err.Error())
	}
	pg.Data = buf
	pg.Dirty = true
	return nil
}

func (idx *Index) newNode(isLeaf bool) (*node, error) {
	id, err := idx.allocID()
	if err != nil {
		return nil, err
	}
	if err := idx.saveMeta(); err != nil {
		return nil, err
	}
	n := &node{id: id, isLeaf: isLeaf, dataType: idx.dataType, nextLeaf: page.NoID}
	if err := idx.saveNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (idx *Index) checkType(v coltype.Value) error {
	if v.Type() != idx.dataType {
		return errors.Wrapf(dberr.ErrKeyTypeMismatch, "index over %s queried with %s", idx.dataType, v.Type())
	}
	return nil
}

// pathEntry records one step of a root-to-leaf descent: the internal node
// visited and the index of the child that was followed, so a split can be
// promoted into that exact slot without a persisted parent pointer
// (spec.md §9 "Recursion vs iteration").
type pathEntry struct {
	nodeID     page.ID
	childIndex int
}

// descend walks from the root to the leaf that would contain key,
// returning the leaf and the path of internal nodes above it.
func (idx *Index) descend(key coltype.Value) (leaf *node, path []pathEntry, err error) {
	id := idx.root
	for {
		n, err := idx.loadNode(id)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf {
			return n, path, nil
		}
		i := lowerBound(n.keys, key)
		if i >= len(n.children) {
			i = len(n.children) - 1
		}
		path = append(path, pathEntry{nodeID: id, childIndex: i})
		id = n.children[i]
	}
}

// Insert adds (key, rec) to the tree. Duplicates are permitted: the pair
// is always inserted fresh at key's lower-bound position (spec.md §4.4
// step 3), never merged into an existing slot.
func (idx *Index) Insert(key coltype.Value, rec RecordID) error {
	if err := idx.checkType(key); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.root == page.NoID {
		root, err := idx.newNode(true)
		if err != nil {
			return err
		}
		root.keys = []coltype.Value{key}
		root.records = []RecordID{rec}
		if err := idx.saveNode(root); err != nil {
			return err
		}
		idx.root = root.id
		return idx.saveMeta()
	}

	leaf, path, err := idx.descend(key)
	if err != nil {
		return err
	}

	pos := lowerBound(leaf.keys, key)
	leaf.keys = insertValueAt(leaf.keys, pos, key)
	leaf.records = insertRecordAt(leaf.records, pos, rec)

	if len(leaf.keys) <= idx.maxKeys {
		return idx.saveNode(leaf)
	}
	return idx.splitLeaf(leaf, path)
}

// splitLeaf implements spec.md §4.4 step 4.
func (idx *Index) splitLeaf(leaf *node, path []pathEntry) error {
	mid := len(leaf.keys) / 2

	right, err := idx.newNode(true)
	if err != nil {
		return err
	}
	right.keys = append([]coltype.Value(nil), leaf.keys[mid:]...)
	right.records = append([]RecordID(nil), leaf.records[mid:]...)
	right.nextLeaf = leaf.nextLeaf

	leaf.keys = leaf.keys[:mid]
	leaf.records = leaf.records[:mid]
	leaf.nextLeaf = right.id

	if err := idx.saveNode(leaf); err != nil {
		return err
	}
	if err := idx.saveNode(right); err != nil {
		return err
	}

	promoted := right.keys[0]
	return idx.propagateSplit(leaf.id, promoted, right.id, path)
}

// propagateSplit implements spec.md §4.4 steps 5-6: insert the promoted
// key and new child into the parent named by the top of path, splitting
// internal nodes (and the root) as needed.
func (idx *Index) propagateSplit(leftID page.ID, promoted coltype.Value, rightID page.ID, path []pathEntry) error {
	if len(path) == 0 {
		// leftID was the root: allocate a new internal root.
		root, err := idx.newNode(false)
		if err != nil {
			return err
		}
		root.keys = []coltype.Value{promoted}
		root.children = []page.ID{leftID, rightID}
		if err := idx.saveNode(root); err != nil {
			return err
		}
		idx.root = root.id
		return idx.saveMeta()
	}

	top := path[len(path)-1]
	parent, err := idx.loadNode(top.nodeID)
	if err != nil {
		return err
	}
	childIdx := top.childIndex

	parent.keys = insertValueAt(parent.keys, childIdx, promoted)
	parent.children = insertPageIDAt(parent.children, childIdx+1, rightID)

	if len(parent.keys) <= idx.maxKeys {
		return idx.saveNode(parent)
	}
	return idx.splitInternal(parent, path[:len(path)-1])
}

// splitInternal implements spec.md §4.4 step 5's internal-promotion split:
// keys[mid] is promoted (retained in neither child); the right sibling
// takes keys[mid+1:] and children[mid+1:].
func (idx *Index) splitInternal(n *node, path []pathEntry) error {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	right, err := idx.newNode(false)
	if err != nil {
		return err
	}
	right.keys = append([]coltype.Value(nil), n.keys[mid+1:]...)
	right.children = append([]page.ID(nil), n.children[mid+1:]...)

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	if err := idx.saveNode(n); err != nil {
		return err
	}
	if err := idx.saveNode(right); err != nil {
		return err
	}

	return idx.propagateSplit(n.id, promoted, right.id, path)
}

// FindEqual returns every RecordID whose indexed key equals value, walking
// the leaf chain to cover duplicates that span leaf boundaries (spec.md
// §4.4 "Equality search").
func (idx *Index) FindEqual(value coltype.Value) ([]RecordID, error) {
	if err := idx.checkType(value); err != nil {
		return nil, err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.root == page.NoID {
		return nil, nil
	}
	leaf, _, err := idx.descend(value)
	if err != nil {
		return nil, err
	}

	var out []RecordID
	i := lowerBound(leaf.keys, value)
	for {
		for ; i < len(leaf.keys) && leaf.keys[i].Compare(value) == 0; i++ {
			out = append(out, leaf.records[i])
		}
		if i < len(leaf.keys) || leaf.nextLeaf == page.NoID {
			break
		}
		next, err := idx.loadNode(leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
		if len(next.keys) == 0 || next.keys[0].Compare(value) != 0 {
			break
		}
		leaf = next
		i = 0
	}
	return out, nil
}

// FindRange returns every RecordID whose key k satisfies low <= k <= high,
// walking the leaf chain from the leaf that would contain low (spec.md
// §4.4 "Range search").
func (idx *Index) FindRange(low, high coltype.Value) ([]RecordID, error) {
	if err := idx.checkType(low); err != nil {
		return nil, err
	}
	if err := idx.checkType(high); err != nil {
		return nil, err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.root == page.NoID {
		return nil, nil
	}
	leaf, _, err := idx.descend(low)
	if err != nil {
		return nil, err
	}

	var out []RecordID
	i := lowerBound(leaf.keys, low)
	for {
		for ; i < len(leaf.keys); i++ {
			k := leaf.keys[i]
			if k.Compare(high) > 0 {
				return out, nil
			}
			if k.Compare(low) >= 0 {
				out = append(out, leaf.records[i])
			}
		}
		if leaf.nextLeaf == page.NoID {
			return out, nil
		}
		leaf, err = idx.loadNode(leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
		i = 0
	}
}

// LeafKeys walks the entire leaf chain from the leftmost leaf, returning
// every (key, record) pair in non-decreasing key order. Column.Open uses
// it to recover a column's row count, cmd/inspect_idx uses it to dump an
// index, and tests use it to check the global sortedness and coverage
// invariants of §8; it has no role in serving queries.
func (idx *Index) LeafKeys() ([]coltype.Value, []RecordID, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.root == page.NoID {
		return nil, nil, nil
	}
	id := idx.root
	for {
		n, err := idx.loadNode(id)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf {
			break
		}
		id = n.children[0]
	}

	var keys []coltype.Value
	var recs []RecordID
	for id != page.NoID {
		n, err := idx.loadNode(id)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, n.keys...)
		recs = append(recs, n.records...)
		id = n.nextLeaf
	}
	return keys, recs, nil
}
