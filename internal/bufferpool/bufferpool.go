// Package bufferpool caches pages across every file the disk manager
// knows about behind one shared LRU. It is the only path by which any
// other layer touches page residency: columns and the B+-tree index fetch
// through here, never through the disk manager directly.
//
// Grounded on the teacher's storage_engine/bufferpool package (map of
// resident pages plus an access-order list, eviction writes back dirty
// pages through the disk manager), simplified to match spec.md §4.2
// exactly: no pin counts (the spec's operations are single, non-reentrant
// borrows with no suspension points, so nothing can hold a page across a
// yield point), and a strict deterministic tail-eviction policy instead of
// "skip pinned, try next candidate".
package bufferpool

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"colstore/internal/diskmanager"
	"colstore/internal/page"
)

// Key identifies a resident page across all files: the buffer pool's LRU
// is global, not per-file.
type Key struct {
	File string
	ID   page.ID
}

// Pool is a fixed-capacity, globally-LRU cache of resident pages.
type Pool struct {
	capacity int
	disk     *diskmanager.Manager
	log      *logrus.Entry

	mu     sync.Mutex
	pages  map[Key]*page.Page
	order  *list.List // front = least recently used, back = most recently used
	elems  map[Key]*list.Element
}

// New creates a Pool of the given capacity backed by disk.
func New(capacity int, disk *diskmanager.Manager, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pool{
		capacity: capacity,
		disk:     disk,
		log:      log,
		pages:    make(map[Key]*page.Page, capacity),
		order:    list.New(),
		elems:    make(map[Key]*list.Element, capacity),
	}
}

// Capacity returns the pool's maximum resident-page count.
func (p *Pool) Capacity() int { return p.capacity }

// Size returns the current resident-page count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// FetchPage returns the resident page for (file, id), loading it from disk
// (zero-filled if absent) if it is not already cached. The returned page
// is a live pointer into the pool: mutate Data in place and set Dirty.
//
// Eviction happens before FetchPage returns, so the resident count never
// exceeds capacity once this call completes, and the just-fetched page is
// guaranteed not to be the next eviction victim.
func (p *Pool) FetchPage(file string, id page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := Key{File: file, ID: id}
	if pg, ok := p.pages[key]; ok {
		p.touch(key)
		return pg, nil
	}

	pg, err := p.disk.ReadPage(file, id)
	if err != nil {
		return nil, errors.Wrapf(err, "bufferpool: fetch %s/%d", file, id)
	}

	if err := p.install(key, pg); err != nil {
		return nil, err
	}
	return pg, nil
}

// install adds a freshly-loaded page to residency, evicting the LRU tail
// first if the pool is already at capacity. Caller holds p.mu.
func (p *Pool) install(key Key, pg *page.Page) error {
	if len(p.pages) >= p.capacity {
		if err := p.evictOldest(); err != nil {
			return err
		}
	}
	p.pages[key] = pg
	p.elems[key] = p.order.PushBack(key)
	return nil
}

// evictOldest writes back (if dirty) and drops the single LRU entry.
// Caller holds p.mu.
func (p *Pool) evictOldest() error {
	front := p.order.Front()
	if front == nil {
		return errors.New("bufferpool: cannot evict from an empty pool")
	}
	key := front.Value.(Key)
	pg := p.pages[key]

	if pg.Dirty {
		if err := p.disk.WritePage(key.File, key.ID, pg); err != nil {
			return errors.Wrapf(err, "bufferpool: write back %s/%d during eviction", key.File, key.ID)
		}
		pg.Dirty = false
	}

	p.log.WithFields(logrus.Fields{"file": key.File, "page_id": int64(key.ID)}).Debug("evicted page")
	p.order.Remove(front)
	delete(p.elems, key)
	delete(p.pages, key)
	return nil
}

// touch moves key to the most-recently-used end. Caller holds p.mu.
func (p *Pool) touch(key Key) {
	if el, ok := p.elems[key]; ok {
		p.order.MoveToBack(el)
	}
}

// FlushPage writes back page (file, id) if it is resident and dirty.
func (p *Pool) FlushPage(file string, id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := Key{File: file, ID: id}
	pg, ok := p.pages[key]
	if !ok || !pg.Dirty {
		return nil
	}
	if err := p.disk.WritePage(file, id, pg); err != nil {
		return errors.Wrapf(err, "bufferpool: flush %s/%d", file, id)
	}
	pg.Dirty = false
	return nil
}

// FlushAll writes back every resident dirty page. After it returns, no
// resident page has its dirty bit set.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	flushed := 0
	for key, pg := range p.pages {
		if !pg.Dirty {
			continue
		}
		if err := p.disk.WritePage(key.File, key.ID, pg); err != nil {
			return errors.Wrapf(err, "bufferpool: flush-all %s/%d", key.File, key.ID)
		}
		pg.Dirty = false
		flushed++
	}
	p.log.WithField("pages_flushed", flushed).Debug("flushed all dirty pages")
	return nil
}
