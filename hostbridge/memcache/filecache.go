package memcache

import (
	"fmt"
	"sync"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/clusterio"
)

// FileCache is a reference gofat.FileCache keyed by an opaque per-file
// handle, each holding a flat in-memory byte buffer. Real hosts back this
// with page cache and a file map; this exists for tests, which need
// something that behaves like one without a kernel underneath.
type FileCache struct {
	mu      sync.Mutex
	Cio     *clusterio.ClusterIo
	next    uint64
	entries map[uint64]*fileEntry
}

type fileEntry struct {
	mu       sync.Mutex
	data     []byte
	disabled bool
}

// NewFileCache builds an empty FileCache. cio is used by FileMapTranslate
// to resolve byte ranges to device LBAs, mirroring how a host's page-fault
// hook would call back into ClusterIo.
func NewFileCache(cio *clusterio.ClusterIo) *FileCache {
	return &FileCache{Cio: cio, entries: make(map[uint64]*fileEntry)}
}

// Create allocates a zero-filled entry of the given size and returns its
// handle.
func (f *FileCache) Create(ino gofat.Ino, size int64) (gofat.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.entries[id] = &fileEntry{data: make([]byte, size)}
	return id, nil
}

func (f *FileCache) entry(handle gofat.FileHandle) (*fileEntry, error) {
	id, ok := handle.(uint64)
	if !ok {
		return nil, fmt.Errorf("memcache: invalid file handle %v", handle)
	}
	f.mu.Lock()
	e, ok := f.entries[id]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memcache: unknown file handle %v", handle)
	}
	return e, nil
}

// SetSize grows or shrinks the entry's buffer, zero-filling any growth.
func (f *FileCache) SetSize(handle gofat.FileHandle, size int64) error {
	e, err := f.entry(handle)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if int64(len(e.data)) == size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, e.data)
	e.data = grown
	return nil
}

// Read copies up to len(buf) bytes starting at pos into buf.
func (f *FileCache) Read(handle gofat.FileHandle, cookie gofat.FileCookie, pos int64, buf []byte) (int, error) {
	e, err := f.entry(handle)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if pos >= int64(len(e.data)) {
		return 0, nil
	}
	n := copy(buf, e.data[pos:])
	return n, nil
}

// Write copies buf into the entry's buffer starting at pos, growing it if
// the write extends past the current end. While the entry is disabled
// (the node is mid-resize, per spec.md section 5), writes past the
// pre-resize length are suppressed and report zero bytes written.
func (f *FileCache) Write(handle gofat.FileHandle, cookie gofat.FileCookie, pos int64, buf []byte) (int, error) {
	e, err := f.entry(handle)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	end := pos + int64(len(buf))
	if e.disabled && end > int64(len(e.data)) {
		return 0, nil
	}
	if end > int64(len(e.data)) {
		grown := make([]byte, end)
		copy(grown, e.data)
		e.data = grown
	}
	copy(e.data[pos:end], buf)
	return len(buf), nil
}

// Sync is a no-op: this cache has no separate backing store of its own
// beyond the buffer itself.
func (f *FileCache) Sync(handle gofat.FileHandle) error { return nil }

// Delete discards the entry.
func (f *FileCache) Delete(handle gofat.FileHandle) error {
	id, ok := handle.(uint64)
	if !ok {
		return fmt.Errorf("memcache: invalid file handle %v", handle)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
	return nil
}

// Disable suppresses writes past the file's current length until the entry
// is enabled again. Nothing in this module calls it; NodeStore.Truncate
// marks the node with Node.Resizing instead.
func (f *FileCache) Disable(handle gofat.FileHandle) error {
	e, err := f.entry(handle)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.disabled = true
	e.mu.Unlock()
	return nil
}

// Enable clears the suppression set by Disable.
func (f *FileCache) Enable(handle gofat.FileHandle) error {
	e, err := f.entry(handle)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.disabled = false
	e.mu.Unlock()
	return nil
}

// FileMapTranslate is unused by this reference cache (it keeps file
// contents in a flat buffer rather than mapping to device extents) but
// must be implemented to satisfy gofat.FileCache.
func (f *FileCache) FileMapTranslate(handle gofat.FileHandle, offset int64, size int64, clusterSize int64) ([]gofat.Extent, error) {
	return nil, fmt.Errorf("memcache: FileMapTranslate not supported by the in-process reference cache")
}
