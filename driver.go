package gofat

import (
	"strings"

	"github.com/dargueta/gofat/bpb"
	"github.com/dargueta/gofat/clusterio"
	"github.com/dargueta/gofat/direngine"
	"github.com/dargueta/gofat/direntry"
	fatErrors "github.com/dargueta/gofat/errors"
	"github.com/dargueta/gofat/fattable"
	"github.com/dargueta/gofat/nodestore"
	"github.com/dargueta/gofat/vcache"
)

// FatFs is the top-level set of operations the host VFS dispatches into:
// mount, unmount, lookup, read, write, create, rename, unlink, mkdir,
// rmdir, stat, sync, fsync, truncate (spec.md section 4.8). Each operation
// follows the fixed skeleton documented there: acquire locks per the
// canonical order in lockdiscipline.go, do the work via DirEngine/
// FatTable/NodeStore, update VCache, then notify the host.
type FatFs struct {
	Volume *Volume
	Engine *direngine.Engine
	Nodes  *nodestore.Store
	VCache *vcache.Cache
}

// Mount validates sector 0 via bpb.Classify, derives the volume geometry,
// and wires up the ClusterIo/FatTable/DirEngine/VCache/NodeStore
// collaborators for the rest of the mount's lifetime.
func Mount(cache BlockCache, fileCache FileCache, vfs VFSCallbacks, clock Clock, opts MountOptions) (*FatFs, fatErrors.DriverError) {
	sector0, ioErr := cache.Get(0)
	if ioErr != nil {
		return nil, fatErrors.Io.WrapError(ioErr)
	}
	fatType, b, err := bpb.Classify(sector0)
	cache.Put(0)
	if err != nil {
		return nil, err
	}

	rootDirSectors := (uint32(b.RootEntryCount)*32 + uint32(b.BytesPerSector) - 1) / uint32(b.BytesPerSector)
	firstDataSector := uint32(b.ReservedSectors) + uint32(b.NumFATs)*b.FATSizeSectors + rootDirSectors
	if b.TotalSectors < firstDataSector {
		return nil, fatErrors.Corrupt.WithMessage("total sectors smaller than the reserved+FAT+root region")
	}
	dataSectors := b.TotalSectors - firstDataSector
	maxCluster := dataSectors/uint32(b.SectorsPerCluster) + 1

	vol := &Volume{
		Type:              fatType,
		BytesPerSector:    b.BytesPerSector,
		SectorsPerCluster: b.SectorsPerCluster,
		ReservedSectors:   b.ReservedSectors,
		NumFATs:           b.NumFATs,
		RootDirEntries:    b.RootEntryCount,
		TotalSectors:      b.TotalSectors,
		MediaDescriptor:   b.MediaDescriptor,
		FATSizeSectors:    b.FATSizeSectors,
		ActiveFAT:         b.ActiveFAT(),
		Mirror:            b.Mirror(),
		FirstDataSector:   firstDataSector,
		MaxCluster:        maxCluster,
		BlockCache:        cache,
		FileCache:         fileCache,
		VFS:               vfs,
		ClockSrc:          clock,
		MountOpts:         opts,
		Mutex:             NewRecursiveMutex(),
	}
	if opts.Flags.IsReadOnly() {
		vol.ReadOnly = true
	}

	cio := &clusterio.ClusterIo{
		Cache:             cache,
		FirstDataSector:   firstDataSector,
		SectorsPerCluster: uint32(b.SectorsPerCluster),
		MaxCluster:        maxCluster,
	}

	if fatType == Fat32 {
		vol.RootDirStart = b.RootCluster
		vol.FSInfoSector = b.FSInfoSector
	} else {
		vol.RootDirStart = uint32(b.ReservedSectors) + uint32(b.NumFATs)*b.FATSizeSectors
		cio.FixedRootStart = vol.RootDirStart
		cio.FixedRootSectors = rootDirSectors
	}

	fat, ferr := fattable.New(fatType, uint32(b.BytesPerSector), b.FATSizeSectors, uint32(b.ReservedSectors), b.NumFATs, vol.ActiveFAT, vol.Mirror, maxCluster, cache)
	if ferr != nil {
		return nil, ferr
	}
	vol.FreeClusters = fat.FreeCount
	vol.NextFreeHint = fat.NextFree

	fatStart := LBA(uint32(b.ReservedSectors) + uint32(vol.ActiveFAT)*b.FATSizeSectors)
	if fat0, gerr := cache.Get(fatStart); gerr == nil {
		bpb.CheckMediaDescriptor(b.MediaDescriptor, fat0[0])
		cache.Put(fatStart)
	}

	vc := vcache.New()

	engine := &direngine.Engine{
		Cio:               cio,
		Fat:               fat,
		BytesPerSector:    uint32(b.BytesPerSector),
		SectorsPerCluster: uint32(b.SectorsPerCluster),
		Codec:             direntry.NameCodec{},
	}
	nodes := &nodestore.Store{
		Cio:               cio,
		Fat:               fat,
		VCache:            vc,
		BytesPerSector:    uint32(b.BytesPerSector),
		SectorsPerCluster: uint32(b.SectorsPerCluster),
	}

	fs := &FatFs{Volume: vol, Engine: engine, Nodes: nodes, VCache: vc}
	return fs, nil
}

// Unmount flushes all outstanding state. The host must have quiesced open
// files before calling this (spec.md section 5: "no cancellation at this
// layer").
func (fs *FatFs) Unmount() fatErrors.DriverError {
	fs.Volume.Mutex.Lock()
	defer fs.Volume.Mutex.Unlock()
	return fs.Sync()
}

func (fs *FatFs) fixedRootSectors() uint32 {
	if fs.Volume.Type == Fat32 {
		return 0
	}
	return fs.Volume.RootDirSectors()
}

// RootIno is the stable inode of the volume's root directory.
func (fs *FatFs) RootIno() Ino {
	if fs.Volume.Type == Fat32 {
		return NewDirClusterIno(0, Cluster(fs.Volume.RootDirStart))
	}
	return NewDirIndexIno(clusterio.FixedRootCluster, 0)
}

func dirFor(n *Node, isFixedRoot bool) direngine.Dir {
	if isFixedRoot {
		return direngine.Dir{FixedRoot: true}
	}
	return direngine.Dir{StartCluster: n.StartCluster}
}

// locationOf derives the VCache location for a lookup result within dir.
// Zero-byte files use the DirIndex encoding (dir cluster × slot index);
// files with >= 1 cluster use DirCluster (parent cluster × file start
// cluster), per spec.md section 3.
func locationOf(dir direngine.Dir, result direngine.LookupResult) Ino {
	if result.Entry.StartCluster().IsDataCluster() {
		return NewDirClusterIno(dir.StartCluster, result.Entry.StartCluster())
	}
	return NewDirIndexIno(dir.StartCluster, uint32(result.ShortEntrySlot))
}

// Lookup resolves name within parent, assigning (or reusing) its VCache
// inode and constructing the Node on a cold hit. "." and ".." are handled
// by the caller examining parent directly rather than searching for them.
func (fs *FatFs) Lookup(parent *Node, parentIsRoot bool, name string) (*Node, fatErrors.DriverError) {
	if name == "." {
		return parent, nil
	}

	dir := dirFor(parent, parentIsRoot && fs.Volume.Type != Fat32)
	result, err := fs.Engine.Lookup(dir, fs.fixedRootSectorsFor(parentIsRoot), name)
	if err != nil {
		return nil, err
	}

	location := locationOf(dir, result)
	inode := fs.VCache.AssignInode(location)
	if fs.VCache.IsConstructed(inode) {
		if fs.Volume.VFS != nil {
			n, gerr := fs.Volume.VFS.GetVnode(fs.Volume, inode)
			if gerr == nil {
				return n, nil
			}
		}
	}

	node := nodestore.FromDirEntry(inode, parent.Inode, result.Entry)
	node.DirCluster = dir.StartCluster
	node.DirFixedRoot = dir.FixedRoot
	node.DirSlot = result.ShortEntrySlot
	node.DirName = result.Entry.Name
	node.DirCaseFlags = result.Entry.CaseFlags
	fs.VCache.MarkConstructed(inode, true)
	if fs.Volume.VFS != nil {
		_ = fs.Volume.VFS.PublishVnode(fs.Volume, inode, node)
	}
	return node, nil
}

func (fs *FatFs) fixedRootSectorsFor(isRoot bool) uint32 {
	if isRoot {
		return fs.fixedRootSectors()
	}
	return 0
}

// Stat fills in a platform-independent snapshot of node.
func (fs *FatFs) Stat(node *Node) FileStat {
	node.Lock.RLock()
	defer node.Lock.RUnlock()
	return FileStat{
		Ino:          node.Inode,
		IsDirectory:  node.IsDirectory(),
		Size:         node.Size,
		Attr:         node.Attr,
		CreatedAt:    node.CreatedAt,
		LastAccessed: node.LastAccessed,
		LastModified: node.LastModified,
		LastChanged:  node.LastChanged,
	}
}

// FSStat reports whole-volume statistics.
func (fs *FatFs) FSStat() FSStat {
	return FSStat{
		BlockSize:     int64(fs.Volume.BytesPerSector),
		TotalBlocks:   uint64(fs.Volume.TotalSectors),
		BlocksFree:    uint64(fs.Volume.FreeClusters) * uint64(fs.Volume.SectorsPerCluster),
		MaxNameLength: 255,
		Label:         fs.Volume.Label,
	}
}

// Create makes a new directory entry for name within parent. With excl set
// and an existing name it fails; with trunc set over an existing regular
// file it truncates instead of creating. excl and trunc mirror Go's
// os.O_EXCL/os.O_TRUNC.
func (fs *FatFs) Create(parent *Node, parentIsRoot bool, name string, attr DirAttr, excl, trunc bool) (*Node, fatErrors.DriverError) {
	if name == "." || name == ".." {
		return nil, fatErrors.InvalidArg.WithMessage("cannot create \".\" or \"..\"")
	}
	if parent.Removed {
		return nil, fatErrors.NotFound.WithMessage("parent directory has been removed")
	}
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return nil, cerr
	}

	parent.Lock.Lock()
	defer parent.Lock.Unlock()

	existing, lerr := fs.Lookup(parent, parentIsRoot, name)
	if lerr == nil {
		if excl {
			return nil, fatErrors.NameTaken.WithMessage("file already exists")
		}
		if trunc && !existing.IsDirectory() {
			if _, _, _, terr := fs.Nodes.Truncate(existing, 0, fs.Volume.NextFreeHint); terr != nil {
				return nil, terr
			}
		}
		return existing, nil
	}
	if lerr.Kind() != fatErrors.NotFound {
		return nil, lerr
	}

	dir := dirFor(parent, parentIsRoot && fs.Volume.Type != Fat32)
	now := fs.Volume.ClockSrc.NowLocal()
	cDate, cTime, cTenths := direntry.UnixToDOS(now)

	meta := direngine.EntryMeta{
		Attr:         attr,
		StartCluster: ClusterFree,
		CreateDate:   cDate,
		CreateTime:   cTime,
		CreateTenths: cTenths,
		WriteDate:    cDate,
		WriteTime:    cTime,
	}

	_, shortSlot, newDir, ierr := fs.Engine.Insert(dir, fs.fixedRootSectorsFor(parentIsRoot), name, meta, fs.Volume.NextFreeHint)
	if ierr != nil {
		return nil, ierr
	}

	location := NewDirIndexIno(newDir.StartCluster, uint32(shortSlot))
	inode := fs.VCache.AssignInode(location)

	raw, rerr := fs.Engine.ReadSlot(newDir, shortSlot)
	if rerr != nil {
		return nil, rerr
	}
	entry := direntry.DecodeShortEntry(raw)
	node := nodestore.FromDirEntry(inode, parent.Inode, entry)
	node.DirCluster = newDir.StartCluster
	node.DirFixedRoot = newDir.FixedRoot
	node.DirSlot = shortSlot
	node.DirName = entry.Name
	node.DirCaseFlags = entry.CaseFlags
	fs.VCache.MarkConstructed(inode, true)

	if fs.Volume.VFS != nil {
		_ = fs.Volume.VFS.PublishVnode(fs.Volume, inode, node)
		fs.Volume.VFS.NotifyEntryCreated(fs.Volume, parent.Inode, name, inode)
	}
	return node, nil
}

// flushEntry rewrites node's own 32-byte directory entry with its current
// in-memory size/start-cluster/attributes, using the location cached on it
// by Lookup/Create. A node with no backing entry (the volume root) is a
// no-op.
func (fs *FatFs) flushEntry(node *Node) fatErrors.DriverError {
	if node.DirSlot == NoDirSlot {
		return nil
	}
	dir := direngine.Dir{StartCluster: node.DirCluster, FixedRoot: node.DirFixedRoot}
	cluster, sector, offset, ok := fs.Engine.SlotLocation(dir, node.DirSlot)
	if !ok {
		return fatErrors.Corrupt.WithMessage("directory entry slot vanished before flush")
	}
	loc := nodestore.FlushLocation{Cluster: cluster, Sector: sector, Offset: offset}
	return fs.Nodes.Flush(node, loc, node.DirName, node.DirCaseFlags)
}

// Mkdir creates a new subdirectory, allocating its first cluster and
// writing its "."/".." entries.
func (fs *FatFs) Mkdir(parent *Node, parentIsRoot bool, name string) (*Node, fatErrors.DriverError) {
	node, err := fs.Create(parent, parentIsRoot, name, AttrDirectory, true, false)
	if err != nil {
		return nil, err
	}

	start, _, _, terr := fs.Engine.Fat.TruncateOrExtend(ClusterFree, 1, fs.Volume.NextFreeHint)
	if terr != nil {
		return nil, terr
	}

	now := fs.Volume.ClockSrc.NowLocal()
	cDate, cTime, cTenths := direntry.UnixToDOS(now)
	meta := direngine.EntryMeta{CreateDate: cDate, CreateTime: cTime, CreateTenths: cTenths, WriteDate: cDate, WriteTime: cTime}

	if merr := fs.Engine.MakeEmptyDir(start, parent.StartCluster, parentIsRoot, meta); merr != nil {
		return nil, merr
	}

	node.StartCluster = start
	node.EndCluster = start

	// Create() wrote the entry with StartCluster still free, since the
	// cluster above wasn't allocated yet; patch the on-disk entry now that
	// it is.
	if ferr := fs.flushEntry(node); ferr != nil {
		return nil, ferr
	}

	if _, found := fs.VCache.Lookup(node.Inode); found {
		newLocation := NewDirClusterIno(node.DirCluster, start)
		fs.VCache.SetLocation(node.Inode, newLocation)
	}
	return node, nil
}

// Unlink removes name from parent. The node, if still referenced, is moved
// to artificial inode space so its old location can be reused. The file's
// cluster chain is not freed, here or when the host releases the last
// reference.
func (fs *FatFs) Unlink(parent *Node, parentIsRoot bool, name string) fatErrors.DriverError {
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return cerr
	}
	parent.Lock.Lock()
	defer parent.Lock.Unlock()

	dir := dirFor(parent, parentIsRoot && fs.Volume.Type != Fat32)
	result, err := fs.Engine.Lookup(dir, fs.fixedRootSectorsFor(parentIsRoot), name)
	if err != nil {
		return err
	}
	if result.Entry.Attr.IsDirectory() {
		return fatErrors.IsDirectory.WithMessage("use Rmdir for directories")
	}

	location := locationOf(dir, result)
	inode := fs.VCache.AssignInode(location)

	if rerr := fs.Engine.Remove(dir, fs.fixedRootSectorsFor(parentIsRoot), result.ShortEntrySlot); rerr != nil {
		return rerr
	}

	artificial := fs.VCache.NewArtificial()
	fs.VCache.SetLocation(inode, artificial)

	if fs.Volume.VFS != nil {
		fs.Volume.VFS.NotifyEntryRemoved(fs.Volume, parent.Inode, name, inode)
	}
	return nil
}

// Rmdir removes an empty subdirectory.
func (fs *FatFs) Rmdir(parent *Node, parentIsRoot bool, name string) fatErrors.DriverError {
	if name == "." || name == ".." {
		return fatErrors.InvalidArg.WithMessage("cannot remove \".\" or \"..\"")
	}
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return cerr
	}
	parent.Lock.Lock()
	defer parent.Lock.Unlock()

	dir := dirFor(parent, parentIsRoot && fs.Volume.Type != Fat32)
	result, err := fs.Engine.Lookup(dir, fs.fixedRootSectorsFor(parentIsRoot), name)
	if err != nil {
		return err
	}
	if !result.Entry.Attr.IsDirectory() {
		return fatErrors.NotDirectory.WithMessage("not a directory")
	}

	childDir := direngine.Dir{StartCluster: result.Entry.StartCluster()}
	empty, eerr := fs.Engine.IsEmpty(childDir, 0)
	if eerr != nil {
		return eerr
	}
	if !empty {
		return fatErrors.NotEmpty.WithMessage("directory not empty")
	}

	location := locationOf(dir, result)
	inode := fs.VCache.AssignInode(location)

	if rerr := fs.Engine.Remove(dir, fs.fixedRootSectorsFor(parentIsRoot), result.ShortEntrySlot); rerr != nil {
		return rerr
	}
	if _, _, _, terr := fs.Engine.Fat.TruncateOrExtend(result.Entry.StartCluster(), 0, 0); terr != nil {
		return terr
	}

	artificial := fs.VCache.NewArtificial()
	fs.VCache.SetLocation(inode, artificial)

	if fs.Volume.VFS != nil {
		fs.Volume.VFS.NotifyEntryRemoved(fs.Volume, parent.Inode, name, inode)
	}
	return nil
}

// Rename moves/renames oldName in oldParent to newName in newParent.
// Renames are serialized per-volume by Volume.Mutex. A case-only rename
// within the same parent deletes then inserts, the reverse of the general
// order, to avoid tripping the duplicate-name check against itself.
func (fs *FatFs) Rename(oldParent *Node, oldParentIsRoot bool, oldName string, newParent *Node, newParentIsRoot bool, newName string) fatErrors.DriverError {
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return cerr
	}
	fs.Volume.Mutex.Lock()
	defer fs.Volume.Mutex.Unlock()

	oldDir := dirFor(oldParent, oldParentIsRoot && fs.Volume.Type != Fat32)
	newDir := dirFor(newParent, newParentIsRoot && fs.Volume.Type != Fat32)

	result, err := fs.Engine.Lookup(oldDir, fs.fixedRootSectorsFor(oldParentIsRoot), oldName)
	if err != nil {
		return err
	}

	sameParent := oldParent.Inode == newParent.Inode
	caseOnly := sameParent && strings.EqualFold(oldName, newName) && oldName != newName

	if result.Entry.Attr.IsDirectory() && oldParent.Inode != newParent.Inode {
		fs.Volume.CheckpathLock.Lock()
		loopErr := fs.checkNotDescendant(result.Entry.StartCluster(), newParent)
		fs.Volume.CheckpathLock.Unlock()
		if loopErr != nil {
			return loopErr
		}
	}

	location := locationOf(oldDir, result)
	inode := fs.VCache.AssignInode(location)

	now := fs.Volume.ClockSrc.NowLocal()
	cDate, cTime, cTenths := direntry.UnixToDOS(now)
	meta := direngine.EntryMeta{
		Attr:         result.Entry.Attr,
		StartCluster: result.Entry.StartCluster(),
		Size:         result.Entry.FileSize,
		CreateDate:   result.Entry.CreateDate,
		CreateTime:   result.Entry.CreateTime,
		CreateTenths: result.Entry.CreateTenths,
		WriteDate:    cDate,
		WriteTime:    cTime,
		AccessDate:   cDate,
	}

	removeAndInsert := func() fatErrors.DriverError {
		if rerr := fs.Engine.Remove(oldDir, fs.fixedRootSectorsFor(oldParentIsRoot), result.ShortEntrySlot); rerr != nil {
			return rerr
		}
		_, newSlot, newDirAfter, ierr := fs.Engine.Insert(newDir, fs.fixedRootSectorsFor(newParentIsRoot), newName, meta, fs.Volume.NextFreeHint)
		if ierr != nil {
			return ierr
		}
		newLocation := locationFromMeta(newDirAfter, newSlot, meta)
		fs.VCache.SetLocation(inode, newLocation)
		return nil
	}
	insertAndRemove := func() fatErrors.DriverError {
		_, newSlot, newDirAfter, ierr := fs.Engine.Insert(newDir, fs.fixedRootSectorsFor(newParentIsRoot), newName, meta, fs.Volume.NextFreeHint)
		if ierr != nil {
			return ierr
		}
		if rerr := fs.Engine.Remove(oldDir, fs.fixedRootSectorsFor(oldParentIsRoot), result.ShortEntrySlot); rerr != nil {
			return rerr
		}
		newLocation := locationFromMeta(newDirAfter, newSlot, meta)
		fs.VCache.SetLocation(inode, newLocation)
		return nil
	}

	var opErr fatErrors.DriverError
	if caseOnly {
		opErr = removeAndInsert()
	} else {
		opErr = insertAndRemove()
	}
	if opErr != nil {
		return opErr
	}

	if cterr := cterrUpdateDotDot(fs, result, oldParent, newParent, sameParent); cterr != nil {
		return cterr
	}

	if fs.Volume.VFS != nil {
		fs.Volume.VFS.NotifyEntryMoved(fs.Volume, oldParent.Inode, oldName, newParent.Inode, newName, inode)
	}
	return nil
}

func locationFromMeta(dir direngine.Dir, slot int, meta direngine.EntryMeta) Ino {
	if meta.StartCluster.IsDataCluster() {
		return NewDirClusterIno(dir.StartCluster, meta.StartCluster)
	}
	return NewDirIndexIno(dir.StartCluster, uint32(slot))
}

// cterrUpdateDotDot rewrites the moved directory's ".." entry when it
// changes parent directories.
func cterrUpdateDotDot(fs *FatFs, result direngine.LookupResult, oldParent, newParent *Node, sameParent bool) fatErrors.DriverError {
	if sameParent || !result.Entry.Attr.IsDirectory() {
		return nil
	}
	childDir := direngine.Dir{StartCluster: result.Entry.StartCluster()}
	raw, rerr := fs.Engine.ReadSlot(childDir, 1)
	if rerr != nil {
		return rerr
	}
	entry := direntry.DecodeShortEntry(raw)
	if newParent.Inode == fs.RootIno() {
		entry.SetStartCluster(ClusterFree)
	} else {
		entry.SetStartCluster(newParent.StartCluster)
	}
	return fs.Engine.WriteSlot(childDir, 1, entry.Encode())
}

// checkNotDescendant walks from candidate's root up to root via "..",
// guarding against moving a directory into one of its own descendants.
func (fs *FatFs) checkNotDescendant(movedDirStart Cluster, destParent *Node) fatErrors.DriverError {
	current := destParent.StartCluster
	seen := map[Cluster]bool{}
	for current.IsDataCluster() {
		if current == movedDirStart {
			return fatErrors.InvalidArg.WithMessage("cannot move a directory into its own descendant")
		}
		if seen[current] {
			break
		}
		seen[current] = true

		dir := direngine.Dir{StartCluster: current}
		raw, err := fs.Engine.ReadSlot(dir, 1)
		if err != nil {
			break
		}
		entry := direntry.DecodeShortEntry(raw)
		next := entry.StartCluster()
		if next == current {
			break
		}
		current = next
	}
	return nil
}

// DirEntry is one entry surfaced by ReadDir.
type DirEntry struct {
	Name        string
	Ino         Ino
	IsDirectory bool
}

// ReadDir lists node's children, skipping "." and "..", assigning (or
// reusing) each child's VCache inode along the way so a subsequent Lookup
// of the same name resolves to the same node.
func (fs *FatFs) ReadDir(node *Node, isRoot bool) ([]DirEntry, fatErrors.DriverError) {
	node.Lock.RLock()
	defer node.Lock.RUnlock()

	dir := dirFor(node, isRoot && fs.Volume.Type != Fat32)
	results, err := fs.Engine.List(dir, fs.fixedRootSectorsFor(isRoot))
	if err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(results))
	for _, result := range results {
		name := result.DisplayName()
		if name == "." || name == ".." {
			continue
		}
		location := locationOf(dir, result)
		inode := fs.VCache.AssignInode(location)
		out = append(out, DirEntry{Name: name, Ino: inode, IsDirectory: result.Entry.Attr.IsDirectory()})
	}
	return out, nil
}

// Read satisfies a read request by delegating to the host file cache once
// the node has a file handle; Write does the same, extending the file
// first via NodeStore.Truncate when the write crosses the current EOF.
func (fs *FatFs) Read(node *Node, cookie FileCookie, pos int64, buf []byte) (int, fatErrors.DriverError) {
	node.Lock.RLock()
	defer node.Lock.RUnlock()
	if node.FileCacheHandle == nil {
		return 0, nil
	}
	n, err := fs.Volume.FileCache.Read(node.FileCacheHandle, cookie, pos, buf)
	if err != nil {
		return n, fatErrors.Io.WrapError(err)
	}
	return n, nil
}

func (fs *FatFs) Write(node *Node, cookie FileCookie, pos int64, buf []byte) (int, fatErrors.DriverError) {
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return 0, cerr
	}

	end := pos + int64(len(buf))
	if end > node.Size {
		node.Lock.Lock()
		_, _, _, terr := fs.Nodes.Truncate(node, end, fs.Volume.NextFreeHint)
		var ferr fatErrors.DriverError
		if terr == nil {
			ferr = fs.flushEntry(node)
		}
		node.Lock.Unlock()
		if terr != nil {
			return 0, terr
		}
		if ferr != nil {
			return 0, ferr
		}
	}

	node.Lock.RLock()
	defer node.Lock.RUnlock()
	if node.FileCacheHandle == nil {
		return 0, nil
	}
	n, err := fs.Volume.FileCache.Write(node.FileCacheHandle, cookie, pos, buf)
	if err != nil {
		return n, fatErrors.Io.WrapError(err)
	}
	if fs.Volume.VFS != nil {
		fs.Volume.VFS.NotifyStatChanged(fs.Volume, node.Inode)
	}
	return n, nil
}

// Truncate resizes node to newSize, per spec.md section 4.6/5's
// deadlock-avoidance protocol: the node's write lock is released before
// the newly-exposed tail is zeroed through the file cache.
func (fs *FatFs) Truncate(node *Node, newSize int64) fatErrors.DriverError {
	if cerr := fs.Volume.CheckWritable(); cerr != nil {
		return cerr
	}

	node.Lock.Lock()
	zeroFrom, zeroTo, _, terr := fs.Nodes.Truncate(node, newSize, fs.Volume.NextFreeHint)
	var ferr fatErrors.DriverError
	if terr == nil {
		ferr = fs.flushEntry(node)
	}
	node.Lock.Unlock()
	if terr != nil {
		return terr
	}
	if ferr != nil {
		return ferr
	}

	if zeroTo > zeroFrom && node.FileCacheHandle != nil {
		zero := make([]byte, zeroTo-zeroFrom)
		if _, werr := fs.Volume.FileCache.Write(node.FileCacheHandle, 0, zeroFrom, zero); werr != nil {
			return fatErrors.Io.WrapError(werr)
		}
	}
	return nil
}

// Fsync flushes the node's file cache, then its parent's directory entry.
func (fs *FatFs) Fsync(node *Node) fatErrors.DriverError {
	node.Lock.RLock()
	handle := node.FileCacheHandle
	node.Lock.RUnlock()

	if handle != nil {
		if err := fs.Volume.FileCache.Sync(handle); err != nil {
			return fatErrors.Io.WrapError(err)
		}
	}
	return fs.Volume.BlockCache.Sync()
}

// Sync writes fsinfo (if FAT32) and flushes the block cache. It does not
// flush any file's file cache; Fsync does that for a single node.
func (fs *FatFs) Sync() fatErrors.DriverError {
	if fs.Volume.Type == Fat32 && fs.Volume.FSInfoSector != 0 {
		info := bpb.FSInfo{FreeCount: fs.Volume.FreeClusters, NextFree: uint32(fs.Volume.NextFreeHint)}
		raw := bpb.WriteFSInfo(info)
		data, err := fs.Volume.BlockCache.GetWritable(LBA(fs.Volume.FSInfoSector))
		if err == nil {
			copy(data, raw)
			fs.Volume.BlockCache.Put(LBA(fs.Volume.FSInfoSector))
		}
	}
	if err := fs.Volume.BlockCache.Sync(); err != nil {
		return fatErrors.Io.WrapError(err)
	}
	return nil
}
