//go:build linux
// +build linux

package hostbridge

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/dargueta/gofat"
)

// FS adapts a mounted *gofat.FatFs to bazil.org/fuse's fs.FS, translating
// kernel requests into FatFs calls and FatFs's DriverError taxonomy back
// into fuse errno values.
type FS struct {
	Fat    *gofat.FatFs
	Vnodes *VnodeTable
}

func (f *FS) Root() (fs.Node, error) {
	root, err := f.Fat.Volume.VFS.GetVnode(f.Fat.Volume, f.Fat.RootIno())
	if err != nil {
		root = gofatRootNode(f.Fat)
		if perr := f.Fat.Volume.VFS.PublishVnode(f.Fat.Volume, f.Fat.RootIno(), root); perr != nil {
			return nil, perr
		}
	}
	return &dirNode{fs: f, node: root, isRoot: true}, nil
}

// gofatRootNode synthesizes the Node backing the volume's root directory,
// which (unlike every other node) is never produced by a directory Lookup.
func gofatRootNode(fat *gofat.FatFs) *gofat.Node {
	return &gofat.Node{
		Inode:        fat.RootIno(),
		StartCluster: gofat.Cluster(fat.Volume.RootDirStart),
		EndCluster:   gofat.ClusterUnknown,
		Attr:         gofat.AttrDirectory,
		Lock:         gofat.NewRecursiveRWLock(),
		DirSlot:      gofat.NoDirSlot,
	}
}

// toFuseErr maps the core's error taxonomy onto the errno values the kernel
// expects back from a FUSE request.
func toFuseErr(err gofat.DriverError) error {
	if err == nil {
		return nil
	}
	switch err.Kind() {
	case gofat.ErrNotFound:
		return fuse.ENOENT
	case gofat.ErrNameTaken:
		return fuse.EEXIST
	case gofat.ErrNotEmpty:
		return syscall.ENOTEMPTY
	case gofat.ErrIsDirectory:
		return syscall.EISDIR
	case gofat.ErrNotDirectory:
		return syscall.ENOTDIR
	case gofat.ErrInvalidArg, gofat.ErrNameTooLong, gofat.ErrBadName:
		return fuse.Errno(syscall.EINVAL)
	case gofat.ErrReadOnly:
		return syscall.EROFS
	case gofat.ErrNotAllowed:
		return syscall.EPERM
	case gofat.ErrNoSpace:
		return syscall.ENOSPC
	case gofat.ErrBusy:
		return syscall.EBUSY
	default:
		return syscall.EIO
	}
}

func attrFromStat(a *fuse.Attr, stat gofat.FileStat) {
	a.Inode = uint64(stat.Ino)
	a.Size = uint64(stat.Size)
	a.Mtime = stat.LastModified
	a.Ctime = stat.LastChanged
	a.Atime = stat.LastAccessed
	a.Crtime = stat.CreatedAt
	if stat.IsDirectory {
		a.Mode = os.ModeDir | 0755
	} else {
		a.Mode = 0644
		if stat.Attr&gofat.AttrReadOnly != 0 {
			a.Mode = 0444
		}
	}
}

// dirNode is the fs.Node for a directory: every operation that mutates or
// searches a directory's entries lives here.
type dirNode struct {
	fs     *FS
	node   *gofat.Node
	isRoot bool
}

var (
	_ fs.Node               = (*dirNode)(nil)
	_ fs.NodeStringLookuper = (*dirNode)(nil)
	_ fs.HandleReadDirAller = (*dirNode)(nil)
	_ fs.NodeCreater        = (*dirNode)(nil)
	_ fs.NodeMkdirer        = (*dirNode)(nil)
	_ fs.NodeRemover        = (*dirNode)(nil)
	_ fs.NodeRenamer        = (*dirNode)(nil)
	_ fs.NodeFsyncer        = (*dirNode)(nil)
)

func (d *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	attrFromStat(a, d.fs.Fat.Stat(d.node))
	return nil
}

func (d *dirNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child, err := d.fs.Fat.Lookup(d.node, d.isRoot, name)
	if err != nil {
		return nil, toFuseErr(err)
	}
	return d.fs.wrap(child, false), nil
}

func (d *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := d.fs.Fat.ReadDir(d.node, d.isRoot)
	if err != nil {
		return nil, toFuseErr(err)
	}
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		dtype := fuse.DT_File
		if e.IsDirectory {
			dtype = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Inode: uint64(e.Ino), Name: e.Name, Type: dtype})
	}
	return out, nil
}

func (d *dirNode) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	excl := req.Flags&fuse.OpenExclusive != 0
	trunc := req.Flags&fuse.OpenTruncate != 0
	var attr gofat.DirAttr
	if req.Mode&0222 == 0 {
		attr = gofat.AttrReadOnly
	}
	child, err := d.fs.Fat.Create(d.node, d.isRoot, req.Name, attr, excl, trunc)
	if err != nil {
		return nil, nil, toFuseErr(err)
	}
	attrFromStat(&resp.Attr, d.fs.Fat.Stat(child))
	file := d.fs.wrap(child, false).(*fileNode)
	return file, file, nil
}

func (d *dirNode) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	child, err := d.fs.Fat.Mkdir(d.node, d.isRoot, req.Name)
	if err != nil {
		return nil, toFuseErr(err)
	}
	return d.fs.wrap(child, true), nil
}

func (d *dirNode) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return toFuseErr(d.fs.Fat.Rmdir(d.node, d.isRoot, req.Name))
	}
	return toFuseErr(d.fs.Fat.Unlink(d.node, d.isRoot, req.Name))
}

func (d *dirNode) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	destDir, ok := newDir.(*dirNode)
	if !ok {
		return syscall.EXDEV
	}
	return toFuseErr(d.fs.Fat.Rename(d.node, d.isRoot, req.OldName, destDir.node, destDir.isRoot, req.NewName))
}

func (d *dirNode) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return toFuseErr(d.fs.Fat.Fsync(d.node))
}

// fileNode is the fs.Node (and, since it implements HandleReader/Writer
// directly, its own fs.Handle) for a regular file.
type fileNode struct {
	fs   *FS
	node *gofat.Node
}

var (
	_ fs.Node          = (*fileNode)(nil)
	_ fs.HandleReader  = (*fileNode)(nil)
	_ fs.HandleWriter  = (*fileNode)(nil)
	_ fs.NodeFsyncer   = (*fileNode)(nil)
	_ fs.NodeSetattrer = (*fileNode)(nil)
)

func (f *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	attrFromStat(a, f.fs.Fat.Stat(f.node))
	return nil
}

func (f *fileNode) ensureHandle() error {
	if f.node.FileCacheHandle != nil {
		return nil
	}
	handle, err := f.fs.Fat.Volume.FileCache.Create(f.node.Inode, f.node.Size)
	if err != nil {
		return err
	}
	f.node.FileCacheHandle = handle
	return nil
}

func (f *fileNode) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if err := f.ensureHandle(); err != nil {
		return err
	}
	buf := make([]byte, req.Size)
	n, err := f.fs.Fat.Read(f.node, gofat.FileCookie(req.Handle), req.Offset, buf)
	if err != nil {
		return toFuseErr(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (f *fileNode) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if err := f.ensureHandle(); err != nil {
		return err
	}
	n, err := f.fs.Fat.Write(f.node, gofat.FileCookie(req.Handle), req.Offset, req.Data)
	if err != nil {
		return toFuseErr(err)
	}
	resp.Size = n
	return nil
}

func (f *fileNode) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return toFuseErr(f.fs.Fat.Fsync(f.node))
}

func (f *fileNode) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := f.fs.Fat.Truncate(f.node, int64(req.Size)); err != nil {
			return toFuseErr(err)
		}
	}
	attrFromStat(&resp.Attr, f.fs.Fat.Stat(f.node))
	return nil
}

// wrap builds the fs.Node for a freshly-looked-up or freshly-created child,
// choosing dirNode vs fileNode by isDir since FatFs itself is agnostic to
// which kernel-facing wrapper a Node gets.
func (fsys *FS) wrap(n *gofat.Node, isDir bool) fs.Node {
	if isDir || n.IsDirectory() {
		return &dirNode{fs: fsys, node: n, isRoot: false}
	}
	return &fileNode{fs: fsys, node: n}
}
