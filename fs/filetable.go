package fs

import "sync"

// Descriptor bundles an open inode with its cursor and open flags,
// mirroring FileHandle in file_table.rs. Write consults OAPPEND; no
// call checks the access-mode bits.
type Descriptor struct {
	inode  *Inode
	offset int
	flags  OFlags
}

// Inode returns the descriptor's underlying inode.
func (d *Descriptor) Inode() *Inode { return d.inode }

// Read reads from the descriptor's current offset and advances it by
// the number of bytes actually read.
func (d *Descriptor) Read(buf []byte) (int, error) {
	n, err := d.inode.Pread(d.offset, buf)
	d.offset += n
	return n, err
}

// Write writes at the descriptor's current offset (or at the file's
// end if opened with OAPPEND) and advances the offset.
func (d *Descriptor) Write(buf []byte) (int, error) {
	offset := d.offset
	if d.flags&OAPPEND != 0 {
		offset = len(d.inode.data)
	}
	n, err := d.inode.Pwrite(offset, buf)
	d.offset = offset + n
	return n, err
}

// descriptorTableCapacity bounds the table the way file_table.rs's
// fixed 256-entry Vec does.
const descriptorTableCapacity = 256

// Table is the kernel-wide open-file table: a fixed slice of
// descriptor slots, indexed by file descriptor number, guarded by one
// lock the way FileTable wraps its Vec in an RwLock.
type Table struct {
	mu      sync.RWMutex
	entries []*Descriptor
}

// NewTable allocates an empty descriptor table with capacity for
// descriptorTableCapacity simultaneously open files.
func NewTable() *Table {
	return &Table{entries: make([]*Descriptor, descriptorTableCapacity)}
}

// Get returns the descriptor at fd, or ok=false if fd is unused or out
// of range.
func (t *Table) Get(fd int) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return nil, false
	}
	return t.entries[fd], true
}

// Open finds the lowest free slot, installs a descriptor over node
// with the given flags, and returns its number. ErrBusy if the table
// is full, matching open_file's FileSystemError::Busy.
func (t *Table) Open(node *Inode, flags OFlags) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e == nil {
			t.entries[i] = &Descriptor{inode: node, flags: flags}
			return i, nil
		}
	}
	return -1, ErrBusy
}

// Close frees the slot at fd so it can be reused.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.entries) || t.entries[fd] == nil {
		return ErrEntryNotFound
	}
	t.entries[fd] = nil
	return nil
}
