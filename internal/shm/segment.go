// Package shm provides named POSIX shared-memory segments and the lock-free
// frame ring channel built on top of them. Segments live under /dev/shm and
// are shared between the capture daemon and any number of reader processes.
//
// Ownership model: exactly one process owns each segment (the one that
// created it). Only the owner may Destroy (unlink); everyone else attaches
// with Open and detaches with Close. This is enforced by construction — a
// Segment obtained via Open has no Destroy path that unlinks.
package shm

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrUnavailable is returned when a segment does not exist or holds no data yet.
	ErrUnavailable = errors.New("shm: unavailable")

	// ErrClosed is returned for operations on a closed or destroyed segment.
	ErrClosed = errors.New("shm: segment closed")

	// ErrNotOwner is returned when a non-owner attempts to destroy a segment.
	ErrNotOwner = errors.New("shm: not segment owner")

	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("shm: wait timed out")
)

const shmDir = "/dev/shm"

// Segment is a mapped shared-memory region.
type Segment struct {
	name  string
	data  []byte
	owner bool
}

func segmentPath(name string) string {
	return path.Join(shmDir, strings.TrimPrefix(name, "/"))
}

// Create creates a segment of the given size, zero-initialized. If the
// segment already exists the call degrades to an attach and the returned
// segment is not the owner. Size must match on every participant.
func Create(name string, size int) (*Segment, error) {
	p := segmentPath(name)

	fd, err := unix.Open(p, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o666)
	if err == nil {
		defer unix.Close(fd)
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Unlink(p)
			return nil, fmt.Errorf("shm: truncate %s: %w", name, err)
		}
		data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			unix.Unlink(p)
			return nil, fmt.Errorf("shm: map %s: %w", name, err)
		}
		return &Segment{name: name, data: data, owner: true}, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return nil, fmt.Errorf("shm: create %s: %w", name, err)
	}

	// Already present: attach instead of failing, matching the
	// create-or-attach contract. The earlier creator stays the owner.
	return Open(name, size)
}

// Open attaches to an existing segment. Returns ErrUnavailable when the
// segment has not been created yet, so callers can retry with backoff while
// waiting for the owning process.
func Open(name string, size int) (*Segment, error) {
	fd, err := unix.Open(segmentPath(name), unix.O_RDWR, 0o666)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
		}
		return nil, fmt.Errorf("shm: open %s: %w", name, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("shm: stat %s: %w", name, err)
	}
	if st.Size < int64(size) {
		return nil, fmt.Errorf("shm: %s is %d bytes, need %d (layout mismatch?)", name, st.Size, size)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: map %s: %w", name, err)
	}
	return &Segment{name: name, data: data}, nil
}

// Name returns the segment name.
func (s *Segment) Name() string { return s.name }

// Owner reports whether this process created the segment.
func (s *Segment) Owner() bool { return s.owner }

// Bytes returns the mapped region. Valid until Close or Destroy.
func (s *Segment) Bytes() []byte { return s.data }

// Close unmaps the segment without removing it. Safe to call twice.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("shm: unmap %s: %w", s.name, err)
	}
	return nil
}

// Destroy unmaps and unlinks the segment. Only the owner may destroy;
// attached readers must Close instead, otherwise later attachers would race
// against a vanished name.
func (s *Segment) Destroy() error {
	if !s.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, s.name)
	}
	if err := s.Close(); err != nil {
		return err
	}
	if err := unix.Unlink(segmentPath(s.name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("shm: unlink %s: %w", s.name, err)
	}
	return nil
}

// Unlink removes a segment by name without attaching. Used at startup to
// clear stale segments left behind by a crashed owner.
func Unlink(name string) error {
	err := unix.Unlink(segmentPath(name))
	if err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("shm: unlink %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a segment with the given name is present.
func Exists(name string) bool {
	_, err := os.Stat(segmentPath(name))
	return err == nil
}
