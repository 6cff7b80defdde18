package memory

import (
	"sync"

	"github.com/kilnos/kiln/log"
	"github.com/pkg/errors"
)

const (
	// DefaultWholePhysicalStart is the linear address at which all of
	// physical memory is mapped into every address space.
	DefaultWholePhysicalStart uint64 = 0xFFFF800000000000

	// KernelBase starts the kernel half. Everything at or above it is
	// shared by every address space.
	KernelBase uint64 = 0xFFFF800000000000

	// KernelImageSize is the size of the identity mapped kernel image
	// region set up at Init.
	KernelImageSize uint64 = 16 << 20
)

// Root is the linear address of a page table root inside the physical
// memory window.
type Root uint64

// Physical translates the root through the physical memory window into the
// value loaded into the address space root register.
func (r Root) Physical(window uint64) uint64 {
	return uint64(r) - window
}

// Params are the boot time parameters handed to the memory manager.
type Params struct {
	RAMBytes           uint64
	WholePhysicalStart uint64
}

// Walker resolves a linear address in the address space rooted at the
// physical address root.
type Walker interface {
	Walk(root, addr uint64) (Perm, bool)
}

// Manager owns page table construction and frame allocation.
type Manager interface {
	Walker

	Init(Params) error
	WholePhysicalStart() uint64
	TemplateRoot() Root
	AllocRoot() (Root, error)
	FreeRoot(Root) error

	Map(root, addr, size uint64, perm Perm) error
	ReadAt(root uint64, p []byte, addr uint64) error
	WriteAt(root uint64, p []byte, addr uint64) error
}

var (
	ErrNotInitialized = errors.New("memory manager not initialized")
	ErrOutOfFrames    = errors.New("out of physical frames")
	ErrUnknownRoot    = errors.New("unknown address space root")
	ErrTemplateRoot   = errors.New("template root cannot be released")
)

// Sim is an in-memory Manager. Physical frames are handed out from a bump
// pointer and recycled through a free list.
type Sim struct {
	mu sync.RWMutex

	window    uint64
	frames    uint64
	nextFrame uint64
	free      []uint64

	kernel   *AddressSpace
	template uint64
	spaces   map[uint64]*AddressSpace
}

func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) Init(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.WholePhysicalStart == 0 {
		p.WholePhysicalStart = DefaultWholePhysicalStart
	}

	if p.RAMBytes < 2*PageSize {
		return errors.Wrapf(ErrOutOfFrames, "ram too small: %d bytes", p.RAMBytes)
	}

	s.window = p.WholePhysicalStart
	s.frames = p.RAMBytes / PageSize
	s.nextFrame = 1 // frame 0 stays unused so a zero root is never valid
	s.free = nil
	s.spaces = make(map[uint64]*AddressSpace)

	s.kernel = NewAddressSpace()
	if _, err := s.kernel.NewRegion(KernelBase, KernelImageSize, PermRead|PermWrite); err != nil {
		return err
	}

	tmpl, err := s.allocFrame()
	if err != nil {
		return err
	}

	s.template = tmpl
	s.spaces[tmpl] = NewAddressSpace()

	log.L.Debug("memory-init", "frames", s.frames, "window", s.window, "template", tmpl)

	return nil
}

func (s *Sim) allocFrame() (uint64, error) {
	if n := len(s.free); n > 0 {
		f := s.free[n-1]
		s.free = s.free[:n-1]
		return f, nil
	}

	if s.nextFrame >= s.frames {
		return 0, ErrOutOfFrames
	}

	f := s.nextFrame * PageSize
	s.nextFrame++

	return f, nil
}

func (s *Sim) WholePhysicalStart() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.window
}

func (s *Sim) TemplateRoot() Root {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Root(s.window + s.template)
}

// AllocRoot builds a fresh address space holding only the shared kernel
// half.
func (s *Sim) AllocRoot() (Root, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spaces == nil {
		return 0, ErrNotInitialized
	}

	f, err := s.allocFrame()
	if err != nil {
		return 0, err
	}

	s.spaces[f] = NewAddressSpace()

	return Root(s.window + f), nil
}

// FreeRoot releases an address space root and every user mapping hanging
// off it.
func (s *Sim) FreeRoot(r Root) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	phys := r.Physical(s.window)

	if phys == s.template {
		return ErrTemplateRoot
	}

	if _, ok := s.spaces[phys]; !ok {
		return errors.Wrapf(ErrUnknownRoot, "free root=%x", uint64(r))
	}

	delete(s.spaces, phys)
	s.free = append(s.free, phys)

	return nil
}

// Live is the number of allocated roots, the template included.
func (s *Sim) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.spaces)
}

func (s *Sim) space(root, addr uint64) (*AddressSpace, error) {
	if addr >= KernelBase {
		return s.kernel, nil
	}

	as, ok := s.spaces[root]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRoot, "root=%x", root)
	}

	return as, nil
}

// Map adds a user mapping. Kernel half addresses cannot be mapped through a
// process root.
func (s *Sim) Map(root, addr, size uint64, perm Perm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr >= KernelBase || addr+size > KernelBase {
		return errors.Wrapf(ErrBadRegionRequest, "user mapping in kernel half: addr=%x", addr)
	}

	as, ok := s.spaces[root]
	if !ok {
		return errors.Wrapf(ErrUnknownRoot, "map root=%x", root)
	}

	_, err := as.NewRegion(addr, size, perm|PermUser)
	return err
}

func (s *Sim) Walk(root, addr uint64) (Perm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	as, err := s.space(root, addr)
	if err != nil {
		return 0, false
	}

	reg, ok := as.FindRegion(addr)
	if !ok {
		return 0, false
	}

	return reg.Perm, true
}

// access walks [addr, addr+len(p)) one page at a time so a range may span
// several regions.
func (s *Sim) access(root uint64, p []byte, addr uint64, write bool) error {
	for len(p) > 0 {
		as, err := s.space(root, addr)
		if err != nil {
			return err
		}

		n := PageSize - (addr & (PageSize - 1))
		if n > uint64(len(p)) {
			n = uint64(len(p))
		}

		b, err := as.Project(addr, n)
		if err != nil {
			return err
		}

		if write {
			copy(b, p[:n])
		} else {
			copy(p[:n], b)
		}

		p = p[n:]
		addr += n
	}

	return nil
}

func (s *Sim) ReadAt(root uint64, p []byte, addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.access(root, p, addr, false)
}

func (s *Sim) WriteAt(root uint64, p []byte, addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.access(root, p, addr, true)
}
