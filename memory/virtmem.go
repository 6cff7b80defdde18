package memory

import (
	"github.com/pkg/errors"
)

const PageSize = 4096

// Perm describes the access rights of a mapped page.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermUser
)

func (p Perm) Has(want Perm) bool {
	return p&want == want
}

// Region is a page aligned, contiguous run of mappings sharing one set of
// permissions. Its backing bytes are allocated lazily.
type Region struct {
	Start, Size uint64
	Perm        Perm

	linear []byte
}

func (reg *Region) Contains(x uint64) bool {
	if x < reg.Start {
		return false
	}

	if x-reg.Start >= reg.Size {
		return false
	}

	return true
}

func (reg *Region) overlaps(start, size uint64) bool {
	return start < reg.Start+reg.Size && reg.Start < start+size
}

func pageDown(addr uint64) uint64 {
	return addr &^ (PageSize - 1)
}

func pageRound(sz uint64) uint64 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

// Project returns the backing bytes for [addr, addr+sz), which must lie
// entirely inside the region.
func (reg *Region) Project(addr, sz uint64) []byte {
	offset := addr - reg.Start

	if uint64(len(reg.linear)) < offset+sz {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz]
}

// AddressSpace is the set of regions reachable from one page table root.
type AddressSpace struct {
	regions []*Region
	size    uint64
}

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// Size is the number of mapped bytes.
func (as *AddressSpace) Size() uint64 {
	return as.size
}

func (as *AddressSpace) FindRegion(addr uint64) (*Region, bool) {
	for _, reg := range as.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

var (
	ErrInvalidMemoryAccess = errors.New("invalid memory access via projection")
	ErrBadRegionRequest    = errors.New("bad region request")
)

// Project returns the backing bytes of a range that must not straddle a
// region boundary.
func (as *AddressSpace) Project(addr, sz uint64) ([]byte, error) {
	if sz == 0 {
		return nil, nil
	}

	reg, ok := as.FindRegion(addr)
	if !ok || !reg.Contains(addr+sz-1) {
		return nil, errors.Wrapf(ErrInvalidMemoryAccess, "error projecting address=%x, size=%x", addr, sz)
	}

	return reg.Project(addr, sz), nil
}

// NewRegion maps size bytes at addr. Both are rounded out to page
// boundaries. Overlapping an existing region is rejected.
func (as *AddressSpace) NewRegion(addr, size uint64, perm Perm) (*Region, error) {
	start := pageDown(addr)
	size = pageRound(addr - start + size)

	if start+size < start {
		return nil, errors.Wrapf(ErrBadRegionRequest, "region wraps: addr=%x size=%x", addr, size)
	}

	for _, reg := range as.regions {
		if reg.overlaps(start, size) {
			return nil, errors.Wrapf(ErrBadRegionRequest, "region overlaps: addr=%x size=%x", addr, size)
		}
	}

	reg := &Region{
		Start: start,
		Size:  size,
		Perm:  perm,
	}

	as.regions = append(as.regions, reg)

	as.size += size

	return reg, nil
}
