// Package pagemap allocates a pool of host memory and builds a
// reverse index from physical frame number to the virtual offset at
// which this process mapped it, by reading /proc/self/pagemap.
package pagemap

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AllocPageSize selects the page size used for the owned region.
type AllocPageSize string

const (
	Size4KiB AllocPageSize = "4kb"
	Size2MiB AllocPageSize = "2mb"
	Size1GiB AllocPageSize = "1gb"
)

const (
	pageSize4KiB = 4 * 1024
	pageSize2MiB = 2 * 1024 * 1024
	pageSize1GiB = 1 * 1024 * 1024 * 1024

	// maxPFN bounds the pagemap to 16 TiB of RAM, matching the
	// uint32 page-offset/frame-number storage in PageMap.
	maxPFN = (16 * 1024 * 1024 * 1024 * 1024) / pageSize4KiB
)

// Config controls how the Acquirer maps memory.
type Config struct {
	AllocPageSize   AllocPageSize
	UseFreeMemory   bool
	MemorySize      uint64
	HugepageCount   uint32
	OptLogger       *log.Logger
}

func (c Config) pageSize() uint64 {
	switch c.AllocPageSize {
	case Size1GiB:
		return pageSize1GiB
	case Size2MiB:
		return pageSize2MiB
	default:
		return pageSize4KiB
	}
}

func (c Config) logger() *log.Logger {
	if c.OptLogger != nil {
		return c.OptLogger
	}
	return log.Default()
}

// Acquirer owns a mapped memory region and the PFN -> page-offset
// index built from it.
type Acquirer struct {
	cfg      Config
	pageSize uint64
	mem      []byte
	base     uintptr
	pageMap  map[uint32]uint32
}

// NewAcquirerOrExit is the OrExit counterpart of NewAcquirer.
func NewAcquirerOrExit(cfg Config) *Acquirer {
	a, err := NewAcquirer(cfg)
	if err != nil {
		defaultExitFn(fmt.Errorf("failed to acquire physical pages - %w", err))
	}
	return a
}

// NewAcquirer maps memory per cfg and builds the PFN -> page-offset
// index. Any failure to map memory or read the pagemap is fatal, per
// the acquirer's contract - callers that cannot tolerate process
// failure at this stage should not call this function from a
// supervisory process.
func NewAcquirer(cfg Config) (*Acquirer, error) {
	a := &Acquirer{
		cfg:      cfg,
		pageSize: cfg.pageSize(),
		pageMap:  make(map[uint32]uint32),
	}

	if cfg.AllocPageSize != Size4KiB {
		free, err := freeHugepages()
		if err != nil {
			a.cfg.logger().Printf("could not retrieve number of free hugepages: %v", err)
		} else if free != 0 {
			if cfg.UseFreeMemory {
				a.cfg.HugepageCount = free
				a.cfg.logger().Printf("found %d free hugepages", free)
			} else if cfg.HugepageCount > free {
				return nil, fmt.Errorf("found %d free hugepages, configuration requested %d",
					free, cfg.HugepageCount)
			}
		}
	}

	var err error
	switch cfg.AllocPageSize {
	case Size1GiB:
		if err := checkHugepageSize(pageSize1GiB); err != nil {
			return nil, err
		}
		a.cfg.MemorySize = pageSize1GiB * uint64(a.cfg.HugepageCount)
		err = a.allocHugepages(true)
	case Size2MiB:
		if err := checkHugepageSize(pageSize2MiB); err != nil {
			return nil, err
		}
		a.cfg.MemorySize = pageSize2MiB * uint64(a.cfg.HugepageCount)
		err = a.allocHugepages(false)
	default:
		err = a.allocDefault()
	}
	if err != nil {
		return nil, err
	}

	if err := a.buildPageMap(); err != nil {
		return nil, fmt.Errorf("failed to build page map - %w", err)
	}

	return a, nil
}

func (a *Acquirer) allocDefault() error {
	a.cfg.logger().Printf("allocating %d bytes (%d GiB)...", a.cfg.MemorySize, a.cfg.MemorySize>>30)

	mem, err := unix.Mmap(-1, 0, int(a.cfg.MemorySize),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_POPULATE|unix.MAP_NORESERVE)
	if err != nil {
		return fmt.Errorf("mmap failed for default allocation - %w", err)
	}

	a.mem = mem
	a.base = uintptr(unsafe.Pointer(&mem[0]))

	return nil
}

func (a *Acquirer) allocHugepages(use1GiB bool) error {
	length := pageSize2MiB * uint64(a.cfg.HugepageCount)
	hugeFlag := unix.MAP_HUGETLB | mapHuge2MB
	label := "2MB"
	if use1GiB {
		length = pageSize1GiB * uint64(a.cfg.HugepageCount)
		hugeFlag = unix.MAP_HUGETLB | mapHuge1GB
		label = "1GB"
	}

	a.cfg.logger().Printf("using %d %s hugepages for allocation...", a.cfg.HugepageCount, label)

	mem, err := unix.Mmap(-1, 0, int(length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_POPULATE|unix.MAP_ANONYMOUS|hugeFlag)
	if err != nil {
		return fmt.Errorf("mmap failed for %s hugepage allocation - %w", label, err)
	}

	a.mem = mem
	a.base = uintptr(unsafe.Pointer(&mem[0]))

	return nil
}

// Close releases the owned memory region.
func (a *Acquirer) Close() error {
	if a.mem == nil {
		return nil
	}
	return unix.Munmap(a.mem)
}

const (
	mapHugeShift = 26
	mapHuge2MB   = 21 << mapHugeShift
	mapHuge1GB   = 30 << mapHugeShift
)

// buildPageMap reads /proc/self/pagemap in 1 KiB chunks across the
// owned region and records (frame -> page offset) for every present
// page.
func (a *Acquirer) buildPageMap() error {
	a.cfg.logger().Printf("building page map...")

	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return fmt.Errorf("failed to open /proc/self/pagemap - %w", err)
	}
	defer f.Close()

	const bufSize = 1024
	const entriesPerBuf = bufSize / 8

	buf := make([]byte, bufSize)

	baseOffset := (a.base / uintptr(a.pageSize)) * 8

	numPages := a.cfg.MemorySize / a.pageSize

	for i := uint64(0); i < numPages; i += entriesPerBuf {
		n, err := f.ReadAt(buf, int64(baseOffset)+int64(i*8))
		if n == 0 && err != nil {
			return fmt.Errorf("failed to read pagemap at page %d - %w", i, err)
		}

		entries := n / 8
		for j := 0; j < entries; j++ {
			entry := leUint64(buf[j*8 : j*8+8])

			if !isPagePresent(entry) {
				continue
			}

			frame := frameNumber(entry)
			if frame >= maxPFN {
				return fmt.Errorf("frame number %d exceeds the 16 TiB pagemap capacity", frame)
			}

			pageOffset := i + uint64(j)

			a.pageMap[uint32(frame)] = uint32(pageOffset)
		}

		if err != nil {
			break
		}
	}

	return nil
}

// FindPage returns the virtual address at which physAddr's containing
// page is mapped in this process, or ok=false if the page is not in
// the owned region.
func (a *Acquirer) FindPage(physAddr uint64) (virt uintptr, ok bool) {
	frame := physAddr / a.pageSize
	if frame >= maxPFN {
		return 0, false
	}

	pageOffset, hasIt := a.pageMap[uint32(frame)]
	if !hasIt {
		return 0, false
	}

	inPageOffset := physAddr & (a.pageSize - 1)

	return a.base + uintptr(pageOffset)*uintptr(a.pageSize) + uintptr(inPageOffset), true
}

// PageSize returns the page size used for the owned region.
func (a *Acquirer) PageSize() uint64 {
	return a.pageSize
}

// NumPages returns the number of present pages recorded in the map.
func (a *Acquirer) NumPages() int {
	return len(a.pageMap)
}

// Frames returns every physical frame number present in the map, for
// use by finders that need to walk owned pages in PFN order.
func (a *Acquirer) Frames() []uint32 {
	frames := make([]uint32, 0, len(a.pageMap))
	for f := range a.pageMap {
		frames = append(frames, f)
	}
	return frames
}

// SortedFrames returns Frames in ascending order, mirroring the
// ordered-map iteration the original tool gets for free from
// std::map<page_t, virtaddr_t>.
func (a *Acquirer) SortedFrames() []uint32 {
	frames := a.Frames()
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}

// Contains reports whether frame is present in the owned page map.
func (a *Acquirer) Contains(frame uint32) bool {
	_, ok := a.pageMap[frame]
	return ok
}

func frameNumber(entry uint64) uint64 {
	return entry & (1<<55 - 1)
}

func isPagePresent(entry uint64) bool {
	return entry&(1<<63) != 0
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

var hugepagesFreeRe = regexp.MustCompile(`HugePages_Free:\s*([0-9]+)`)
var hugepagesizeRe = regexp.MustCompile(`Hugepagesize:\s*([0-9]+) kB`)

func freeHugepages() (uint32, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := hugepagesFreeRe.FindStringSubmatch(scanner.Text()); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return 0, err
			}
			return uint32(n), nil
		}
	}

	return 0, fmt.Errorf("HugePages_Free not found in /proc/meminfo")
}

func checkHugepageSize(wantBytes uint64) error {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := hugepagesizeRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		kb, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return err
		}

		if kb*1024 != wantBytes {
			return fmt.Errorf("system hugepagesize (%d KiB) does not match requested allocation (%d bytes)",
				kb, wantBytes)
		}

		return nil
	}

	return fmt.Errorf("Hugepagesize not found in /proc/meminfo")
}
