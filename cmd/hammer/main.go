package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fault-injection-lab/dramhammer/dmi"
	"github.com/fault-injection-lab/dramhammer/finder"
	"github.com/fault-injection-lab/dramhammer/pagemap"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
	"github.com/fault-injection-lab/dramhammer/rhstore"
	"github.com/fault-injection-lab/dramhammer/sysinfo"
	"github.com/fault-injection-lab/dramhammer/tempctl"
)

const usage = `hammer
DESCRIPTION
  Allocates physical memory, hammers aggressor DRAM rows and records
  any induced bit flips.

USAGE
  hammer [config.ini]

OPTIONS
`

func main() {
	log.SetFlags(0)

	if err := run(); err != nil {
		log.Fatalln("fatal:", err)
	}
}

func run() error {
	flag.Usage = func() {
		os.Stderr.WriteString(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	configPath := "config.ini"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}

	cfg, err := rhconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration - %w", err)
	}

	memorySize := cfg.MemorySize
	if cfg.AllocPageSize == pagemap.Size4KiB {
		memorySize, err = sysinfo.ResolveMemorySize(cfg.UseFreeMemory, cfg.AllocatePercentage, cfg.MemorySize)
		if err != nil {
			log.Printf("warning: could not read sysinfo, using configured memory_size: %v", err)
			memorySize = cfg.MemorySize
		}
	}

	owner := pagemap.NewAcquirerOrExit(pagemap.Config{
		AllocPageSize: cfg.AllocPageSize,
		UseFreeMemory: cfg.UseFreeMemory,
		MemorySize:    memorySize,
		HugepageCount: cfg.HugepageCount,
	})
	defer owner.Close()

	deps := finder.Deps{Owner: owner}

	var store *rhstore.Store
	if cfg.DBFilepath != "" {
		store, err = rhstore.Open(cfg.DBFilepath)
		if err != nil {
			return fmt.Errorf("failed to open result database - %w", err)
		}
		defer store.Close()

		if err := recordSessionConfig(store, cfg); err != nil {
			log.Printf("warning: failed to record session config: %v", err)
		}

		deps.OptStore = store
		deps.OptRecorder = store
	}

	if cfg.Device != "" {
		temp := tempctl.ConnectOrExit(tempctl.Config{Device: cfg.Device})
		defer temp.Close()
		deps.OptTemp = temp
	}

	var f interface{ FindFlips() error }
	switch cfg.MemoryAllocator {
	case "contiguous":
		f, err = finder.NewContiguousFinder(cfg, deps)
	default:
		f, err = finder.NewNoncontiguousFinder(cfg, deps)
	}
	if err != nil {
		return fmt.Errorf("failed to build %s finder - %w", cfg.MemoryAllocator, err)
	}

	return f.FindFlips()
}

func recordSessionConfig(store *rhstore.Store, cfg rhconfig.Config) error {
	dimms := cfg.Dimms
	if len(dimms) == 0 {
		devices, err := dmi.GetMemoryDevices()
		if err != nil {
			return fmt.Errorf("failed to read installed DIMMs - %w", err)
		}
		dimms, err = dmi.ResolveDIMMs(devices, cfg.DimmIDs)
		if err != nil {
			return fmt.Errorf("failed to resolve DIMM ids - %w", err)
		}
	}

	return store.LoadOrInsertConfig(sysinfo.Hostname(), dimms, cfg.BIOSSettings, cfg.DRAMLayout)
}
