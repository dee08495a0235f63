package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fault-injection-lab/dramhammer/pagemap"
	"github.com/fault-injection-lab/dramhammer/rhconfig"
	"github.com/fault-injection-lab/dramhammer/sysinfo"
	"github.com/fault-injection-lab/dramhammer/validator"
)

const usage = `validate
DESCRIPTION
  Replays a recorded set of aggressor/victim addresses against freshly
  allocated memory, to confirm that a previously found flip still
  reproduces.

USAGE
  validate addresses.txt [config.ini]
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
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		return fmt.Errorf("missing required addresses.txt argument")
	}
	addrPath := flag.Arg(0)

	configPath := "config.ini"
	if flag.NArg() > 1 {
		configPath = flag.Arg(1)
	}

	cfg, err := rhconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration - %w", err)
	}

	sets, err := validator.ReadAddrFile(addrPath)
	if err != nil {
		return fmt.Errorf("failed to read address file - %w", err)
	}
	log.Printf("loaded %d address sets from %q", len(sets), addrPath)

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

	results, err := validator.Replay(cfg, owner, sets)
	if err != nil {
		return fmt.Errorf("replay failed - %w", err)
	}

	var flippedCount int
	for _, r := range results {
		switch {
		case !r.Found:
			log.Printf("%-20s could not find physical pages", r.Set.Label)
		case r.Flipped:
			flippedCount++
			log.Printf("%-20s reproduced %d bit flip(s)", r.Set.Label, len(r.Flips))
		default:
			log.Printf("%-20s no bit flip", r.Set.Label)
		}
	}

	log.Printf("%d/%d address sets reproduced a flip", flippedCount, len(results))
	return nil
}
