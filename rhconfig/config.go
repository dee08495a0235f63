// Package rhconfig loads and validates the session configuration
// used across the whole hammering tool: DRAM layout, memory
// allocation, the hammer algorithm, temperature control, and
// persistence.
package rhconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/fault-injection-lab/dramhammer/dram"
	"github.com/fault-injection-lab/dramhammer/hammer"
	"github.com/fault-injection-lab/dramhammer/hammerpat"
	"github.com/fault-injection-lab/dramhammer/pagemap"
)

const (
	rowSize     = 8 * 1024
	pageSize    = 4 * 1024
	pagesPerRow = rowSize / pageSize
)

// Config is the fully-resolved session configuration.
type Config struct {
	// [dram_layout]
	DRAMLayout dram.Layout

	// [memory]
	AllocPageSize      pagemap.AllocPageSize
	PageAllocationFile string
	UseFreeMemory      bool
	AllocatePercentage float64
	MemorySize         uint64
	HugepageCount      uint32

	// [hammer]
	ExperimentRepetitions uint32
	Threshold             uint64
	HammerCount           uint64
	AggressorRows         uint32
	MemoryAllocator       string
	IterAlgorithm         string
	Banks                 []uint64
	RowPadding            uint64
	HammerPatternDesc     string
	RandomPatternArea     uint64
	HammerAlgorithm       hammer.Variant
	NOPCount              int
	DebugDump             bool
	VictimInit            []uint64
	AggressorInit         []uint64
	TestMinRows           uint64
	TestMaxRows           uint64
	TestFirstRow          uint64
	TestLastRow           uint64
	TestMaxTime           time.Duration

	// [blacksmith]
	HammerOrder         []int
	NumAggsForSync      int
	TotalNumActivations uint64
	Flushing            hammer.FlushPolicy
	Fencing             hammer.FencePolicy

	// [temperature]
	Device       string
	TargetTemps  []int64
	Interval     uint64
	Timeout      time.Duration

	// [db]
	DBFilepath string

	// [db.config]
	Dimms []string

	// [db.dimm_ids]
	DimmIDs map[string]string

	// [db.bios_settings]
	BIOSSettings map[string]string

	// [db.experiments]
	ExperimentComment string
}

// Default returns the built-in defaults, matching an unconfigured
// session.
func Default() Config {
	return Config{
		DRAMLayout: dram.Layout{
			HFns:     []uint64{0x2040, 0x44000, 0x88000, 0x110000, 0x220000},
			RowMasks: []uint64{0xffffc0000},
			ColMasks: []uint64{(1 << 13) - 1},
		},
		AllocPageSize:         pagemap.Size4KiB,
		UseFreeMemory:         true,
		AllocatePercentage:    0.99,
		MemorySize:            16 * 1024 * 1024 * 1024,
		HugepageCount:         1,
		ExperimentRepetitions: 1,
		HammerCount:           1000000,
		AggressorRows:         24,
		MemoryAllocator:       "noncontiguous",
		IterAlgorithm:         "default",
		RowPadding:            10,
		HammerPatternDesc:     "va",
		HammerAlgorithm:       hammer.Default,
		NOPCount:              80,
		VictimInit:            []uint64{0, ^uint64(0)},
		AggressorInit:         []uint64{^uint64(0), 0},
		TestMinRows:           24*2 + 1,
		NumAggsForSync:        2,
		TotalNumActivations:   5000000,
		Flushing:              hammer.FlushEarliestPossible,
		Fencing:               hammer.FenceLatestPossible,
		Interval:              3,
		DimmIDs:               map[string]string{},
		BIOSSettings:          map[string]string{},
	}
}

// LoadOrExit is the fatal-on-error counterpart of Load.
func LoadOrExit(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		exitFn(fmt.Errorf("failed to load configuration %q - %w", path, err))
	}
	return cfg
}

// Load reads path as an INI file over Default, then validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read ini file - %w", err)
	}

	if err := applyDRAMLayout(f, &cfg); err != nil {
		return cfg, err
	}
	if err := applyMemory(f, &cfg); err != nil {
		return cfg, err
	}
	if err := applyHammer(f, &cfg); err != nil {
		return cfg, err
	}
	if err := applyBlacksmith(f, &cfg); err != nil {
		return cfg, err
	}
	if err := applyTemperature(f, &cfg); err != nil {
		return cfg, err
	}
	applyDB(f, &cfg)

	resolveBanks(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// resolveBanks fills Banks with every bank in the configured DRAM
// layout when the ini file leaves it empty - the config's own
// documented meaning of an empty bank list, resolved once here rather
// than at every call site that would otherwise need to special-case
// it.
func resolveBanks(cfg *Config) {
	if len(cfg.Banks) != 0 {
		return
	}

	banksCnt := uint64(1) << uint(len(cfg.DRAMLayout.HFns))
	cfg.Banks = make([]uint64, banksCnt)
	for i := range cfg.Banks {
		cfg.Banks[i] = uint64(i)
	}
}

func applyDRAMLayout(f *ini.File, cfg *Config) error {
	sec := f.Section("dram_layout")
	if !sec.HasKey("functions") {
		return nil
	}

	hfns, err := parseUint64List(sec.Key("functions").String())
	if err != nil {
		return fmt.Errorf("dram_layout.functions - %w", err)
	}
	rowMasks, err := parseUint64List(sec.Key("row_masks").String())
	if err != nil {
		return fmt.Errorf("dram_layout.row_masks - %w", err)
	}
	colMasks, err := parseUint64List(sec.Key("col_masks").String())
	if err != nil {
		return fmt.Errorf("dram_layout.col_masks - %w", err)
	}

	cfg.DRAMLayout = dram.Layout{HFns: hfns, RowMasks: rowMasks, ColMasks: colMasks}
	return nil
}

func applyMemory(f *ini.File, cfg *Config) error {
	sec := f.Section("memory")

	if sec.HasKey("alloc_page_size") {
		size, err := parseAllocPageSize(sec.Key("alloc_page_size").String())
		if err != nil {
			return err
		}
		cfg.AllocPageSize = size
	}

	cfg.PageAllocationFile = sec.Key("page_allocation_file").MustString(cfg.PageAllocationFile)
	cfg.UseFreeMemory = sec.Key("use_free_memory").MustBool(cfg.UseFreeMemory)
	cfg.AllocatePercentage = sec.Key("allocate_percentage").MustFloat64(cfg.AllocatePercentage)
	cfg.MemorySize = sec.Key("memory_size").MustUint64(cfg.MemorySize)
	cfg.HugepageCount = uint32(sec.Key("hugepage_count").MustUint64(uint64(cfg.HugepageCount)))

	return nil
}

func applyHammer(f *ini.File, cfg *Config) error {
	sec := f.Section("hammer")

	cfg.ExperimentRepetitions = uint32(sec.Key("experiment_repetitions").MustUint64(uint64(cfg.ExperimentRepetitions)))
	cfg.Threshold = sec.Key("threshold").MustUint64(cfg.Threshold)
	cfg.HammerCount = sec.Key("hammer_count").MustUint64(cfg.HammerCount)
	cfg.AggressorRows = uint32(sec.Key("aggressor_rows").MustUint64(uint64(cfg.AggressorRows)))
	cfg.MemoryAllocator = sec.Key("memory_allocator").MustString(cfg.MemoryAllocator)
	cfg.IterAlgorithm = sec.Key("iter_algorithm").MustString(cfg.IterAlgorithm)
	cfg.RowPadding = sec.Key("row_padding").MustUint64(cfg.RowPadding)
	cfg.HammerPatternDesc = sec.Key("hammer_pattern").MustString(cfg.HammerPatternDesc)
	cfg.RandomPatternArea = sec.Key("random_pattern_area").MustUint64(cfg.RandomPatternArea)
	cfg.NOPCount = sec.Key("nop_count").MustInt(cfg.NOPCount)
	cfg.DebugDump = sec.Key("debug_dump").MustBool(cfg.DebugDump)
	cfg.TestMinRows = sec.Key("test_min_rows").MustUint64(uint64(cfg.AggressorRows)*2 + 1)
	cfg.TestMaxRows = sec.Key("test_max_rows").MustUint64(cfg.TestMaxRows)
	cfg.TestFirstRow = sec.Key("test_first_row").MustUint64(cfg.TestFirstRow)
	cfg.TestLastRow = sec.Key("test_last_row").MustUint64(cfg.TestLastRow)

	if sec.HasKey("hammer_algorithm") {
		cfg.HammerAlgorithm = hammer.Variant(sec.Key("hammer_algorithm").String())
	}

	if sec.HasKey("banks") {
		banks, err := parseUint64List(sec.Key("banks").String())
		if err != nil {
			return fmt.Errorf("hammer.banks - %w", err)
		}
		cfg.Banks = banks
	}

	if sec.HasKey("victim_init") {
		v, err := parseInitList(sec.Key("victim_init").String())
		if err != nil {
			return fmt.Errorf("hammer.victim_init - %w", err)
		}
		cfg.VictimInit = v
	}
	if sec.HasKey("aggressor_init") {
		v, err := parseInitList(sec.Key("aggressor_init").String())
		if err != nil {
			return fmt.Errorf("hammer.aggressor_init - %w", err)
		}
		cfg.AggressorInit = v
	}

	if sec.HasKey("test_max_time") {
		d, err := parseHMSDuration(sec.Key("test_max_time").String())
		if err != nil {
			return fmt.Errorf("hammer.test_max_time - %w", err)
		}
		cfg.TestMaxTime = d
	}

	return nil
}

func applyBlacksmith(f *ini.File, cfg *Config) error {
	sec := f.Section("blacksmith")

	if sec.HasKey("hammer_order") {
		order, err := parseIntList(sec.Key("hammer_order").String())
		if err != nil {
			return fmt.Errorf("blacksmith.hammer_order - %w", err)
		}
		cfg.HammerOrder = order
	}

	cfg.NumAggsForSync = sec.Key("num_aggs_for_sync").MustInt(cfg.NumAggsForSync)
	cfg.TotalNumActivations = sec.Key("total_num_activations").MustUint64(cfg.TotalNumActivations)

	if sec.HasKey("flushing") {
		cfg.Flushing = hammer.FlushPolicy(sec.Key("flushing").String())
	}
	if sec.HasKey("fencing") {
		cfg.Fencing = hammer.FencePolicy(sec.Key("fencing").String())
	}

	return nil
}

func applyTemperature(f *ini.File, cfg *Config) error {
	sec := f.Section("temperature")

	cfg.Device = sec.Key("device").MustString(cfg.Device)
	cfg.Interval = sec.Key("interval").MustUint64(cfg.Interval)

	if sec.HasKey("target_temps") {
		temps, err := parseInt64List(sec.Key("target_temps").String())
		if err != nil {
			return fmt.Errorf("temperature.target_temps - %w", err)
		}
		cfg.TargetTemps = temps
	}

	if sec.HasKey("timeout") {
		d, err := parseHMSDuration(sec.Key("timeout").String())
		if err != nil {
			return fmt.Errorf("temperature.timeout - %w", err)
		}
		cfg.Timeout = d
	}

	return nil
}

func applyDB(f *ini.File, cfg *Config) {
	sec := f.Section("db")
	cfg.DBFilepath = sec.Key("db_filepath").MustString(cfg.DBFilepath)

	if dimms := f.Section("db.config").Key("dimms").String(); dimms != "" {
		cfg.Dimms = strings.Split(dimms, ",")
	}

	cfg.DimmIDs = sectionToMap(f.Section("db.dimm_ids"))
	cfg.BIOSSettings = sectionToMap(f.Section("db.bios_settings"))
	cfg.ExperimentComment = f.Section("db.experiments").Key("experiment_comment").String()
}

func sectionToMap(sec *ini.Section) map[string]string {
	m := map[string]string{}
	for _, key := range sec.Keys() {
		m[key.Name()] = key.String()
	}
	return m
}

// HammerPattern expands HammerPatternDesc against AggressorRows and
// RandomPatternArea.
func (c Config) HammerPattern() (hammerpat.Pattern, uint32, error) {
	return hammerpat.Expand(c.HammerPatternDesc, c.AggressorRows, c.RandomPatternArea, nil)
}

func parseAllocPageSize(s string) (pagemap.AllocPageSize, error) {
	switch strings.ToLower(s) {
	case "4kb":
		return pagemap.Size4KiB, nil
	case "2mb":
		return pagemap.Size2MiB, nil
	case "1gb":
		return pagemap.Size1GiB, nil
	default:
		return "", fmt.Errorf("unknown alloc_page_size %q", s)
	}
}

func parseUint64List(s string) ([]uint64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []uint64
	for _, tok := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(tok), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q - %w", tok, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseInt64List(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int64
	for _, tok := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(tok), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q - %w", tok, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseIntList(s string) ([]int, error) {
	u, err := parseUint64List(s)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(u))
	for i, v := range u {
		out[i] = int(v)
	}
	return out, nil
}

// parseInitList accepts hex/decimal words per the stdlib strconv
// rules, e.g. "0x00,0xff".
func parseInitList(s string) ([]uint64, error) {
	return parseUint64List(s)
}

// parseHMSDuration accepts "[[hours:]minutes:]seconds".
func parseHMSDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) < 1 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var nums []int64
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration component %q - %w", p, err)
		}
		nums = append(nums, v)
	}

	d := time.Duration(nums[len(nums)-1]) * time.Second
	nums = nums[:len(nums)-1]
	if len(nums) > 0 {
		d += time.Duration(nums[len(nums)-1]) * time.Minute
		nums = nums[:len(nums)-1]
	}
	if len(nums) > 0 {
		d += time.Duration(nums[len(nums)-1]) * time.Hour
	}

	return d, nil
}
