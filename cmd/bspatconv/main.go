package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/fault-injection-lab/dramhammer/bspat"
)

const usage = `bspatconv
DESCRIPTION
  Converts a Blacksmith fuzzer pattern export into hammer_order,
  num_aggs_for_sync and total_num_activations keys under the
  [blacksmith] section of a config.ini.

USAGE
  bspatconv pattern.json config.ini
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

	if flag.NArg() != 2 {
		flag.Usage()
		return fmt.Errorf("expected exactly 2 arguments: pattern.json config.ini")
	}
	patternPath, configPath := flag.Arg(0), flag.Arg(1)

	patternFile, err := os.Open(patternPath)
	if err != nil {
		return fmt.Errorf("failed to open pattern file - %w", err)
	}
	defer patternFile.Close()

	pattern, err := bspat.Decode(patternFile)
	if err != nil {
		return fmt.Errorf("failed to decode pattern - %w", err)
	}

	order := pattern.Expand()
	log.Printf("expanded pattern into %d accesses over %d aggressors", len(order), len(pattern.Aggressors))

	f, err := ini.LooseLoad(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %q - %w", configPath, err)
	}

	sec := f.Section("blacksmith")
	sec.Key("hammer_order").SetValue(intListString(order))
	if pattern.NumAggsForSync > 0 {
		sec.Key("num_aggs_for_sync").SetValue(strconv.Itoa(pattern.NumAggsForSync))
	}
	if pattern.TotalActivations > 0 {
		sec.Key("total_num_activations").SetValue(strconv.FormatUint(pattern.TotalActivations, 10))
	}

	hammerSec := f.Section("hammer")
	if len(pattern.VictimInit) > 0 {
		hammerSec.Key("victim_init").SetValue(hexListString(pattern.VictimInit))
	}
	if len(pattern.AggressorInit) > 0 {
		hammerSec.Key("aggressor_init").SetValue(hexListString(pattern.AggressorInit))
	}

	if err := f.SaveTo(configPath); err != nil {
		return fmt.Errorf("failed to save config %q - %w", configPath, err)
	}

	log.Printf("wrote blacksmith pattern to %q", configPath)
	return nil
}

func intListString(order []int) string {
	parts := make([]string, len(order))
	for i, v := range order {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func hexListString(words []uint64) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = "0x" + strconv.FormatUint(w, 16)
	}
	return strings.Join(parts, ",")
}
