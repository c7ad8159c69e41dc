// Command polar-plot renders an exported polar CSV as a polar diagram image.
package main

import (
	"flag"
	"log"

	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/fsutil"
	"github.com/saildata/polar.report/internal/monitor"
	"github.com/saildata/polar.report/internal/polar"
)

func main() {
	input := flag.String("i", "polar.csv", "input CSV path")
	output := flag.String("o", "polar.png", "output image path (.png, .svg or .pdf)")
	configPath := flag.String("config", "", "optional recorder config JSON for binning")
	flag.Parse()

	cfg := config.EmptyRecorderConfig()
	if *configPath != "" {
		loaded, err := config.LoadRecorderConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	engine, err := polar.NewEngine(cfg, discardStore{}, nil)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	if err := engine.ImportCSVFile(fsutil.OSFileSystem{}, *input, false, false); err != nil {
		log.Fatalf("failed to import %s: %v", *input, err)
	}

	state := engine.Snapshot()
	if err := monitor.SavePolarDiagram(state.Matrix, *output); err != nil {
		log.Fatalf("failed to render diagram: %v", err)
	}
	log.Printf("✓ Created: %s (%d cells)", *output, len(state.Matrix))
}
