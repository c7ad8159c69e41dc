// Command gen-polarlog generates a synthetic NMEA0183 log for testing the
// recorder without instruments attached. The generated session sweeps the
// boat through a range of wind angles with a gently varying breeze.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/saildata/polar.report/internal/nmea"
)

// targetSpeed is a crude polar model: slow near head to wind, best around a
// beam reach, tapering off downwind.
func targetSpeed(twa, tws float64) float64 {
	shape := math.Sin(twa * math.Pi / 180.0)
	return 0.45 * tws * (0.4 + 0.6*shape)
}

func main() {
	output := flag.String("o", "sample.polarlog", "output path")
	lines := flag.Int("n", 1000, "number of sentence groups")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	rng := rand.New(rand.NewSource(*seed))
	twa := 40.0
	tws := 12.0
	for i := 0; i < *lines; i++ {
		// wander the boat through the angle range, keep the breeze alive
		twa += rng.Float64()*6 - 3
		if twa < 30 {
			twa = 30
		}
		if twa > 170 {
			twa = 170
		}
		tws += rng.Float64()*0.8 - 0.4
		if tws < 6 {
			tws = 6
		}
		if tws > 24 {
			tws = 24
		}
		bsp := targetSpeed(twa, tws) * (0.92 + rng.Float64()*0.12)

		fmt.Fprintln(w, nmea.Format("WIMWV",
			fmt.Sprintf("%05.1f", twa), "T", fmt.Sprintf("%.1f", tws), "N", "A"))
		fmt.Fprintln(w, nmea.Format("IIVHW",
			"", "T", "", "M", fmt.Sprintf("%.2f", bsp), "N", "", "K"))

		if (i+1)%200 == 0 {
			log.Printf("%d/%d groups", i+1, *lines)
		}
	}
	log.Printf("✓ Created: %s", *output)
}
