package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hailam/chessmind/internal/engine"
	"github.com/hailam/chessmind/internal/store"
	"github.com/hailam/chessmind/internal/uci"
)

var (
	cpuprofile   = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB       = flag.Int("hash", 64, "transposition table size in MB")
	noPersist    = flag.Bool("no-persist", false, "disable transposition table snapshot persistence")
	defaultDepth = flag.Int("depth", 0, "default fixed-mode search depth (0 uses the engine's built-in default)")
)

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	eng := engine.NewEngine(*hashMB, *defaultDepth)

	protocol := uci.New(eng)

	if !*noPersist {
		db, err := store.Open()
		if err != nil {
			log.Printf("Warning: TT snapshot store unavailable: %v", err)
		} else {
			if err := eng.LoadSnapshot(db); err != nil {
				log.Printf("Warning: failed to load TT snapshot: %v", err)
			}
			protocol = protocol.WithSnapshots(db)
		}
	}

	protocol.Run()
}
