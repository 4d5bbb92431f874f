package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdoudiaw/branson/internal/comm"
	"github.com/abdoudiaw/branson/internal/imc"
)

// branson runs an IMC particle-passing simulation from an input deck:
//
//	branson decks/marshak.cfg
//
// By default every rank in the deck runs as a goroutine of this process. Set
// BRANSON_RANK and BRANSON_ADDRS (comma-separated host:port, one per rank) to
// run this process as a single rank of a socket-connected world instead.
func main() {
	imc.Debug = os.Getenv("DEBUG") != ""
	imc.Trace = os.Getenv("TRACE") != ""

	level := zerolog.InfoLevel
	if imc.Debug {
		level = zerolog.DebugLevel
	}
	if imc.Trace {
		level = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	deck := "decks/marshak.cfg"
	if len(os.Args) > 1 {
		deck = os.Args[1]
	}

	start := time.Now()
	var err error
	if addrs := os.Getenv("BRANSON_ADDRS"); addrs != "" {
		err = runSocketRank(deck, addrs, log)
	} else {
		err = imc.Run(deck, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("simulation complete")
}

func runSocketRank(deck, addrList string, log zerolog.Logger) error {
	rankStr := os.Getenv("BRANSON_RANK")
	rank, err := strconv.Atoi(rankStr)
	if err != nil {
		return fmt.Errorf("BRANSON_RANK %q: %w", rankStr, err)
	}
	addrs := strings.Split(addrList, ",")

	cfg, err := imc.LoadConfig(deck)
	if err != nil {
		return err
	}
	if cfg.Parallel.NRanks != len(addrs) {
		return fmt.Errorf("deck wants %d ranks but BRANSON_ADDRS lists %d", cfg.Parallel.NRanks, len(addrs))
	}

	world, err := comm.NewSocketWorld(rank, addrs)
	if err != nil {
		return err
	}
	defer world.Close()
	return imc.RunRank(cfg, world, log)
}
