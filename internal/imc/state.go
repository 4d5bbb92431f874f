package imc

import (
	"github.com/rs/zerolog"

	"github.com/abdoudiaw/branson/internal/comm"
)

// State carries the simulation clock and the per-step energy and message
// diagnostics for one rank.
type State struct {
	Time     float64
	Dt       float64
	TimeStop float64
	DtMult   float64
	DtMax    float64
	Step     uint32

	RNG *RNG

	// step outputs
	PreCensusE  float64
	PostCensusE float64
	EmissionE   float64
	ExitE       float64
	AbsorbedE   float64

	TransParticles uint64
	CensusSize     uint64
	Ctr            MessageCounter
}

// NewState initializes the clock from the deck and seeds the rank's RNG.
func NewState(cfg *Config, rank int) *State {
	return &State{
		Time:     cfg.Time.TStart,
		Dt:       cfg.Time.Dt,
		TimeStop: cfg.Time.TStop,
		DtMult:   cfg.Time.DtMult,
		DtMax:    cfg.Time.DtMax,
		Step:     1,
		RNG:      NewRNG(int64(rank)*74261 + 1),
	}
}

// NextDT returns the size of the following timestep; census photons get their
// distance to census from it.
func (s *State) NextDT() float64 {
	next := s.Dt * s.DtMult
	if next > s.DtMax {
		next = s.DtMax
	}
	if s.Time+s.Dt+next > s.TimeStop {
		next = s.TimeStop - (s.Time + s.Dt)
	}
	if next < 0 {
		next = 0
	}
	return next
}

// NextTimeStep advances the clock.
func (s *State) NextTimeStep() {
	s.Time += s.Dt
	s.Dt = s.NextDT()
	s.Step++
}

// Finished reports whether the clock has reached the stop time.
func (s *State) Finished() bool {
	const tol = 1.0e-8
	return s.Time >= s.TimeStop*(1.0-tol)
}

// PrintConservation reduces the step's energy accounting across ranks and
// logs the balance on rank 0. The radiation residual should sit at floating
// round-off of the sourced energy.
func (s *State) PrintConservation(c comm.Communicator, log zerolog.Logger) {
	gAbsorbed := c.AllreduceFloat64(s.AbsorbedE)
	gEmission := c.AllreduceFloat64(s.EmissionE)
	gPreCensus := c.AllreduceFloat64(s.PreCensusE)
	gPostCensus := c.AllreduceFloat64(s.PostCensusE)
	gExit := c.AllreduceFloat64(s.ExitE)
	gCensusSize := c.AllreduceUint64(s.CensusSize)
	gTransported := c.AllreduceUint64(s.TransParticles)

	if c.Rank() != 0 {
		return
	}
	residual := (gAbsorbed + gPostCensus + gExit) - (gEmission + gPreCensus)
	log.Info().
		Uint32("step", s.Step).
		Float64("time", s.Time+s.Dt).
		Float64("dt", s.Dt).
		Float64("emission_e", gEmission).
		Float64("absorbed_e", gAbsorbed).
		Float64("pre_census_e", gPreCensus).
		Float64("post_census_e", gPostCensus).
		Float64("exit_e", gExit).
		Float64("rad_residual", residual).
		Uint64("census_size", gCensusSize).
		Uint64("transported", gTransported).
		Msg("step conservation")
}
