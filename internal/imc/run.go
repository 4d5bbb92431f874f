package imc

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/abdoudiaw/branson/internal/comm"
)

// initialCensusPerCell sets how finely the first step's radiation field is
// sampled.
const initialCensusPerCell = 8

// Run executes the whole simulation in process: the deck's ranks run as
// goroutines over an in-process world.
func Run(deckPath string, log zerolog.Logger) error {
	cfg, err := LoadConfig(deckPath)
	if err != nil {
		return err
	}
	world := comm.NewWorld(cfg.Parallel.NRanks)
	var g errgroup.Group
	for rank := 0; rank < cfg.Parallel.NRanks; rank++ {
		rank := rank
		g.Go(func() error {
			return RunRank(cfg, world.Comm(rank), log)
		})
	}
	return g.Wait()
}

// RunRank drives every timestep for one rank: recompute the mesh's photon
// energies, build the step's source from emission plus carried census, run
// particle-passing transport, deposit energy, report conservation, advance.
func RunRank(cfg *Config, c comm.Communicator, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rank %d: transport aborted: %v", c.Rank(), r)
		}
	}()

	log = log.With().Int("rank", c.Rank()).Logger()

	mesh, err := NewMesh(cfg, c.Rank(), c.Size())
	if err != nil {
		return err
	}
	st := NewState(cfg, c.Rank())
	params := Parameters{
		BatchSize:      cfg.Transport.BatchSize,
		MaxBufferSize:  cfg.Transport.MaxBufferSize,
		CutoffFraction: cfg.Transport.CutoffFraction,
	}

	absE := make([]float64, mesh.NLocalCells())
	var censusPhotons []Photon

	for !st.Finished() {
		mesh.CalculatePhotonEnergy(st.Dt)
		globalSourceE := c.AllreduceFloat64(mesh.TotalPhotonE())

		if st.Step == 1 {
			censusPhotons = MakeInitialCensusPhotons(mesh, st.RNG, st.Dt, initialCensusPerCell)
		}
		st.PreCensusE = PhotonListE(censusPhotons)
		st.EmissionE = mesh.TotalPhotonE()

		source := NewSource(mesh, cfg.Source.NPhotons, globalSourceE, censusPhotons)
		st.TransParticles = source.NPhoton()

		for i := range absE {
			absE[i] = 0
		}
		censusPhotons = TransportParticlePass(source, mesh, st, params, absE, c, log)

		absorbed := 0.0
		for _, e := range absE {
			absorbed += e
		}
		st.AbsorbedE = absorbed
		mesh.UpdateTemperature(absE)

		st.PrintConservation(c, log)
		st.NextTimeStep()
	}

	if Trace && c.Rank() == 0 {
		traceStats(log)
	}
	return nil
}
