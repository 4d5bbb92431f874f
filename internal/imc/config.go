package imc

import (
	"fmt"

	gcfg "gopkg.in/gcfg.v1"
)

// Config is the input deck. Decks are INI files read with gcfg; variable
// names match the field names case-insensitively.
//
//	[mesh]
//	nx = 16
//	dx = 1.0
//	bcxlo = reflect
//	region = main
//
//	[region "main"]
//	density = 1.0
//	cv = 0.1
//	opaca = 3.0
type Config struct {
	Mesh struct {
		Nx, Ny, Nz int
		Dx, Dy, Dz float64
		// Domain boundary conditions, "reflect" or "vacuum".
		BCXLo, BCXHi string
		BCYLo, BCYHi string
		BCZLo, BCZHi string
		Region       string
	}
	Time struct {
		Dt     float64
		TStart float64
		TStop  float64
		DtMult float64
		DtMax  float64
	}
	Source struct {
		NPhotons uint64
	}
	Transport struct {
		BatchSize      int
		MaxBufferSize  int
		CutoffFraction float64
	}
	Parallel struct {
		NRanks int
	}
	Region map[string]*RegionCfg
}

// RegionCfg holds the material properties of one region. The absorption
// opacity model is sigma_a = density * (opacA + opacB * T^opacC), evaluated
// with T clamped at TempFloor so inverse-power laws stay finite; opacS is a
// constant scattering opacity.
type RegionCfg struct {
	Density float64
	Cv      float64
	OpacA   float64
	OpacB   float64
	OpacC   float64
	OpacS   float64
	TInit   float64 // initial material temperature
	TrInit  float64 // initial radiation temperature (seeds the first census)
}

func (r *RegionCfg) checkInit(name string) error {
	if r.Density <= 0 {
		return fmt.Errorf("region %q needs a positive density", name)
	}
	if r.Cv <= 0 {
		return fmt.Errorf("region %q needs a positive cv", name)
	}
	if r.TInit <= 0 {
		return fmt.Errorf("region %q needs a positive tinit", name)
	}
	if r.TrInit < 0 {
		return fmt.Errorf("region %q has a negative trinit", name)
	}
	return nil
}

func parseBC(s, name string) (BCType, error) {
	switch s {
	case "", "reflect":
		return Reflect, nil
	case "vacuum":
		return Vacuum, nil
	}
	return 0, fmt.Errorf("boundary %s: unknown condition %q", name, s)
}

// LoadConfig reads and validates a deck.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := gcfg.ReadFileInto(&cfg, path); err != nil {
		return nil, fmt.Errorf("reading deck %s: %w", path, err)
	}
	if err := cfg.checkInit(); err != nil {
		return nil, fmt.Errorf("deck %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) checkInit() error {
	m := &c.Mesh
	if m.Nx < 1 || m.Ny < 1 || m.Nz < 1 {
		return fmt.Errorf("mesh needs positive nx, ny, nz (got %d, %d, %d)", m.Nx, m.Ny, m.Nz)
	}
	if m.Dx <= 0 || m.Dy <= 0 || m.Dz <= 0 {
		return fmt.Errorf("mesh needs positive dx, dy, dz")
	}
	if m.Region == "" {
		if len(c.Region) != 1 {
			return fmt.Errorf("mesh.region must name a region when the deck has %d regions", len(c.Region))
		}
		for name := range c.Region {
			m.Region = name
		}
	}
	reg, ok := c.Region[m.Region]
	if !ok {
		return fmt.Errorf("mesh.region %q is not defined", m.Region)
	}
	if err := reg.checkInit(m.Region); err != nil {
		return err
	}

	t := &c.Time
	if t.Dt <= 0 {
		return fmt.Errorf("time.dt must be positive")
	}
	if t.TStop <= t.TStart {
		return fmt.Errorf("time.tstop must be after time.tstart")
	}
	if t.DtMult == 0 {
		t.DtMult = 1.0
	}
	if t.DtMax == 0 {
		t.DtMax = t.Dt
	}

	if c.Source.NPhotons == 0 {
		return fmt.Errorf("source.nphotons must be positive")
	}

	tr := &c.Transport
	if tr.BatchSize == 0 {
		tr.BatchSize = DefaultBatchSize
	}
	if tr.MaxBufferSize == 0 {
		tr.MaxBufferSize = DefaultMaxBufferSize
	}
	if tr.CutoffFraction == 0 {
		tr.CutoffFraction = DefaultCutoffFraction
	}

	if c.Parallel.NRanks == 0 {
		c.Parallel.NRanks = 1
	}
	if c.Parallel.NRanks < 0 {
		return fmt.Errorf("parallel.nranks must be positive")
	}
	total := m.Nx * m.Ny * m.Nz
	if c.Parallel.NRanks > total {
		return fmt.Errorf("parallel.nranks %d exceeds the %d mesh cells", c.Parallel.NRanks, total)
	}

	for _, bc := range []struct{ v, name string }{
		{m.BCXLo, "bcxlo"}, {m.BCXHi, "bcxhi"},
		{m.BCYLo, "bcylo"}, {m.BCYHi, "bcyhi"},
		{m.BCZLo, "bczlo"}, {m.BCZHi, "bczhi"},
	} {
		if _, err := parseBC(bc.v, bc.name); err != nil {
			return err
		}
	}
	return nil
}

// domainBCs resolves the six deck boundary strings; checkInit already
// validated them.
func (c *Config) domainBCs() [6]BCType {
	var out [6]BCType
	for i, s := range []string{
		c.Mesh.BCXLo, c.Mesh.BCXHi,
		c.Mesh.BCYLo, c.Mesh.BCYHi,
		c.Mesh.BCZLo, c.Mesh.BCZHi,
	} {
		bc, _ := parseBC(s, "")
		out[i] = bc
	}
	return out
}
