package imc

// Source owes this rank a fixed number of photons for the step: the census
// photons carried over from the previous step plus fresh emission photons in
// proportion to each cell's emission energy. NPhoton is fixed at
// construction; the driver draws until the source is exhausted.
type Source struct {
	mesh *Mesh

	census []Photon

	cellCount   []uint64  // emission photons still to draw, per local cell
	cellPhotonE []float64 // energy per emission photon, per local cell

	n     uint64
	drawn uint64
	iCell int
}

// NewSource builds the step's source. globalSourceE is the allreduced source
// energy across all ranks; nUserPhoton is the requested global photon count,
// which the energy share of each cell converts into per-cell counts (at least
// one per emitting cell).
func NewSource(m *Mesh, nUserPhoton uint64, globalSourceE float64, census []Photon) *Source {
	s := &Source{
		mesh:        m,
		census:      census,
		cellCount:   make([]uint64, m.NLocalCells()),
		cellPhotonE: make([]float64, m.NLocalCells()),
		n:           uint64(len(census)),
	}
	for ci := range s.cellCount {
		e := m.EmissionE(ci)
		if e <= 0 {
			continue
		}
		count := uint64(float64(nUserPhoton) * e / globalSourceE)
		if count == 0 {
			count = 1
		}
		s.cellCount[ci] = count
		s.cellPhotonE[ci] = e / float64(count)
		s.n += count
	}
	return s
}

// NPhoton returns the total number of photons this source owes the rank.
func (s *Source) NPhoton() uint64 { return s.n }

// Remaining reports how many photons have not yet been drawn.
func (s *Source) Remaining() uint64 { return s.n - s.drawn }

// Photon draws the next photon: carried census photons first, then emission
// photons cell by cell. Drawing past NPhoton is a programmer error.
func (s *Source) Photon(rng *RNG, dt float64) Photon {
	if s.drawn == s.n {
		panic("imc: source exhausted")
	}
	s.drawn++

	if len(s.census) > 0 {
		p := s.census[len(s.census)-1]
		s.census = s.census[:len(s.census)-1]
		p.CensusFlag = false
		return p
	}

	for s.cellCount[s.iCell] == 0 {
		s.iCell++
	}
	s.cellCount[s.iCell]--

	cell := &s.mesh.Cells()[s.iCell]
	e := s.cellPhotonE[s.iCell]
	return Photon{
		Cell:          cell.ID,
		Pos:           cell.UniformPosition(rng),
		Dir:           rng.IsotropicDirection(),
		E:             e,
		E0:            e,
		DistRemaining: rng.Uniform() * C * dt,
		Alive:         true,
	}
}

// MakeInitialCensusPhotons seeds the first timestep's census from the initial
// radiation field, nPerCell photons in every cell.
func MakeInitialCensusPhotons(m *Mesh, rng *RNG, dt float64, nPerCell int) []Photon {
	cells := m.Cells()
	photons := make([]Photon, 0, len(cells)*nPerCell)
	for ci := range cells {
		e := m.InitialRadiationE(ci)
		if e <= 0 {
			continue
		}
		pe := e / float64(nPerCell)
		for i := 0; i < nPerCell; i++ {
			photons = append(photons, Photon{
				Cell:          cells[ci].ID,
				Pos:           cells[ci].UniformPosition(rng),
				Dir:           rng.IsotropicDirection(),
				E:             pe,
				E0:            pe,
				DistRemaining: C * dt,
				CensusFlag:    true,
				Alive:         true,
			})
		}
	}
	return photons
}

// PhotonListE sums the energy of a photon list.
func PhotonListE(ps []Photon) float64 {
	e := 0.0
	for i := range ps {
		e += ps[i].E
	}
	return e
}
