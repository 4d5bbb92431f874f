package imc

import (
	"fmt"
	"math"
	"sort"
)

// Neighbor is one adjacent rank. Index is dense in [0, n_adjacent) and fixed
// for the step; buffers and outboxes are addressed by it.
type Neighbor struct {
	Rank  int
	Index int
}

// Mesh is this rank's slab of a global cartesian brick mesh. Cells are
// numbered globally as g = i + j*nx + k*nx*ny and partitioned into contiguous
// id ranges, one per rank; bounds records where each rank's range starts so
// any global id resolves to its owner.
type Mesh struct {
	rank  int
	nRank int

	nx, ny, nz uint32
	bounds     []uint32 // len nRank+1; rank r owns [bounds[r], bounds[r+1])
	cells      []Cell

	region RegionCfg

	neighbors []Neighbor  // ascending by rank
	adjacency map[int]int // neighbor rank -> dense buffer index

	emissionE    []float64 // per local cell, set each step
	totalPhotonE float64
}

// NewMesh builds the on-rank portion of the deck's mesh for the given rank.
func NewMesh(cfg *Config, rank, nRank int) (*Mesh, error) {
	nx, ny, nz := uint32(cfg.Mesh.Nx), uint32(cfg.Mesh.Ny), uint32(cfg.Mesh.Nz)
	total := nx * ny * nz
	if uint32(nRank) > total {
		return nil, fmt.Errorf("imc: %d ranks for %d cells", nRank, total)
	}

	bounds := partition(total, uint32(nRank))
	m := &Mesh{
		rank:   rank,
		nRank:  nRank,
		nx:     nx,
		ny:     ny,
		nz:     nz,
		bounds: bounds,
		region: *cfg.Region[cfg.Mesh.Region],
	}

	domainBC := cfg.domainBCs()
	dx, dy, dz := cfg.Mesh.Dx, cfg.Mesh.Dy, cfg.Mesh.Dz

	start, end := bounds[rank], bounds[rank+1]
	m.cells = make([]Cell, 0, end-start)
	for g := start; g < end; g++ {
		i := g % nx
		j := (g / nx) % ny
		k := g / (nx * ny)
		c := Cell{
			ID: g,
			T:  m.region.TInit,
			Nodes: [6]float64{
				float64(i) * dx, float64(i+1) * dx,
				float64(j) * dy, float64(j+1) * dy,
				float64(k) * dz, float64(k+1) * dz,
			},
		}
		type faceDef struct {
			face     Face
			interior bool
			next     uint32
		}
		defs := [6]faceDef{
			{XNeg, i > 0, g - 1},
			{XPos, i < nx-1, g + 1},
			{YNeg, j > 0, g - nx},
			{YPos, j < ny-1, g + nx},
			{ZNeg, k > 0, g - nx*ny},
			{ZPos, k < nz-1, g + nx*ny},
		}
		for _, d := range defs {
			if !d.interior {
				c.BC[d.face] = domainBC[d.face]
				continue
			}
			c.Next[d.face] = d.next
			if m.OwnerRank(d.next) == rank {
				c.BC[d.face] = Element
			} else {
				c.BC[d.face] = Processor
			}
		}
		m.cells = append(m.cells, c)
	}

	m.buildAdjacency()
	m.emissionE = make([]float64, len(m.cells))
	return m, nil
}

// partition splits total ids into nRank contiguous ranges, the remainder
// spread over the leading ranks.
func partition(total, nRank uint32) []uint32 {
	bounds := make([]uint32, nRank+1)
	base := total / nRank
	rem := total % nRank
	for r := uint32(0); r < nRank; r++ {
		count := base
		if r < rem {
			count++
		}
		bounds[r+1] = bounds[r] + count
	}
	return bounds
}

func (m *Mesh) buildAdjacency() {
	seen := map[int]struct{}{}
	for ci := range m.cells {
		c := &m.cells[ci]
		for f := 0; f < 6; f++ {
			if c.BC[f] != Processor {
				continue
			}
			seen[m.OwnerRank(c.Next[f])] = struct{}{}
		}
	}
	ranks := make([]int, 0, len(seen))
	for r := range seen {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	m.adjacency = make(map[int]int, len(ranks))
	m.neighbors = make([]Neighbor, len(ranks))
	for i, r := range ranks {
		m.adjacency[r] = i
		m.neighbors[i] = Neighbor{Rank: r, Index: i}
	}
}

// OwnerRank returns the rank owning a global cell id.
func (m *Mesh) OwnerRank(g uint32) int {
	// first bound above g, minus one
	return sort.Search(m.nRank, func(r int) bool { return m.bounds[r+1] > g })
}

// OnRankCell resolves a global id owned by this rank.
func (m *Mesh) OnRankCell(g uint32) *Cell {
	start := m.bounds[m.rank]
	if g < start || g >= m.bounds[m.rank+1] {
		panic(fmt.Sprintf("imc: cell %d is not on rank %d", g, m.rank))
	}
	return &m.cells[g-start]
}

// LocalIndex maps an on-rank global id to its dense local index.
func (m *Mesh) LocalIndex(g uint32) int {
	return int(g - m.bounds[m.rank])
}

// NLocalCells returns the number of on-rank cells.
func (m *Mesh) NLocalCells() int { return len(m.cells) }

// Neighbors returns the adjacent ranks in ascending order with their dense
// buffer indices.
func (m *Mesh) Neighbors() []Neighbor { return m.neighbors }

// BufferIndex returns the dense buffer index for a neighbor rank; ok is false
// when the rank is not adjacent (a mesh inconsistency for PASS traffic).
func (m *Mesh) BufferIndex(rank int) (int, bool) {
	i, ok := m.adjacency[rank]
	return i, ok
}

// CalculatePhotonEnergy recomputes per-cell opacities, the Fleck factor, and
// the emission energy for the step's dt. The temperature feeding the opacity
// law is clamped at TempFloor.
func (m *Mesh) CalculatePhotonEnergy(dt float64) {
	r := &m.region
	m.totalPhotonE = 0
	for ci := range m.cells {
		c := &m.cells[ci]
		T := math.Max(c.T, TempFloor)
		kappa := r.OpacA + r.OpacB*math.Pow(T, r.OpacC)
		c.OpA = r.Density * kappa
		c.OpS = r.OpacS
		beta := 4.0 * A * T * T * T / (r.Cv * r.Density)
		c.F = 1.0 / (1.0 + beta*c.OpA*C*dt)
		e := dt * A * C * c.OpA * c.F * T * T * T * T * c.Volume()
		m.emissionE[ci] = e
		m.totalPhotonE += e
	}
}

// TotalPhotonE returns this rank's emission energy for the step, valid after
// CalculatePhotonEnergy.
func (m *Mesh) TotalPhotonE() float64 { return m.totalPhotonE }

// EmissionE returns the step emission energy of a local cell.
func (m *Mesh) EmissionE(ci int) float64 { return m.emissionE[ci] }

// UpdateTemperature deposits the step's absorbed energy and removes the
// emitted energy from the material.
func (m *Mesh) UpdateTemperature(absE []float64) {
	r := &m.region
	for ci := range m.cells {
		c := &m.cells[ci]
		heatCap := r.Cv * r.Density * c.Volume()
		c.T += (absE[ci] - m.emissionE[ci]) / heatCap
		if c.T < TempFloor {
			c.T = TempFloor
		}
	}
}

// InitialRadiationE returns the initial radiation field energy of a local
// cell, used to seed the first step's census.
func (m *Mesh) InitialRadiationE(ci int) float64 {
	Tr := m.region.TrInit
	return A * Tr * Tr * Tr * Tr * m.cells[ci].Volume()
}

// Cells exposes the on-rank cells, indexed by LocalIndex.
func (m *Mesh) Cells() []Cell { return m.cells }
