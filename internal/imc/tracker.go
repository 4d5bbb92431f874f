package imc

import "math"

// Tally accumulates the energy bookkeeping of one rank's step.
type Tally struct {
	ExitE   float64
	CensusE float64
	AbsE    []float64 // per local cell
}

// NewTally sizes the absorption scratchpad for the mesh.
func NewTally(m *Mesh) *Tally {
	return &Tally{AbsE: make([]float64, m.NLocalCells())}
}

// candidate distances, in tie-break priority order
const (
	evScatter = iota
	evBoundary
	evCensus
)

// TrackPhoton transports one photon through on-rank cells until a terminal
// local event and returns it. The tracker owns the photon for the duration of
// the call; on Pass the photon's cell field holds the off-rank global id.
func TrackPhoton(p *Photon, mesh *Mesh, rng *RNG, nextDT float64, cutoffFraction float64, tally *Tally) Event {
	cell := mesh.OnRankCell(p.Cell)
	ci := mesh.LocalIndex(p.Cell)

	legs := 0
	traveled := 0.0

	for {
		sigmaA := cell.OpA
		sigmaS := cell.OpS
		f := cell.F

		distScatter := -math.Log(rng.Uniform()) / ((1.0-f)*sigmaA + sigmaS)
		distBoundary, face := cell.DistanceToBoundary(p.Pos, p.Dir)
		distCensus := p.DistRemaining

		// argmin of the three, earlier candidate winning ties
		dist := distScatter
		which := evScatter
		if distBoundary < dist {
			dist = distBoundary
			which = evBoundary
		}
		if distCensus < dist {
			dist = distCensus
			which = evCensus
		}

		absorbed := p.E * (1.0 - math.Exp(-sigmaA*f*dist))
		p.E -= absorbed
		tally.AbsE[ci] += absorbed

		p.Move(dist)
		traveled += dist

		if p.BelowCutoff(cutoffFraction) {
			tally.AbsE[ci] += p.E
			p.Alive = false
			if Trace {
				logEvent(Kill, p, legs, traveled)
			}
			return Kill
		}

		switch which {
		case evScatter:
			p.Dir = rng.IsotropicDirection()

		case evBoundary:
			switch cell.BC[face] {
			case Element:
				p.Cell = cell.Next[face]
				cell = mesh.OnRankCell(p.Cell)
				ci = mesh.LocalIndex(p.Cell)
			case Processor:
				p.Cell = cell.Next[face]
				if Trace {
					logEvent(Pass, p, legs, traveled)
				}
				return Pass
			case Vacuum:
				tally.ExitE += p.E
				if Trace {
					logEvent(Exit, p, legs, traveled)
				}
				return Exit
			case Reflect:
				p.ReflectFace(face)
			}

		case evCensus:
			p.CensusFlag = true
			p.DistRemaining = C * nextDT
			tally.CensusE += p.E
			if Trace {
				logEvent(Census, p, legs, traveled)
			}
			return Census
		}
		legs++
	}
}
