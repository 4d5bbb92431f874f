// Package imc implements domain-decomposed Implicit Monte Carlo
// thermal-radiative transport with particle passing: photons are tracked
// through on-rank cells, forwarded to the owning rank when they cross a
// processor boundary, and a binary tree over ranks detects global completion
// of the timestep without barriers in the work phase.
package imc

// Physical constants in cm-shake-keV-jerk units.
const (
	Pi = 3.1415926535897932384626433832795
	C  = 299.792458 // speed of light in cm/shake
	A  = 0.01372    // radiation constant in jerks/cm^3/keV^4
)

// BCType tags one face of a cell.
type BCType uint8

const (
	Reflect BCType = iota
	Vacuum
	Element   // next cell resolves on this rank
	Processor // next cell lives on another rank
)

func (b BCType) String() string {
	switch b {
	case Reflect:
		return "reflect"
	case Vacuum:
		return "vacuum"
	case Element:
		return "element"
	case Processor:
		return "processor"
	}
	return "unknown"
}

// Face indexes the six faces of a brick cell.
type Face int

const (
	XNeg Face = iota
	XPos
	YNeg
	YPos
	ZNeg
	ZPos
)

// Event is the terminal local outcome of tracking one photon.
type Event uint8

const (
	Kill   Event = iota // Russian roulette absorbed the remaining energy
	Exit                // escaped through a vacuum face
	Pass                // crossed onto another rank
	Census              // reached the end of the timestep
	Wait                // listed for parity with the event set; never produced
)

func (e Event) String() string {
	switch e {
	case Kill:
		return "kill"
	case Exit:
		return "exit"
	case Pass:
		return "pass"
	case Census:
		return "census"
	case Wait:
		return "wait"
	}
	return "unknown"
}

// TempFloor clamps the material temperature wherever the opacity model reads
// it. Inverse-power laws (opacc < 0, e.g. the 1/T^3 model) diverge as T
// approaches zero, and a cell that radiates faster than it absorbs would
// otherwise walk T to zero or below and poison the opacities.
const TempFloor = 1.0e-3

// Transport defaults, overridable from the [transport] deck section.
const (
	DefaultBatchSize      = 100
	DefaultMaxBufferSize  = 2000
	DefaultCutoffFraction = 0.01
)
