package imc

import (
	"math"
	"testing"
)

// trackerMesh builds a single-rank mesh and overrides the transport
// coefficients directly; the tracker only reads OpA, OpS and F.
func trackerMesh(t *testing.T, nx int, bcXHi string, opA, opS, f float64) *Mesh {
	t.Helper()
	cfg := testConfig(nx, 1, 1, 1)
	cfg.Mesh.BCXHi = bcXHi
	m, err := NewMesh(cfg, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	for ci := range m.Cells() {
		c := &m.Cells()[ci]
		c.OpA, c.OpS, c.F = opA, opS, f
	}
	return m
}

func TestTrackAbsorbedToKill(t *testing.T) {
	// sigma_a=1, f=1: no scattering is possible, the photon bounces between
	// reflecting walls until roulette kills it
	m := trackerMesh(t, 1, "reflect", 1.0, 0.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1e12, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Kill {
		t.Fatalf("event %v, want kill", event)
	}
	if p.Alive {
		t.Fatal("killed photon still alive")
	}
	if math.Abs(tally.AbsE[0]-1.0) > 1e-12 {
		t.Fatalf("absorbed %g, want all of the initial energy", tally.AbsE[0])
	}
	if tally.ExitE != 0 || tally.CensusE != 0 {
		t.Fatalf("exit %g census %g, want 0", tally.ExitE, tally.CensusE)
	}
}

func TestTrackVacuumExit(t *testing.T) {
	m := trackerMesh(t, 1, "vacuum", 0.0, 0.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1e12, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Exit {
		t.Fatalf("event %v, want exit", event)
	}
	if tally.ExitE != 1.0 {
		t.Fatalf("exit energy %g, want 1", tally.ExitE)
	}
	if math.Abs(p.Pos[0]-1.0) > 1e-12 {
		t.Fatalf("exit position %g, want the vacuum face", p.Pos[0])
	}
}

func TestTrackAbsorptionAlongLeg(t *testing.T) {
	m := trackerMesh(t, 1, "vacuum", 1.0, 0.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1e12, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Exit {
		t.Fatalf("event %v, want exit", event)
	}
	wantAbs := 1.0 - math.Exp(-0.5)
	if math.Abs(tally.AbsE[0]-wantAbs) > 1e-12 {
		t.Fatalf("absorbed %g, want %g", tally.AbsE[0], wantAbs)
	}
	if math.Abs(tally.ExitE-math.Exp(-0.5)) > 1e-12 {
		t.Fatalf("exit energy %g, want %g", tally.ExitE, math.Exp(-0.5))
	}
}

func TestTrackReflectThenCensus(t *testing.T) {
	m := trackerMesh(t, 1, "reflect", 0.0, 0.0, 1.0)
	tally := NewTally(m)

	const nextDT = 0.02
	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{-1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1.2, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), nextDT, 0.01, tally)

	if event != Census {
		t.Fatalf("event %v, want census", event)
	}
	if p.Dir[0] != 1.0 {
		t.Fatalf("direction %v, want the normal component inverted", p.Dir)
	}
	if math.Abs(p.Pos[0]-0.7) > 1e-12 {
		t.Fatalf("census position %g, want 0.7", p.Pos[0])
	}
	if !p.CensusFlag {
		t.Fatal("census flag not set")
	}
	if p.DistRemaining != C*nextDT {
		t.Fatalf("distance to census %g, want %g", p.DistRemaining, C*nextDT)
	}
	if tally.CensusE != 1.0 {
		t.Fatalf("census energy %g, want 1", tally.CensusE)
	}
}

func TestTrackElementCrossing(t *testing.T) {
	m := trackerMesh(t, 2, "reflect", 0.0, 0.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1.2, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Census {
		t.Fatalf("event %v, want census", event)
	}
	if p.Cell != 1 {
		t.Fatalf("ended in cell %d, want 1", p.Cell)
	}
}

func TestTrackProcessorCrossingReturnsPass(t *testing.T) {
	cfg := testConfig(2, 1, 1, 2)
	m, err := NewMesh(cfg, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	c := m.OnRankCell(0)
	c.OpA, c.OpS, c.F = 0.0, 0.0, 1.0

	tally := NewTally(m)
	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 1e12, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Pass {
		t.Fatalf("event %v, want pass", event)
	}
	if p.Cell != 1 {
		t.Fatalf("pass photon carries cell %d, want the off-rank id 1", p.Cell)
	}
	if !p.Alive {
		t.Fatal("passed photon must stay alive")
	}
}

func TestTrackBoundaryWinsTieWithCensus(t *testing.T) {
	// boundary and census at exactly the same distance: the dispatch order
	// scatter, boundary, census resolves the tie toward the boundary
	m := trackerMesh(t, 1, "vacuum", 0.0, 0.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 0.5, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(1), 0.01, 0.01, tally)

	if event != Exit {
		t.Fatalf("event %v, want the boundary to win the tie", event)
	}
}

func TestTrackPureScatterReachesCensus(t *testing.T) {
	// pure scattering: the photon must reach census eventually, never exit
	// through the reflecting walls, and deposit nothing
	m := trackerMesh(t, 1, "reflect", 0.0, 5.0, 1.0)
	tally := NewTally(m)

	p := Photon{Cell: 0, Pos: Vec3{0.5, 0.5, 0.5}, Dir: Vec3{1, 0, 0},
		E: 1.0, E0: 1.0, DistRemaining: 3.0, Alive: true}
	event := TrackPhoton(&p, m, NewRNG(7), 0.01, 0.01, tally)

	if event != Census {
		t.Fatalf("event %v, want census", event)
	}
	if tally.AbsE[0] != 0 {
		t.Fatalf("pure scatter deposited %g", tally.AbsE[0])
	}
}
