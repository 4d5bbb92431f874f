package imc

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/abdoudiaw/branson/internal/comm"
)

// MessageCounter tallies the step's parallel events. Posted and completed
// counts must match at step exit; anything else is a leaked request.
type MessageCounter struct {
	NPhotonMessages    uint32
	NPhotonsSent       uint32
	NSendsPosted       uint32
	NSendsCompleted    uint32
	NReceivesPosted    uint32
	NReceivesCompleted uint32
}

// Parameters are the transport tunables from the deck.
type Parameters struct {
	BatchSize      int
	MaxBufferSize  int
	CutoffFraction float64
}

// TransportParticlePass runs one timestep of particle-passing transport on
// this rank and returns its census list, sorted by cell id for reproducible
// downstream output. Energy deposition accumulates into rankAbsE, one slot
// per local cell.
//
// The loop interleaves three activities until the completion tree declares
// global termination: track a batch of photons (received photons before
// source photons), progress the neighbor channels, progress the tree. All
// communication in the loop is non-blocking post/test; the only blocking
// waits are in the shutdown handshake.
func TransportParticlePass(source *Source, mesh *Mesh, st *State, params Parameters,
	rankAbsE []float64, c comm.Communicator, log zerolog.Logger) []Photon {

	nextDT := st.NextDT()
	dt := st.Dt
	rng := st.RNG

	tally := &Tally{AbsE: rankAbsE}

	nLocal := source.NPhoton()
	nGlobal := c.AllreduceUint64(nLocal)

	var ctr MessageCounter
	tree := newCompletionTree(c, nGlobal)
	channels := newNeighborChannels(c, mesh.Neighbors(), params.MaxBufferSize)

	tree.postReceives(&ctr)
	channels.postReceives(&ctr)

	var censusList []Photon
	var nComplete uint64
	var nLocalSourced uint64

	for !tree.finished() {
		// track up to a batch of photons, received photons first
		n := params.BatchSize
		for n > 0 && (!channels.stackEmpty() || nLocalSourced < nLocal) {
			p, fromStack := channels.pop()
			if !fromStack {
				p = source.Photon(rng, dt)
				nLocalSourced++
			}

			event := TrackPhoton(&p, mesh, rng, nextDT, params.CutoffFraction, tally)
			switch event {
			case Kill, Exit:
				nComplete++
			case Census:
				censusList = append(censusList, p)
				nComplete++
			case Pass:
				dst := mesh.OwnerRank(p.Cell)
				ib, ok := mesh.BufferIndex(dst)
				if !ok {
					panic(fmt.Sprintf("imc: cell %d crossed to rank %d with no adjacency entry", p.Cell, dst))
				}
				channels.stage(ib, p)
			default:
				panic(fmt.Sprintf("imc: unreachable %v event from tracker", event))
			}
			n--
		}

		channels.progress(nLocalSourced == nLocal, &ctr)
		tree.progress(&nComplete, nLocalSourced == nLocal && channels.stackEmpty(), &ctr)
	}

	// shutdown handshake: relay the total down, settle the tree, then drain
	// the neighbor channels so no posted request leaks
	tree.broadcastDown(&ctr)
	tree.drainParent(&ctr)
	tree.waitParentSend(&ctr)
	c.Barrier()
	tree.ackParent(&ctr)
	tree.waitChildren(&ctr)
	channels.shutdown(&ctr)
	c.Barrier()

	sort.SliceStable(censusList, func(i, j int) bool {
		return censusList[i].Cell < censusList[j].Cell
	})

	st.ExitE = tally.ExitE
	st.PostCensusE = tally.CensusE
	st.CensusSize = uint64(len(censusList))
	st.Ctr = ctr

	if Debug {
		log.Debug().
			Uint64("n_local", nLocal).
			Uint64("n_global", nGlobal).
			Uint32("photon_messages", ctr.NPhotonMessages).
			Uint32("photons_sent", ctr.NPhotonsSent).
			Uint32("sends_posted", ctr.NSendsPosted).
			Uint32("sends_completed", ctr.NSendsCompleted).
			Uint32("receives_posted", ctr.NReceivesPosted).
			Uint32("receives_completed", ctr.NReceivesCompleted).
			Msg("transport step done")
	}

	return censusList
}
