package imc

import (
	"fmt"

	"github.com/abdoudiaw/branson/internal/comm"
)

// neighborChannels owns the photon traffic with adjacent ranks: per neighbor
// a staging outbox, one in-flight send buffer, and one parked receive buffer.
// Received photons land on a single LIFO stack shared with the driver; the
// most recently received photon is tracked next, which keeps its cells warm
// and stops PASS cycles from growing the backlog unboundedly.
type neighborChannels struct {
	c         comm.Communicator
	neighbors []Neighbor

	outbox  [][]Photon
	sendBuf []Buffer[Photon]
	recvBuf []Buffer[Photon]
	sendReq []comm.Request
	recvReq []comm.Request

	recvStack []Photon

	maxBufferSize int
}

func newNeighborChannels(c comm.Communicator, neighbors []Neighbor, maxBufferSize int) *neighborChannels {
	n := len(neighbors)
	return &neighborChannels{
		c:             c,
		neighbors:     neighbors,
		outbox:        make([][]Photon, n),
		sendBuf:       make([]Buffer[Photon], n),
		recvBuf:       make([]Buffer[Photon], n),
		sendReq:       make([]comm.Request, n),
		recvReq:       make([]comm.Request, n),
		maxBufferSize: maxBufferSize,
	}
}

// postReceives parks one photon receive per neighbor.
func (nc *neighborChannels) postReceives(ctr *MessageCounter) {
	for i, nb := range nc.neighbors {
		nc.recvReq[i] = nc.c.Irecv(nb.Rank, comm.PhotonTag)
		ctr.NReceivesPosted++
		nc.recvBuf[i].SetAwaiting()
	}
}

// stage queues a passed photon for its neighbor's next send.
func (nc *neighborChannels) stage(i int, p Photon) {
	nc.outbox[i] = append(nc.outbox[i], p)
}

// stackEmpty reports whether any received photon is waiting to be tracked.
func (nc *neighborChannels) stackEmpty() bool { return len(nc.recvStack) == 0 }

// pop takes the most recently received photon.
func (nc *neighborChannels) pop() (Photon, bool) {
	if len(nc.recvStack) == 0 {
		return Photon{}, false
	}
	p := nc.recvStack[len(nc.recvStack)-1]
	nc.recvStack = nc.recvStack[:len(nc.recvStack)-1]
	return p, true
}

// progress drives every neighbor channel one step, in fixed ascending rank
// order: complete a drained send, post a new send when the policy allows,
// drain a completed receive and re-post it.
//
// A send posts only when the previous one has drained and either a full
// message's worth of photons is staged or the local source is exhausted
// (sourceDone) — partial messages are worth sending once no further local
// work can top them up.
func (nc *neighborChannels) progress(sourceDone bool, ctr *MessageCounter) {
	for i, nb := range nc.neighbors {
		if nc.sendBuf[i].Sent() && nc.sendReq[i].Test() {
			ctr.NSendsCompleted++
			nc.sendBuf[i].Reset()
		}

		if nc.sendBuf[i].Empty() && len(nc.outbox[i]) > 0 &&
			(len(nc.outbox[i]) >= nc.maxBufferSize || sourceDone) {
			n := nc.maxBufferSize
			if len(nc.outbox[i]) < n {
				n = len(nc.outbox[i])
			}
			batch := make([]Photon, n)
			copy(batch, nc.outbox[i][:n])
			nc.outbox[i] = nc.outbox[i][n:]
			nc.sendBuf[i].Fill(batch)
			ctr.NPhotonsSent += uint32(n)
			nc.sendReq[i] = nc.c.Isend(nb.Rank, comm.PhotonTag, EncodePhotons(batch))
			ctr.NSendsPosted++
			nc.sendBuf[i].SetSent()
			ctr.NPhotonMessages++
		}

		if nc.recvBuf[i].Awaiting() && nc.recvReq[i].Test() {
			ctr.NReceivesCompleted++
			received, err := DecodePhotons(nc.recvReq[i].Data())
			if err != nil {
				panic(fmt.Sprintf("imc: photon message from rank %d: %v", nb.Rank, err))
			}
			nc.recvBuf[i].Receive(received)
			nc.recvStack = append(nc.recvStack, nc.recvBuf[i].Storage()...)
			nc.recvBuf[i].Reset()
			nc.recvReq[i] = nc.c.Irecv(nb.Rank, comm.PhotonTag)
			ctr.NReceivesPosted++
			nc.recvBuf[i].SetAwaiting()
		}
	}
}

// shutdown runs after global termination: drain in-flight sends, send one
// empty payload per neighbor to consume its parked receive, then complete our
// own parked receives with the neighbors' empty payloads.
func (nc *neighborChannels) shutdown(ctr *MessageCounter) {
	for i, nb := range nc.neighbors {
		if nc.sendBuf[i].Sent() {
			nc.sendReq[i].Wait()
			ctr.NSendsCompleted++
			nc.sendBuf[i].Reset()
		}
		req := nc.c.Isend(nb.Rank, comm.PhotonTag, nil)
		ctr.NSendsPosted++
		req.Wait()
		ctr.NSendsCompleted++
	}

	for i, nb := range nc.neighbors {
		nc.recvReq[i].Wait()
		ctr.NReceivesCompleted++
		received, err := DecodePhotons(nc.recvReq[i].Data())
		if err != nil || len(received) != 0 {
			panic(fmt.Sprintf("imc: expected empty drain message from rank %d, got %d photons (err %v)",
				nb.Rank, len(received), err))
		}
		nc.recvBuf[i].Receive(received)
		nc.recvBuf[i].Reset()
	}
}
