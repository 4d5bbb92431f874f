package imc

import (
	"fmt"

	"github.com/abdoudiaw/branson/internal/comm"
)

// completionTree aggregates completed-history counts over a complete binary
// tree of ranks. Counts flow upward whenever a rank has something to report
// and cannot generate more work; the root recognizes the global total and
// broadcasts it back down. The root never resets its tree count.
type completionTree struct {
	c       comm.Communicator
	parent  int
	child1  int
	child2  int
	nGlobal uint64

	treeCount   uint64 // this rank's subtree total awaiting forwarding
	parentCount uint64 // final total received from the parent
	c1Count     uint64 // latest value from child1
	c2Count     uint64 // latest value from child2

	c1Recv, c2Recv, pRecv Buffer[uint64]
	c1Send, c2Send, pSend Buffer[uint64]

	c1RecvReq, c2RecvReq, pRecvReq comm.Request
	pSendReq                       comm.Request
}

func newCompletionTree(c comm.Communicator, nGlobal uint64) *completionTree {
	rank, n := c.Rank(), c.Size()
	t := &completionTree{
		c:       c,
		nGlobal: nGlobal,
		parent:  (rank+1)/2 - 1,
		child1:  2*rank + 1,
		child2:  2*rank + 2,
	}
	if rank == 0 {
		t.parent = comm.ProcNull
	}
	lastNode := n - 1
	if t.child1 > lastNode {
		t.child1 = comm.ProcNull
		t.child2 = comm.ProcNull
	} else if t.child1 == lastNode {
		t.child2 = comm.ProcNull
	}
	return t
}

// postReceives parks one count receive per existing child and parent.
func (t *completionTree) postReceives(ctr *MessageCounter) {
	if t.child1 != comm.ProcNull {
		t.c1RecvReq = t.c.Irecv(t.child1, comm.CountTag)
		ctr.NReceivesPosted++
		t.c1Recv.SetAwaiting()
	}
	if t.child2 != comm.ProcNull {
		t.c2RecvReq = t.c.Irecv(t.child2, comm.CountTag)
		ctr.NReceivesPosted++
		t.c2Recv.SetAwaiting()
	}
	if t.parent != comm.ProcNull {
		t.pRecvReq = t.c.Irecv(t.parent, comm.CountTag)
		ctr.NReceivesPosted++
		t.pRecv.SetAwaiting()
	}
}

func (t *completionTree) decode(payload []byte) uint64 {
	v, err := DecodeCount(payload)
	if err != nil {
		panic(fmt.Sprintf("imc: completion tree: %v", err))
	}
	return v
}

// progress rolls freshly completed work into the tree count, drains child and
// parent messages, and forwards the count upward when reporting cannot
// prematurely hide still-spawnable work (readyToReport: the local source is
// exhausted and the receive stack is empty).
func (t *completionTree) progress(nComplete *uint64, readyToReport bool, ctr *MessageCounter) {
	// child counts accumulate into this subtree, then the receive re-posts
	if t.c1Recv.Awaiting() && t.c1RecvReq.Test() {
		ctr.NReceivesCompleted++
		t.c1Recv.Receive([]uint64{t.decode(t.c1RecvReq.Data())})
		t.c1Count = t.c1Recv.Storage()[0]
		t.treeCount += t.c1Count
		t.c1Recv.Reset()
		t.c1RecvReq = t.c.Irecv(t.child1, comm.CountTag)
		ctr.NReceivesPosted++
		t.c1Recv.SetAwaiting()
	}
	if t.c2Recv.Awaiting() && t.c2RecvReq.Test() {
		ctr.NReceivesCompleted++
		t.c2Recv.Receive([]uint64{t.decode(t.c2RecvReq.Data())})
		t.c2Count = t.c2Recv.Storage()[0]
		t.treeCount += t.c2Count
		t.c2Recv.Reset()
		t.c2RecvReq = t.c.Irecv(t.child2, comm.CountTag)
		ctr.NReceivesPosted++
		t.c2Recv.SetAwaiting()
	}

	// the parent speaks once, to broadcast the global total; no re-post
	if t.pRecv.Awaiting() && t.pRecvReq.Test() {
		ctr.NReceivesCompleted++
		t.pRecv.Receive([]uint64{t.decode(t.pRecvReq.Data())})
		t.parentCount = t.pRecv.Storage()[0]
	}

	if t.pSend.Sent() && t.pSendReq.Test() {
		ctr.NSendsCompleted++
		t.pSend.Reset()
	}

	t.treeCount += *nComplete
	*nComplete = 0

	// Forwarding zeroes the count so work is never double reported; more
	// completions may arrive afterwards and go up in a later message.
	if t.parent != comm.ProcNull && t.treeCount > 0 && t.pSend.Empty() && readyToReport {
		t.pSend.Fill([]uint64{t.treeCount})
		t.pSendReq = t.c.Isend(t.parent, comm.CountTag, EncodeCount(t.treeCount))
		ctr.NSendsPosted++
		t.pSend.SetSent()
		t.treeCount = 0
	}
}

// finished reports step termination: the root saw every history through its
// own subtree, or the root's broadcast reached us.
func (t *completionTree) finished() bool {
	return (t.parent == comm.ProcNull && t.treeCount == t.nGlobal) ||
		t.parentCount == t.nGlobal
}

// broadcastDown relays the global total to both children and waits for the
// sends to drain.
func (t *completionTree) broadcastDown(ctr *MessageCounter) {
	if t.child1 != comm.ProcNull {
		t.c1Send.Fill([]uint64{t.nGlobal})
		req := t.c.Isend(t.child1, comm.CountTag, EncodeCount(t.nGlobal))
		ctr.NSendsPosted++
		t.c1Send.SetSent()
		req.Wait()
		ctr.NSendsCompleted++
		t.c1Send.Reset()
	}
	if t.child2 != comm.ProcNull {
		t.c2Send.Fill([]uint64{t.nGlobal})
		req := t.c.Isend(t.child2, comm.CountTag, EncodeCount(t.nGlobal))
		ctr.NSendsPosted++
		t.c2Send.SetSent()
		req.Wait()
		ctr.NSendsCompleted++
		t.c2Send.Reset()
	}
}

// drainParent completes the broadcast receive when the loop exited without
// consuming it, which happens only on a step with no work at all (n_global of
// zero finishes every rank before the broadcast lands). Also clears a
// consumed broadcast so the buffer ends the step Empty.
func (t *completionTree) drainParent(ctr *MessageCounter) {
	if t.pRecv.Awaiting() {
		t.pRecvReq.Wait()
		ctr.NReceivesCompleted++
		t.pRecv.Receive([]uint64{t.decode(t.pRecvReq.Data())})
	}
	if t.pRecv.Received() {
		t.pRecv.Reset()
	}
}

// waitParentSend drains an upward count still in flight.
func (t *completionTree) waitParentSend(ctr *MessageCounter) {
	if t.pSend.Sent() {
		t.pSendReq.Wait()
		ctr.NSendsCompleted++
		t.pSend.Reset()
	}
}

// ackParent sends the one-element ack that consumes the parent's parked child
// receive. Without it that posted receive would never complete.
func (t *completionTree) ackParent(ctr *MessageCounter) {
	if t.parent == comm.ProcNull {
		return
	}
	t.pSend.Fill([]uint64{1})
	req := t.c.Isend(t.parent, comm.CountTag, EncodeCount(1))
	ctr.NSendsPosted++
	t.pSend.SetSent()
	req.Wait()
	ctr.NSendsCompleted++
	t.pSend.Reset()
}

// waitChildren completes the child receives re-posted during the work loop;
// they are matched by each child's ack.
func (t *completionTree) waitChildren(ctr *MessageCounter) {
	if t.child1 != comm.ProcNull {
		t.c1RecvReq.Wait()
		ctr.NReceivesCompleted++
		t.c1Recv.Receive([]uint64{t.decode(t.c1RecvReq.Data())})
		t.c1Recv.Reset()
	}
	if t.child2 != comm.ProcNull {
		t.c2RecvReq.Wait()
		ctr.NReceivesCompleted++
		t.c2Recv.Receive([]uint64{t.decode(t.c2RecvReq.Data())})
		t.c2Recv.Reset()
	}
}
