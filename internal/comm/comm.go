// Package comm provides the point-to-point message layer used by the
// particle-passing transport. It presents an MPI-like surface: every rank
// holds a Communicator, posts non-blocking sends and receives that complete
// through Test/Wait, and joins collective reductions and barriers. Two
// implementations exist: an in-process world that runs all ranks as
// goroutines of one binary, and a socket world that connects one process per
// rank over websockets. Messages between the same pair of ranks on the same
// tag are delivered in send order.
package comm

// ProcNull marks an absent peer (no parent at the root, missing children at
// the leaves).
const ProcNull = -1

// Wire tags. Collective traffic of the socket world uses the reserved range
// starting at barrierTag and never collides with these.
const (
	CountTag  = 4 // completion counts, one uint64
	PhotonTag = 5 // photon batches
)

const (
	barrierTag = 1 << 16
	reduceTag  = barrierTag + 1
	helloTag   = barrierTag + 2
)

// Request is one posted non-blocking operation. Test polls for completion and
// is idempotent once it has returned true. Wait blocks until completion. Data
// returns the received payload of a completed receive; it returns nil for
// sends and for receives that have not completed.
type Request interface {
	Test() bool
	Wait()
	Data() []byte
}

// Communicator is the per-rank handle to the message layer. Isend takes
// ownership of nothing: the payload is captured at post time and the caller's
// slice may be reused once Test has returned true. Irecv matches the oldest
// unconsumed message from src with the given tag.
type Communicator interface {
	Rank() int
	Size() int

	Isend(dst, tag int, payload []byte) Request
	Irecv(src, tag int) Request

	Barrier()
	AllreduceUint64(x uint64) uint64
	AllreduceFloat64(x float64) float64
}
