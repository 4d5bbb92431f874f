package comm

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SocketWorld connects one process per rank over a full mesh of websocket
// links. Each rank serves an HTTP endpoint at its own address and dials every
// lower rank; the dialer announces its rank in a hello frame so the acceptor
// knows which peer arrived. Frames are binary: a little-endian uint32 tag
// followed by the payload. A reader goroutine per link feeds the same mailbox
// structure the in-process world uses, which preserves per-link frame order.
//
// Collectives are coordinated through rank 0 on reserved tags: everyone
// contributes, rank 0 combines and broadcasts the result. That is slower than
// a tree but the transport loop only uses collectives outside the work phase.
type SocketWorld struct {
	rank  int
	addrs []string

	mu    sync.Mutex
	cond  *sync.Cond
	boxes map[boxKey][][]byte

	conns  []*wsLink // indexed by peer rank, nil at own rank
	server *http.Server

	closeOnce sync.Once
}

type wsLink struct {
	mu   sync.Mutex // serializes writers
	conn *websocket.Conn
}

func (l *wsLink) write(tag int, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(tag))
	copy(frame[4:], payload)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// DialTimeout bounds how long a rank keeps retrying its peers during world
// construction; ranks start in any order.
var DialTimeout = 30 * time.Second

// NewSocketWorld brings up the mesh for this rank. addrs lists one host:port
// per rank; the call returns once links to all peers are established.
func NewSocketWorld(rank int, addrs []string) (*SocketWorld, error) {
	n := len(addrs)
	if rank < 0 || rank >= n {
		return nil, fmt.Errorf("comm: rank %d with %d addresses", rank, n)
	}
	w := &SocketWorld{
		rank:  rank,
		addrs: addrs,
		boxes: make(map[boxKey][][]byte),
		conns: make([]*wsLink, n),
	}
	w.cond = sync.NewCond(&w.mu)

	accepted := make(chan *websocket.Conn, n)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/mesh", func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	})
	w.server = &http.Server{Addr: addrs[rank], Handler: mux}
	serveErr := make(chan error, 1)
	go func() { serveErr <- w.server.ListenAndServe() }()

	// Dial every lower rank, announcing who we are.
	for peer := 0; peer < rank; peer++ {
		conn, err := dialPeer(addrs[peer])
		if err != nil {
			return nil, fmt.Errorf("comm: rank %d dialing rank %d: %w", rank, peer, err)
		}
		hello := make([]byte, 4)
		binary.LittleEndian.PutUint32(hello, uint32(rank))
		if err := conn.WriteMessage(websocket.BinaryMessage, appendTag(helloTag, hello)); err != nil {
			return nil, fmt.Errorf("comm: rank %d hello to rank %d: %w", rank, peer, err)
		}
		w.conns[peer] = &wsLink{conn: conn}
	}

	// Accept every higher rank; the hello frame identifies the dialer.
	deadline := time.After(DialTimeout)
	for need := n - 1 - rank; need > 0; need-- {
		select {
		case conn := <-accepted:
			peer, err := readHello(conn)
			if err != nil {
				return nil, err
			}
			if peer <= rank || peer >= n || w.conns[peer] != nil {
				return nil, fmt.Errorf("comm: unexpected hello from rank %d", peer)
			}
			w.conns[peer] = &wsLink{conn: conn}
		case err := <-serveErr:
			return nil, fmt.Errorf("comm: rank %d listen on %s: %w", rank, addrs[rank], err)
		case <-deadline:
			return nil, fmt.Errorf("comm: rank %d timed out waiting for peers", rank)
		}
	}

	for peer, link := range w.conns {
		if link == nil {
			continue
		}
		go w.readLoop(peer, link.conn)
	}
	return w, nil
}

func dialPeer(addr string) (*websocket.Conn, error) {
	url := "ws://" + addr + "/mesh"
	deadline := time.Now().Add(DialTimeout)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func appendTag(tag int, payload []byte) []byte {
	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(tag))
	copy(frame[4:], payload)
	return frame
}

func readHello(conn *websocket.Conn) (int, error) {
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("comm: reading hello: %w", err)
	}
	if len(frame) != 8 || binary.LittleEndian.Uint32(frame) != helloTag {
		return 0, fmt.Errorf("comm: malformed hello frame (%d bytes)", len(frame))
	}
	return int(binary.LittleEndian.Uint32(frame[4:])), nil
}

func (w *SocketWorld) readLoop(peer int, conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return // link closed; outstanding receives were drained at shutdown
		}
		if len(frame) < 4 {
			continue
		}
		tag := int(binary.LittleEndian.Uint32(frame))
		payload := frame[4:]
		w.mu.Lock()
		k := boxKey{dst: w.rank, src: peer, tag: tag}
		w.boxes[k] = append(w.boxes[k], payload)
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *SocketWorld) pop(src, tag int) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := boxKey{dst: w.rank, src: src, tag: tag}
	q := w.boxes[k]
	if len(q) == 0 {
		return nil, false
	}
	msg := q[0]
	w.boxes[k] = q[1:]
	return msg, true
}

func (w *SocketWorld) waitPop(src, tag int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := boxKey{dst: w.rank, src: src, tag: tag}
	for len(w.boxes[k]) == 0 {
		w.cond.Wait()
	}
	q := w.boxes[k]
	w.boxes[k] = q[1:]
	return q[0]
}

// Close tears down all links and the listener.
func (w *SocketWorld) Close() {
	w.closeOnce.Do(func() {
		for _, link := range w.conns {
			if link != nil {
				link.conn.Close()
			}
		}
		w.server.Close()
	})
}

func (w *SocketWorld) Rank() int { return w.rank }
func (w *SocketWorld) Size() int { return len(w.addrs) }

// Isend writes the frame on the link immediately. Self-sends short-circuit
// through the mailbox so collectives can treat rank 0 uniformly.
func (w *SocketWorld) Isend(dst, tag int, payload []byte) Request {
	if dst == w.rank {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		w.mu.Lock()
		k := boxKey{dst: w.rank, src: w.rank, tag: tag}
		w.boxes[k] = append(w.boxes[k], msg)
		w.cond.Broadcast()
		w.mu.Unlock()
		return completedSend{}
	}
	link := w.conns[dst]
	if link == nil {
		panic(fmt.Sprintf("comm: send to unconnected rank %d", dst))
	}
	if err := link.write(tag, payload); err != nil {
		// Transport failure mid-step is fatal for the protocol.
		panic(fmt.Sprintf("comm: send to rank %d: %v", dst, err))
	}
	return completedSend{}
}

func (w *SocketWorld) Irecv(src, tag int) Request {
	return &socketRecv{world: w, src: src, tag: tag}
}

type socketRecv struct {
	world *SocketWorld
	src   int
	tag   int

	done bool
	data []byte
}

func (r *socketRecv) Test() bool {
	if r.done {
		return true
	}
	msg, ok := r.world.pop(r.src, r.tag)
	if !ok {
		return false
	}
	r.data = msg
	r.done = true
	return true
}

func (r *socketRecv) Wait() {
	if r.done {
		return
	}
	r.data = r.world.waitPop(r.src, r.tag)
	r.done = true
}

func (r *socketRecv) Data() []byte {
	if !r.done {
		return nil
	}
	return r.data
}

// Barrier gathers one frame per rank at rank 0, which then releases everyone.
func (w *SocketWorld) Barrier() {
	n := len(w.addrs)
	if n == 1 {
		return
	}
	if w.rank == 0 {
		for peer := 1; peer < n; peer++ {
			w.Irecv(peer, barrierTag).Wait()
		}
		for peer := 1; peer < n; peer++ {
			w.Isend(peer, barrierTag, nil)
		}
	} else {
		w.Isend(0, barrierTag, nil)
		w.Irecv(0, barrierTag).Wait()
	}
}

func (w *SocketWorld) AllreduceUint64(x uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	out := w.allreduce(buf[:], func(acc, in []byte) {
		s := binary.LittleEndian.Uint64(acc) + binary.LittleEndian.Uint64(in)
		binary.LittleEndian.PutUint64(acc, s)
	})
	return binary.LittleEndian.Uint64(out)
}

func (w *SocketWorld) AllreduceFloat64(x float64) float64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
	out := w.allreduce(buf[:], func(acc, in []byte) {
		s := math.Float64frombits(binary.LittleEndian.Uint64(acc)) +
			math.Float64frombits(binary.LittleEndian.Uint64(in))
		binary.LittleEndian.PutUint64(acc, math.Float64bits(s))
	})
	return math.Float64frombits(binary.LittleEndian.Uint64(out))
}

func (w *SocketWorld) allreduce(contrib []byte, combine func(acc, in []byte)) []byte {
	n := len(w.addrs)
	if n == 1 {
		return contrib
	}
	if w.rank == 0 {
		acc := make([]byte, len(contrib))
		copy(acc, contrib)
		for peer := 1; peer < n; peer++ {
			r := w.Irecv(peer, reduceTag)
			r.Wait()
			combine(acc, r.Data())
		}
		for peer := 1; peer < n; peer++ {
			w.Isend(peer, reduceTag, acc)
		}
		return acc
	}
	w.Isend(0, reduceTag, contrib)
	r := w.Irecv(0, reduceTag)
	r.Wait()
	return r.Data()
}
