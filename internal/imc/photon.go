package imc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vec3 is a 3-component position or direction.
type Vec3 [3]float64

// Photon is one particle history. Exactly one owner mutates it at a time: the
// source that created it, the tracker that is transporting it, or the staging
// queue carrying it to another rank.
type Photon struct {
	Cell          uint32 // global cell id
	Pos           Vec3
	Dir           Vec3 // unit vector
	E             float64
	E0            float64 // energy at creation, for the roulette cutoff
	DistRemaining float64 // distance to census
	CensusFlag    bool
	Alive         bool
}

// Move advances the photon d along its direction and burns d off the census
// distance.
func (p *Photon) Move(d float64) {
	p.Pos[0] += d * p.Dir[0]
	p.Pos[1] += d * p.Dir[1]
	p.Pos[2] += d * p.Dir[2]
	p.DistRemaining -= d
}

// ReflectFace mirrors the direction component normal to the given face.
func (p *Photon) ReflectFace(face Face) {
	p.Dir[int(face)/2] = -p.Dir[int(face)/2]
}

// BelowCutoff reports whether the photon has dropped under the Russian
// roulette threshold.
func (p *Photon) BelowCutoff(fraction float64) bool {
	return p.E < fraction*p.E0
}

// photonWireSize is the fixed record layout: cell id, position, direction,
// energy, initial energy, distance to census, census flag, alive flag.
const photonWireSize = 4 + 3*8 + 3*8 + 8 + 8 + 8 + 1 + 1

func appendPhoton(b []byte, p *Photon) []byte {
	b = binary.LittleEndian.AppendUint32(b, p.Cell)
	for i := 0; i < 3; i++ {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Pos[i]))
	}
	for i := 0; i < 3; i++ {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Dir[i]))
	}
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.E))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.E0))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.DistRemaining))
	b = append(b, boolByte(p.CensusFlag), boolByte(p.Alive))
	return b
}

// EncodePhotons packs a batch into the wire layout. An empty batch encodes to
// an empty payload, which is how the shutdown drain unblocks parked receives.
func EncodePhotons(ps []Photon) []byte {
	b := make([]byte, 0, len(ps)*photonWireSize)
	for i := range ps {
		b = appendPhoton(b, &ps[i])
	}
	return b
}

// DecodePhotons unpacks a photon batch payload.
func DecodePhotons(b []byte) ([]Photon, error) {
	if len(b)%photonWireSize != 0 {
		return nil, fmt.Errorf("imc: photon payload of %d bytes is not a whole number of records", len(b))
	}
	ps := make([]Photon, len(b)/photonWireSize)
	for i := range ps {
		p := &ps[i]
		p.Cell = binary.LittleEndian.Uint32(b)
		b = b[4:]
		for j := 0; j < 3; j++ {
			p.Pos[j] = math.Float64frombits(binary.LittleEndian.Uint64(b))
			b = b[8:]
		}
		for j := 0; j < 3; j++ {
			p.Dir[j] = math.Float64frombits(binary.LittleEndian.Uint64(b))
			b = b[8:]
		}
		p.E = math.Float64frombits(binary.LittleEndian.Uint64(b))
		b = b[8:]
		p.E0 = math.Float64frombits(binary.LittleEndian.Uint64(b))
		b = b[8:]
		p.DistRemaining = math.Float64frombits(binary.LittleEndian.Uint64(b))
		b = b[8:]
		p.CensusFlag = b[0] != 0
		p.Alive = b[1] != 0
		b = b[2:]
	}
	return ps, nil
}

// EncodeCount packs one completion count for the tree protocol.
func EncodeCount(c uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], c)
	return b[:]
}

// DecodeCount unpacks a completion count payload.
func DecodeCount(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("imc: count payload of %d bytes", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
