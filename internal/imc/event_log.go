package imc

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventLog records one terminal tracker event while Trace is on.
type EventLog struct {
	Event Event
	Cell  uint32 // cell the photon ended in (the off-rank id for a pass)
	Pos   Vec3
	Dir   Vec3
	E     float64
	Legs  int     // flight legs walked in this tracking call before the event (0 for first leg)
	Dist  float64 // distance traveled in this tracking call
}

type eventLogCache struct {
	mu     sync.Mutex
	events map[Event][]EventLog
}

var traceCache = &eventLogCache{
	events: make(map[Event][]EventLog),
}

func logEvent(event Event, p *Photon, legs int, dist float64) {
	traceCache.mu.Lock()
	defer traceCache.mu.Unlock()
	traceCache.events[event] = append(traceCache.events[event], EventLog{
		Event: event,
		Cell:  p.Cell,
		Pos:   p.Pos,
		Dir:   p.Dir,
		E:     p.E,
		Legs:  legs,
		Dist:  dist,
	})
}

func traceStats(log zerolog.Logger) {
	traceCache.mu.Lock()
	defer traceCache.mu.Unlock()
	for event, logs := range traceCache.events {
		legs := 0
		dist := 0.0
		for _, l := range logs {
			legs += l.Legs
			dist += l.Dist
		}
		log.Trace().
			Stringer("event", event).
			Int("histories", len(logs)).
			Int("legs", legs).
			Float64("distance", dist).
			Msg("tracker events")
	}
}
