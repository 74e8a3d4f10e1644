package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SegmentSnapshot is the JSON shape emitted by /api/segments and
// broadcast over the WebSocket stream: just enough of a Segment's
// state for an external dashboard or test harness to render or assert
// on, without exposing the engine's internals.
type SegmentSnapshot struct {
	ID        string  `json:"id"`
	Occupancy float64 `json:"occupancy"`
	Capacity  float64 `json:"capacity"`
	Free      bool    `json:"free"`
	CarCount  int     `json:"car_count"`
	MeanSpeed float64 `json:"mean_speed"`
	Flow      float64 `json:"flow"`
}

// DetectorEvent is one detector notification, broadcast to WebSocket
// clients as it happens.
type DetectorEvent struct {
	VehicleID string `json:"vehicle_id"`
	Reason    string `json:"reason"`
	Tick      int64  `json:"tick"`
}

// Server is the engine's introspection surface: HTTP JSON snapshot
// endpoints, a Prometheus /metrics endpoint, and a WebSocket stream of
// DetectorEvents. Serves data, not a UI — no HTML templates or static
// asset handlers.
type Server struct {
	network   *meso.Network
	collector *Collector
	log       *logrus.Logger

	clientsMutex sync.Mutex
	clients      map[*websocket.Conn]bool

	eventsMutex sync.Mutex
	events      []DetectorEvent
}

// NewServer builds a Server over network, publishing metrics through
// collector (which may be nil to disable Prometheus export).
func NewServer(network *meso.Network, collector *Collector, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		network:   network,
		collector: collector,
		log:       log,
		clients:   map[*websocket.Conn]bool{},
	}
}

// Mux builds the http.Handler this server answers on: /api/segments
// (JSON snapshot), /ws (live event stream), and /metrics when a
// collector is configured.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/segments", s.handleSegments)
	mux.HandleFunc("/ws", s.handleWS)
	if s.collector != nil {
		mux.Handle("/metrics", s.collector.Handler())
	}
	return mux
}

// Snapshot builds the current SegmentSnapshot list across the network.
func (s *Server) Snapshot() []SegmentSnapshot {
	segs := s.network.AllSegments()
	out := make([]SegmentSnapshot, len(segs))
	for i, seg := range segs {
		out[i] = SegmentSnapshot{
			ID:        seg.ID(),
			Occupancy: seg.Occupancy(),
			Capacity:  seg.Capacity(),
			Free:      seg.Free(),
			CarCount:  seg.CarCount(),
			MeanSpeed: seg.MeanSpeed(true),
			Flow:      seg.Flow(),
		}
		if s.collector != nil {
			s.collector.RecordSegment(seg.ID(), seg.Occupancy(), seg.MeanSpeed(true), seg.Flow(), seg.CarCount())
		}
	}
	return out
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		s.log.WithError(err).Error("encoding segment snapshot")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()

	go s.drainClient(conn)
}

// drainClient reads (and discards) client frames purely to detect
// disconnects via a plain read-loop-as-liveness-check.
func (s *Server) drainClient(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		s.clientsMutex.Lock()
		delete(s.clients, conn)
		s.clientsMutex.Unlock()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RecordEvent appends e to the in-memory event buffer and broadcasts
// it to every connected WebSocket client. Implements meso.Reminder's
// Notify-shaped callback via EventRecorder below, not directly.
func (s *Server) RecordEvent(e DetectorEvent) {
	s.eventsMutex.Lock()
	s.events = append(s.events, e)
	if len(s.events) > 1000 {
		s.events = s.events[len(s.events)-1000:]
	}
	s.eventsMutex.Unlock()

	if s.collector != nil {
		s.collector.RecordNotification(e.Reason)
	}

	data, err := json.Marshal(e)
	if err != nil {
		s.log.WithError(err).Error("marshaling detector event")
		return
	}
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

// EventRecorder adapts a Server into a meso.Reminder: every Notify
// call from a detector becomes a broadcast DetectorEvent. VehicleID
// and Reason are bound at construction since meso.Reminder.Notify only
// carries the exit time.
type EventRecorder struct {
	server    *Server
	vehicleID string
	reason    string
}

// NewEventRecorder builds a meso.Reminder bound to vehicleID/reason.
func NewEventRecorder(server *Server, vehicleID string, reason meso.NotifyReason) *EventRecorder {
	return &EventRecorder{server: server, vehicleID: vehicleID, reason: reason.String()}
}

// Notify implements meso.Reminder.
func (r *EventRecorder) Notify(now, exitTime simtime.Tick) {
	r.server.RecordEvent(DetectorEvent{
		VehicleID: r.vehicleID,
		Reason:    r.reason,
		Tick:      int64(exitTime),
	})
}

// BroadcastLoop periodically snapshots the network and pushes it to
// WebSocket clients on a fixed ticker. Call in its own goroutine; it
// returns when stop is closed.
func (s *Server) BroadcastLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.clientsMutex.Lock()
			n := len(s.clients)
			s.clientsMutex.Unlock()
			if n == 0 {
				continue
			}
			data, err := json.Marshal(s.Snapshot())
			if err != nil {
				s.log.WithError(err).Error("marshaling segment snapshot")
				continue
			}
			s.clientsMutex.Lock()
			for conn := range s.clients {
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					conn.Close()
					delete(s.clients, conn)
				}
			}
			s.clientsMutex.Unlock()
		}
	}
}
