package ipc

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/kassenov/sumo/internal/simtime"
	"github.com/kassenov/sumo/meso"
)

// Dispatcher applies decoded Commands against a running engine. It is
// the only piece of this package that knows about meso types;
// ReadFrame/WriteFrame stay transport-only.
type Dispatcher struct {
	network *meso.Network
	now     func() simtime.Tick
	save    func(path string) error
}

// NewDispatcher builds a Dispatcher. now reports the engine's current
// tick (used to timestamp vaporize/speed-change commands); save
// implements the save-checkpoint command however the caller's
// persistence wiring requires.
func NewDispatcher(network *meso.Network, now func() simtime.Tick, save func(path string) error) *Dispatcher {
	return &Dispatcher{network: network, now: now, save: save}
}

// Dispatch applies one Command and returns the Result to send back.
func (d *Dispatcher) Dispatch(cmd Command) Result {
	switch cmd.Op {
	case "vaporize":
		return d.vaporize(cmd)
	case "set-speed":
		return d.setSpeed(cmd)
	case "save-checkpoint":
		return d.saveCheckpoint(cmd)
	default:
		return Result{OK: false, Message: fmt.Sprintf("unknown op %q", cmd.Op)}
	}
}

func (d *Dispatcher) vaporize(cmd Command) Result {
	chain := d.network.ChainFor(&namedEdge{cmd.SegmentID})
	if chain == nil {
		return Result{OK: false, Message: fmt.Sprintf("no segment for edge %q", cmd.SegmentID)}
	}
	seg := chain.First()
	if seg == nil {
		return Result{OK: false, Message: fmt.Sprintf("no segment for edge %q", cmd.SegmentID)}
	}
	if !seg.VaporizeAnyCar(d.now()) {
		return Result{OK: false, Message: "segment has no vehicles to vaporize"}
	}
	return Result{OK: true}
}

func (d *Dispatcher) setSpeed(cmd Command) Result {
	chain := d.network.ChainFor(&namedEdge{cmd.SegmentID})
	if chain == nil {
		return Result{OK: false, Message: fmt.Sprintf("no segment for edge %q", cmd.SegmentID)}
	}
	ctx := meso.NewContext(0, meso.Config{})
	for i := 0; i < chain.Len(); i++ {
		chain.At(i).SetSpeed(ctx, cmd.Speed, d.now(), meso.DoNotPatchJamThreshold)
	}
	return Result{OK: true}
}

func (d *Dispatcher) saveCheckpoint(cmd Command) Result {
	if d.save == nil {
		return Result{OK: false, Message: "checkpointing not configured"}
	}
	if err := d.save(cmd.Path); err != nil {
		return Result{OK: false, Message: err.Error()}
	}
	return Result{OK: true}
}

// namedEdge is the minimal meso.Edge needed to look a chain up by ID
// alone, without a full RoadEdge.
type namedEdge struct{ id string }

func (n *namedEdge) ID() string { return n.id }

// Listener accepts TCP/Unix connections and serves framed Command/
// Result pairs against a Dispatcher, one command per round-trip per
// connection.
type Listener struct {
	dispatcher *Dispatcher
	log        *logrus.Logger
}

// NewListener builds a Listener.
func NewListener(dispatcher *Dispatcher, log *logrus.Logger) *Listener {
	if log == nil {
		log = logrus.New()
	}
	return &Listener{dispatcher: dispatcher, log: log}
}

// Serve accepts connections from ln until it returns an error (e.g.
// because the listener was closed by the caller during shutdown).
func (l *Listener) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		var cmd Command
		if err := ReadFrame(conn, &cmd); err != nil {
			l.log.WithError(err).Debug("ipc connection closed")
			return
		}
		result := l.dispatcher.Dispatch(cmd)
		if err := WriteFrame(conn, result); err != nil {
			l.log.WithError(err).Warn("ipc write failed")
			return
		}
	}
}
