// Package dispatch is the single write path for delivering events. Domain
// services, the typing tracker and the gateway all push through it; nothing
// else touches sockets.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/careconnect/realtime/pkg/event"
	"github.com/careconnect/realtime/pkg/metrics"
	"github.com/careconnect/realtime/pkg/state"
	"github.com/careconnect/realtime/pkg/transport"
)

const (
	dropReasonOffline   = "target_offline"
	dropReasonEmptyRoom = "empty_room"
	dropReasonBackpress = "backpressure"
	dropReasonMarshal   = "marshal_error"
)

// Dispatcher fans events out to live connections. Delivery is strictly
// best-effort: no acknowledgment, no retry, no persistence of missed events.
type Dispatcher struct {
	state   state.Manager
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(manager state.Manager, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		state:   manager,
		metrics: m,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

// SendToUser delivers to every live connection of userID. An offline user is
// a silent drop, not an error.
func (d *Dispatcher) SendToUser(userID string, ev event.Event) {
	msg, ok := d.marshal(ev)
	if !ok {
		return
	}
	links := d.state.ConnectionsOf(userID)
	if len(links) == 0 {
		d.logger.Debug("Dispatch target offline", slog.String("userID", userID), slog.String("kind", string(ev.Kind)))
		d.metrics.EventsDropped.WithLabelValues(dropReasonOffline).Inc()
		return
	}
	d.deliver(links, ev.Kind, msg)
}

// SendToRoom delivers to every live connection of every current room member.
// A nonexistent or empty room is a silent no-op.
func (d *Dispatcher) SendToRoom(roomID string, ev event.Event) {
	d.sendToRoom(roomID, ev, "")
}

// SendToRoomExcept is SendToRoom minus one user, used for typing indicators
// so originators do not echo their own activity.
func (d *Dispatcher) SendToRoomExcept(roomID string, ev event.Event, exceptUserID string) {
	d.sendToRoom(roomID, ev, exceptUserID)
}

func (d *Dispatcher) sendToRoom(roomID string, ev event.Event, exceptUserID string) {
	msg, ok := d.marshal(ev)
	if !ok {
		return
	}
	members := d.state.MembersOf(roomID)
	if len(members) == 0 {
		d.logger.Debug("Dispatch to empty room", slog.String("roomID", roomID), slog.String("kind", string(ev.Kind)))
		d.metrics.EventsDropped.WithLabelValues(dropReasonEmptyRoom).Inc()
		return
	}

	var links []transport.Link
	for _, userID := range members {
		if userID == exceptUserID {
			continue
		}
		links = append(links, d.state.ConnectionsOf(userID)...)
	}
	d.deliver(links, ev.Kind, msg)
}

// Broadcast delivers to every live connection system-wide, skipping the
// connections of excludeUserID when given.
func (d *Dispatcher) Broadcast(ev event.Event, excludeUserID ...string) {
	msg, ok := d.marshal(ev)
	if !ok {
		return
	}
	var exclude string
	if len(excludeUserID) > 0 {
		exclude = excludeUserID[0]
	}
	d.deliver(d.state.AllConnections(exclude), ev.Kind, msg)
}

// AnnounceOnline broadcasts a user's transition to online. The registry
// guarantees the transition fires exactly once per genuine state change; this
// just puts it on the wire.
func (d *Dispatcher) AnnounceOnline(userID string) {
	d.Broadcast(event.New(event.PresenceOnline{UserID: userID}))
}

// AnnounceOffline broadcasts a user's transition to offline with their
// last-seen timestamp.
func (d *Dispatcher) AnnounceOffline(userID string, lastSeen time.Time) {
	d.Broadcast(event.New(event.PresenceOffline{UserID: userID, LastSeen: lastSeen}))
}

func (d *Dispatcher) deliver(links []transport.Link, kind event.Kind, msg []byte) {
	for _, link := range links {
		if link.Send(msg) {
			d.metrics.EventsDelivered.WithLabelValues(string(kind)).Inc()
		} else {
			d.metrics.EventsDropped.WithLabelValues(dropReasonBackpress).Inc()
		}
	}
}

// marshal renders the event once per fan-out. A serialization failure is
// logged and isolated; it never aborts other deliveries or reaches the
// triggering caller.
func (d *Dispatcher) marshal(ev event.Event) ([]byte, bool) {
	msg, err := ev.Marshal()
	if err != nil {
		d.logger.Error("Internal dispatch error", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		d.metrics.EventsDropped.WithLabelValues(dropReasonMarshal).Inc()
		return nil, false
	}
	return msg, true
}
