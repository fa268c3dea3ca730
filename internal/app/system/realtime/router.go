// Package realtime fans ephemeral group events out to live socket
// connections.
//
// A single router goroutine owns room membership and every session's
// outbound channel. Callers submit closures to it and wait for them to run,
// so an operation has completed (frames queued, rooms updated) when the call
// returns. Delivery never blocks: a session whose buffer is full is dropped.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStopped is returned once the router has been stopped.
	ErrStopped = errors.New("realtime router stopped")
	// ErrJoinDenied wraps the gate's refusal of a room join.
	ErrJoinDenied = errors.New("room join denied")
)

// DefaultSendBuffer is the per-session outbound queue length.
const DefaultSendBuffer = 256

// RoomGate decides whether the user announced on a connection may enter a
// group's room. userID is empty when the connection has not announced.
type RoomGate interface {
	AllowJoin(ctx context.Context, groupID, userID string) error
}

// GateFunc adapts a function to RoomGate.
type GateFunc func(ctx context.Context, groupID, userID string) error

func (f GateFunc) AllowJoin(ctx context.Context, groupID, userID string) error {
	return f(ctx, groupID, userID)
}

// Presence mirrors room occupancy outside the process. Calls are made from
// the router goroutine and must not block.
type Presence interface {
	Join(groupID, connID, userID string)
	Leave(groupID, connID string)
}

// Session is one live connection as seen by the router.
type Session struct {
	ID   string
	send chan []byte

	// owned by the router goroutine
	rooms  map[string]struct{}
	closed bool
}

// Outbound yields frames for the connection's writer. It is closed when the
// session is disconnected or dropped.
func (s *Session) Outbound() <-chan []byte { return s.send }

type Options struct {
	SendBuffer int
	Gate       RoomGate
	Presence   Presence
	Logger     *zap.Logger
	Now        func() time.Time
}

type Router struct {
	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	rooms    map[string]map[*Session]struct{}
	sessions map[*Session]struct{}

	registry   *Registry
	gate       RoomGate
	presence   Presence
	sendBuffer int
	now        func() time.Time
	log        *zap.Logger
}

// NewRouter starts a router over registry.
func NewRouter(registry *Registry, opts Options) *Router {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Router{
		cmds:       make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Session]struct{}),
		sessions:   make(map[*Session]struct{}),
		registry:   registry,
		gate:       opts.Gate,
		presence:   opts.Presence,
		sendBuffer: opts.SendBuffer,
		now:        opts.Now,
		log:        opts.Logger,
	}
	go r.run()
	return r
}

func (r *Router) run() {
	defer close(r.done)
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-r.quit:
			for s := range r.sessions {
				r.drop(s)
			}
			return
		}
	}
}

// exec runs fn on the router goroutine and waits for it.
func (r *Router) exec(fn func()) error {
	finished := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrStopped
	}
	<-finished
	return nil
}

// Stop closes every session and ends the router goroutine.
func (r *Router) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	<-r.done
}

// Connect registers a new session.
func (r *Router) Connect() (*Session, error) {
	s := &Session{
		ID:    uuid.NewString(),
		send:  make(chan []byte, r.sendBuffer),
		rooms: make(map[string]struct{}),
	}
	err := r.exec(func() {
		r.sessions[s] = struct{}{}
		activeSessions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Announce records userID as the identity of s. Rooms already joined are
// re-reported to presence under the new identity.
func (r *Router) Announce(s *Session, userID string) error {
	r.registry.Announce(s.ID, userID)
	return r.exec(func() {
		if s.closed || r.presence == nil {
			return
		}
		for groupID := range s.rooms {
			r.presence.Join(groupID, s.ID, userID)
		}
	})
}

// JoinRoom subscribes s to groupID. Joining a room twice is a no-op. When a
// gate is configured it is consulted first, outside the router goroutine.
func (r *Router) JoinRoom(ctx context.Context, s *Session, groupID string) error {
	userID, _ := r.registry.UserOf(s.ID)
	if r.gate != nil {
		if err := r.gate.AllowJoin(ctx, groupID, userID); err != nil {
			joinsDenied.Inc()
			return fmt.Errorf("%w: %s: %w", ErrJoinDenied, groupID, err)
		}
	}
	return r.exec(func() {
		if s.closed {
			return
		}
		if _, ok := s.rooms[groupID]; ok {
			return
		}
		room, ok := r.rooms[groupID]
		if !ok {
			room = make(map[*Session]struct{})
			r.rooms[groupID] = room
			activeRooms.Inc()
		}
		room[s] = struct{}{}
		s.rooms[groupID] = struct{}{}
		if r.presence != nil {
			r.presence.Join(groupID, s.ID, userID)
		}
	})
}

// LeaveRoom unsubscribes s from groupID; leaving a room not joined is a no-op.
func (r *Router) LeaveRoom(s *Session, groupID string) error {
	return r.exec(func() {
		if _, ok := s.rooms[groupID]; ok {
			r.leave(s, groupID)
		}
	})
}

// Disconnect removes s from all rooms, forgets its identity and closes its
// outbound channel. Safe to call more than once.
func (r *Router) Disconnect(s *Session) error {
	r.registry.Disconnect(s.ID)
	err := r.exec(func() { r.drop(s) })
	if errors.Is(err, ErrStopped) {
		// Stop already dropped every session.
		return nil
	}
	return err
}

// BroadcastMessage delivers newMessage to every session in the room,
// the sender's included. It returns the number of sessions reached.
func (r *Router) BroadcastMessage(groupID string, msg ChatMessage) (int, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now().UTC()
	}
	return r.broadcast(groupID, nil, EventNewMessage, msg)
}

// BroadcastTyping delivers userTyping to every session in the room except from.
func (r *Router) BroadcastTyping(from *Session, groupID, userID, userName string) (int, error) {
	ts := r.now().UTC()
	return r.broadcast(groupID, from, EventUserTyping, TypingEvent{
		GroupID: groupID, UserID: userID, UserName: userName, Timestamp: &ts,
	})
}

// BroadcastStopTyping delivers userStopTyping to every session in the room
// except from.
func (r *Router) BroadcastStopTyping(from *Session, groupID, userID string) (int, error) {
	return r.broadcast(groupID, from, EventUserStopTyping, TypingEvent{GroupID: groupID, UserID: userID})
}

// BroadcastMemberJoined tells the room that userID became a durable member.
func (r *Router) BroadcastMemberJoined(groupID, userID, userName string) (int, error) {
	return r.broadcast(groupID, nil, EventMemberJoined, MemberJoinedEvent{
		GroupID: groupID, UserID: userID, UserName: userName, Timestamp: r.now().UTC(),
	})
}

// SendTo queues one event for s alone.
func (r *Router) SendTo(s *Session, event string, data any) error {
	frame, err := encode(event, data)
	if err != nil {
		return err
	}
	return r.exec(func() {
		if !s.closed {
			r.deliver(s, event, frame)
		}
	})
}

// RoomSize returns the number of sessions in a room.
func (r *Router) RoomSize(groupID string) int {
	var n int
	_ = r.exec(func() { n = len(r.rooms[groupID]) })
	return n
}

// Online returns the distinct announced user ids in a room, sorted.
func (r *Router) Online(_ context.Context, groupID string) ([]string, error) {
	var connIDs []string
	if err := r.exec(func() {
		for s := range r.rooms[groupID] {
			connIDs = append(connIDs, s.ID)
		}
	}); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(connIDs))
	users := []string{}
	for _, id := range connIDs {
		u, ok := r.registry.UserOf(id)
		if !ok || u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// Occupancy snapshots every room: group id to connection id to announced
// user id ("" when not announced).
func (r *Router) Occupancy() (map[string]map[string]string, error) {
	snap := make(map[string]map[string]string)
	if err := r.exec(func() {
		for groupID, room := range r.rooms {
			conns := make(map[string]string, len(room))
			for s := range room {
				conns[s.ID] = ""
			}
			snap[groupID] = conns
		}
	}); err != nil {
		return nil, err
	}
	for _, conns := range snap {
		for connID := range conns {
			if u, ok := r.registry.UserOf(connID); ok {
				conns[connID] = u
			}
		}
	}
	return snap, nil
}

func (r *Router) broadcast(groupID string, except *Session, event string, data any) (int, error) {
	frame, err := encode(event, data)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", event, err)
	}
	var n int
	err = r.exec(func() {
		for s := range r.rooms[groupID] {
			if s == except {
				continue
			}
			if r.deliver(s, event, frame) {
				n++
			}
		}
	})
	return n, err
}

// deliver queues frame without blocking. A full buffer drops the session.
// Runs on the router goroutine.
func (r *Router) deliver(s *Session, event string, frame []byte) bool {
	select {
	case s.send <- frame:
		framesSent.WithLabelValues(event).Inc()
		return true
	default:
		slowDrops.Inc()
		r.log.Warn("dropping slow realtime session", zap.String("conn_id", s.ID), zap.String("event", event))
		r.drop(s)
		return false
	}
}

// leave removes s from one room. Runs on the router goroutine.
func (r *Router) leave(s *Session, groupID string) {
	delete(s.rooms, groupID)
	if room, ok := r.rooms[groupID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(r.rooms, groupID)
			activeRooms.Dec()
		}
	}
	if r.presence != nil {
		r.presence.Leave(groupID, s.ID)
	}
}

// drop detaches s entirely and closes its channel. Runs on the router goroutine.
func (r *Router) drop(s *Session) {
	if s.closed {
		return
	}
	for groupID := range s.rooms {
		r.leave(s, groupID)
	}
	delete(r.sessions, s)
	s.closed = true
	close(s.send)
	activeSessions.Dec()
}
