package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	r := NewRouter(NewRegistry(), opts)
	t.Cleanup(r.Stop)
	return r
}

func connect(t *testing.T, r *Router) *Session {
	t.Helper()
	s, err := r.Connect()
	require.NoError(t, err)
	return s
}

// drain returns every frame currently queued on s.
func drain(s *Session) []Envelope {
	var out []Envelope
	for {
		select {
		case frame, ok := <-s.Outbound():
			if !ok {
				return out
			}
			var env Envelope
			if err := json.Unmarshal(frame, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func events(envs []Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Event
	}
	return out
}

func TestBroadcastMessage_IncludesSender(t *testing.T) {
	r := newTestRouter(t, Options{})
	ctx := context.Background()
	sender, peer, outsider := connect(t, r), connect(t, r), connect(t, r)

	require.NoError(t, r.JoinRoom(ctx, sender, "g1"))
	require.NoError(t, r.JoinRoom(ctx, peer, "g1"))
	require.NoError(t, r.JoinRoom(ctx, outsider, "g2"))

	n, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u1", UserName: "Ada", Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, s := range []*Session{sender, peer} {
		got := drain(s)
		require.Equal(t, []string{EventNewMessage}, events(got))

		var msg ChatMessage
		require.NoError(t, json.Unmarshal(got[0].Data, &msg))
		require.Equal(t, "hi", msg.Content)
		require.Equal(t, "u1", msg.UserID)
		require.False(t, msg.Timestamp.IsZero())
	}
	require.Empty(t, drain(outsider))
}

func TestBroadcastTyping_ExcludesOriginator(t *testing.T) {
	r := newTestRouter(t, Options{})
	ctx := context.Background()
	a, b, c := connect(t, r), connect(t, r), connect(t, r)
	for _, s := range []*Session{a, b, c} {
		require.NoError(t, r.JoinRoom(ctx, s, "g1"))
	}

	n, err := r.BroadcastTyping(a, "g1", "ua", "Ada")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Empty(t, drain(a))
	for _, s := range []*Session{b, c} {
		got := drain(s)
		require.Equal(t, []string{EventUserTyping}, events(got))
		var ev TypingEvent
		require.NoError(t, json.Unmarshal(got[0].Data, &ev))
		require.Equal(t, "ua", ev.UserID)
		require.Equal(t, "Ada", ev.UserName)
	}

	_, err = r.BroadcastStopTyping(a, "g1", "ua")
	require.NoError(t, err)
	require.Empty(t, drain(a))
	require.Equal(t, []string{EventUserStopTyping}, events(drain(b)))
}

func TestJoinRoom_Idempotent(t *testing.T) {
	r := newTestRouter(t, Options{})
	s := connect(t, r)

	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))
	require.Equal(t, 1, r.RoomSize("g1"))

	_, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "once"})
	require.NoError(t, err)
	require.Len(t, drain(s), 1)
}

func TestLeaveRoom(t *testing.T) {
	r := newTestRouter(t, Options{})
	s := connect(t, r)

	require.NoError(t, r.LeaveRoom(s, "never-joined"))

	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))
	require.NoError(t, r.LeaveRoom(s, "g1"))
	require.Zero(t, r.RoomSize("g1"))

	_, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "gone"})
	require.NoError(t, err)
	require.Empty(t, drain(s))
}

func TestDisconnect_ClearsRoomsAndIdentity(t *testing.T) {
	r := newTestRouter(t, Options{})
	s := connect(t, r)
	require.NoError(t, r.Announce(s, "u1"))
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))
	require.NoError(t, r.JoinRoom(context.Background(), s, "g2"))

	require.NoError(t, r.Disconnect(s))
	require.NoError(t, r.Disconnect(s))

	require.Zero(t, r.RoomSize("g1"))
	require.Zero(t, r.RoomSize("g2"))
	_, ok := r.registry.UserOf(s.ID)
	require.False(t, ok)

	_, open := <-s.Outbound()
	require.False(t, open, "outbound channel should be closed")

	// Joining after disconnect has no effect.
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))
	require.Zero(t, r.RoomSize("g1"))
}

func TestSlowSessionIsDropped(t *testing.T) {
	r := newTestRouter(t, Options{SendBuffer: 1})
	ctx := context.Background()
	slow, fast := connect(t, r), connect(t, r)
	require.NoError(t, r.JoinRoom(ctx, slow, "g1"))
	require.NoError(t, r.JoinRoom(ctx, fast, "g1"))

	_, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "1"})
	require.NoError(t, err)
	require.Len(t, drain(fast), 1)

	// slow never reads; the second frame overflows its buffer.
	n, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "2"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, r.RoomSize("g1"))

	frames := 0
	for range slow.Outbound() {
		frames++
	}
	require.Equal(t, 1, frames, "slow session keeps what was queued, then closes")
}

func TestBroadcastMemberJoined(t *testing.T) {
	r := newTestRouter(t, Options{})
	s := connect(t, r)
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))

	n, err := r.BroadcastMemberJoined("g1", "u2", "Grace")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := drain(s)
	require.Equal(t, []string{EventMemberJoined}, events(got))
	var ev MemberJoinedEvent
	require.NoError(t, json.Unmarshal(got[0].Data, &ev))
	require.Equal(t, "u2", ev.UserID)
}

func TestOnline_DistinctAnnouncedUsers(t *testing.T) {
	r := newTestRouter(t, Options{})
	ctx := context.Background()
	a1, a2, b, anon := connect(t, r), connect(t, r), connect(t, r), connect(t, r)
	require.NoError(t, r.Announce(a1, "ua"))
	require.NoError(t, r.Announce(a2, "ua"))
	require.NoError(t, r.Announce(b, "ub"))
	for _, s := range []*Session{a1, a2, b, anon} {
		require.NoError(t, r.JoinRoom(ctx, s, "g1"))
	}

	users, err := r.Online(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, []string{"ua", "ub"}, users)

	users, err = r.Online(ctx, "empty")
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestRoomGate(t *testing.T) {
	errNope := errors.New("not a member")
	gate := GateFunc(func(_ context.Context, groupID, userID string) error {
		if groupID == "private" && userID != "member" {
			return errNope
		}
		return nil
	})
	r := newTestRouter(t, Options{Gate: gate})
	ctx := context.Background()

	anon := connect(t, r)
	err := r.JoinRoom(ctx, anon, "private")
	require.ErrorIs(t, err, ErrJoinDenied)
	require.ErrorIs(t, err, errNope)
	require.Zero(t, r.RoomSize("private"))

	m := connect(t, r)
	require.NoError(t, r.Announce(m, "member"))
	require.NoError(t, r.JoinRoom(ctx, m, "private"))
	require.NoError(t, r.JoinRoom(ctx, anon, "public"))
}

type recordingPresence struct {
	mu  sync.Mutex
	ops []string
}

func (p *recordingPresence) Join(groupID, connID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "join "+groupID+" "+userID)
}

func (p *recordingPresence) Leave(groupID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "leave "+groupID)
}

func TestPresenceMirrorsRoomChanges(t *testing.T) {
	p := &recordingPresence{}
	r := newTestRouter(t, Options{Presence: p})
	ctx := context.Background()
	s := connect(t, r)

	require.NoError(t, r.JoinRoom(ctx, s, "g1"))
	require.NoError(t, r.Announce(s, "u1"))
	require.NoError(t, r.JoinRoom(ctx, s, "g1"))
	require.NoError(t, r.Disconnect(s))

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Equal(t, []string{"join g1 ", "join g1 u1", "leave g1"}, p.ops)
}

func TestStop(t *testing.T) {
	r := NewRouter(NewRegistry(), Options{})
	s := connect(t, r)
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))

	r.Stop()
	r.Stop()

	_, open := <-s.Outbound()
	require.False(t, open)

	_, err := r.Connect()
	require.ErrorIs(t, err, ErrStopped)
	_, err = r.BroadcastMessage("g1", ChatMessage{})
	require.ErrorIs(t, err, ErrStopped)
	require.NoError(t, r.Disconnect(s))
}

func TestConcurrentBroadcasts(t *testing.T) {
	r := newTestRouter(t, Options{SendBuffer: 1000})
	ctx := context.Background()
	s := connect(t, r)
	require.NoError(t, r.JoinRoom(ctx, s, "g1"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "x"})
			}
		}()
	}
	wg.Wait()

	require.Len(t, drain(s), 200)
}

func TestBroadcastUsesInjectedClock(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	r := newTestRouter(t, Options{Now: func() time.Time { return fixed }})
	s := connect(t, r)
	require.NoError(t, r.JoinRoom(context.Background(), s, "g1"))

	_, err := r.BroadcastMessage("g1", ChatMessage{GroupID: "g1", UserID: "u", Content: "x"})
	require.NoError(t, err)

	var msg ChatMessage
	require.NoError(t, json.Unmarshal(drain(s)[0].Data, &msg))
	require.True(t, fixed.Equal(msg.Timestamp))
}
