package groupchat_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	groupstore "github.com/dalemusser/studyhub/internal/app/store/groups"
	"github.com/dalemusser/studyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// memGroups is an in-memory GroupStore with the same error contract as the
// Mongo store.
type memGroups struct {
	mu     sync.Mutex
	groups map[primitive.ObjectID]models.Group
	err    error
}

func newMemGroups() *memGroups {
	return &memGroups{groups: map[primitive.ObjectID]models.Group{}}
}

func (m *memGroups) put(g models.Group) models.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	m.groups[g.ID] = g
	return g
}

func (m *memGroups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Group{}, m.err
	}
	g, ok := m.groups[id]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	return g, nil
}

func (m *memGroups) Create(_ context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.Members = []models.GroupMember{{UserID: g.CreatedBy, Role: models.RoleAdmin, JoinedAt: now}}
	g.CreatedAt, g.UpdatedAt = now, now
	return m.put(g), nil
}

func (m *memGroups) List(_ context.Context) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out, nil
}

func (m *memGroups) AddMember(_ context.Context, groupID, userID primitive.ObjectID, role string) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return models.Group{}, mongo.ErrNoDocuments
	}
	for _, mem := range g.Members {
		if mem.UserID == userID {
			return models.Group{}, groupstore.ErrAlreadyMember
		}
	}
	g.Members = append(g.Members, models.GroupMember{UserID: userID, Role: role, JoinedAt: time.Now().UTC()})
	m.groups[groupID] = g
	return g, nil
}

// memMessages keeps messages in insertion order.
type memMessages struct {
	mu   sync.Mutex
	msgs []models.GroupMessage
}

func (m *memMessages) Insert(_ context.Context, msg models.GroupMessage) (models.GroupMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memMessages) ListRecent(_ context.Context, groupID primitive.ObjectID, before time.Time, beforeID primitive.ObjectID, limit int) ([]models.GroupMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GroupMessage
	for _, msg := range m.msgs {
		if msg.GroupID != groupID {
			continue
		}
		if !before.IsZero() && !msg.Timestamp.Before(before) &&
			(beforeID.IsZero() || !msg.Timestamp.Equal(before) || msg.ID.Hex() >= beforeID.Hex()) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) count(groupID primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.msgs {
		if msg.GroupID == groupID {
			n++
		}
	}
	return n
}

type memProfiles struct {
	users map[primitive.ObjectID]models.User
	err   error
	calls int
}

func (m *memProfiles) Profiles(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := map[primitive.ObjectID]models.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

var errBoom = errors.New("boom")
