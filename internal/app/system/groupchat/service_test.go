package groupchat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/studyhub/internal/app/system/groupchat"
	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type harness struct {
	svc      *groupchat.Service
	groups   *memGroups
	messages *memMessages
	profiles *memProfiles
	owner    models.User
	outsider models.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		groups:   newMemGroups(),
		messages: &memMessages{},
		owner:    models.User{ID: primitive.NewObjectID(), Name: "Ada Lovelace", Avatar: "ada.png"},
		outsider: models.User{ID: primitive.NewObjectID(), Name: "Grace Hopper"},
	}
	h.profiles = &memProfiles{users: map[primitive.ObjectID]models.User{
		h.owner.ID:    h.owner,
		h.outsider.ID: h.outsider,
	}}
	h.svc = groupchat.New(h.groups, h.messages, h.profiles, nil, zap.NewNop())
	return h
}

func (h *harness) group(privacy string) models.Group {
	return h.groups.put(models.Group{
		Name:      "Study " + privacy,
		Privacy:   privacy,
		CreatedBy: h.owner.ID,
		Members:   []models.GroupMember{{UserID: h.owner.ID, Role: models.RoleAdmin}},
	})
}

func TestPostThenList_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPrivate)

	posted, err := h.svc.PostMessage(ctx, g.ID.Hex(), h.owner.ID.Hex(), "ada", "  hello group  ")
	require.NoError(t, err)
	require.Equal(t, "hello group", posted.Content)
	require.Equal(t, "Ada Lovelace", posted.Author.Name)
	require.Equal(t, "ada.png", posted.Author.Avatar)
	require.False(t, posted.Timestamp.IsZero())

	msgs, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, posted.ID, msgs[0].ID)
	require.Equal(t, "hello group", msgs[0].Content)
}

func TestPostMessage_WhitespaceRejected(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)

	_, err := h.svc.PostMessage(context.Background(), g.ID.Hex(), h.owner.ID.Hex(), "ada", " \n\t ")
	require.ErrorIs(t, err, groupchat.ErrValidation)
	require.Zero(t, h.messages.count(g.ID))
}

func TestPostMessage_ValidationCheckedBeforeGroup(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.PostMessage(context.Background(), primitive.NewObjectID().Hex(), h.owner.ID.Hex(), "ada", "")
	require.ErrorIs(t, err, groupchat.ErrValidation)
}

func TestPostMessage_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.PostMessage(context.Background(), primitive.NewObjectID().Hex(), h.owner.ID.Hex(), "ada", "hi")
	require.ErrorIs(t, err, groupchat.ErrNotFound)

	_, err = h.svc.PostMessage(context.Background(), "not-an-id", h.owner.ID.Hex(), "ada", "hi")
	require.ErrorIs(t, err, groupchat.ErrNotFound)
}

func TestPostMessage_NonMemberForbiddenEvenIfPublic(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)

	_, err := h.svc.PostMessage(context.Background(), g.ID.Hex(), h.outsider.ID.Hex(), "grace", "hi")
	require.ErrorIs(t, err, groupchat.ErrForbidden)
	require.Zero(t, h.messages.count(g.ID))
}

func TestPostMessage_EnrichmentFailureStillReturnsMessage(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)
	h.profiles.err = errBoom

	msg, err := h.svc.PostMessage(context.Background(), g.ID.Hex(), h.owner.ID.Hex(), "ada", "hi")
	require.NoError(t, err)
	require.Equal(t, "ada", msg.Author.Name)
	require.Equal(t, 1, h.messages.count(g.ID))
}

func TestListMessages_PrivateRequiresMembership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPrivate)

	_, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.outsider.ID.Hex(), groupchat.PageQuery{})
	require.ErrorIs(t, err, groupchat.ErrForbidden)

	_, err = h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{})
	require.NoError(t, err)
}

func TestListMessages_PublicReadableByAnyone(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)

	msgs, err := h.svc.ListMessages(context.Background(), g.ID.Hex(), h.outsider.ID.Hex(), groupchat.PageQuery{})
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestListMessages_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ListMessages(context.Background(), primitive.NewObjectID().Hex(), h.owner.ID.Hex(), groupchat.PageQuery{})
	require.ErrorIs(t, err, groupchat.ErrNotFound)
}

func TestListMessages_Pagination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPublic)

	var posted []models.EnrichedMessage
	for i := 0; i < 10; i++ {
		m, err := h.svc.PostMessage(ctx, g.ID.Hex(), h.owner.ID.Hex(), "ada", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		posted = append(posted, m)
	}

	page, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{Limit: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"m7", "m8", "m9"}, contents(page))

	older, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(),
		groupchat.PageQuery{Limit: 3, Before: page[0].Timestamp})
	require.NoError(t, err)
	require.Equal(t, []string{"m4", "m5", "m6"}, contents(older))

	for i := 1; i < len(posted); i++ {
		require.True(t, posted[i].Timestamp.After(posted[i-1].Timestamp), "timestamps must increase")
	}
}

func TestListMessages_SameMillisecondCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPublic)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, c := range []string{"a", "b", "c"} {
		_, err := h.messages.Insert(ctx, models.GroupMessage{GroupID: g.ID, UserID: h.owner.ID, UserName: "ada", Content: c, Timestamp: ts})
		require.NoError(t, err)
	}

	newest, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, contents(newest))

	rest, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(),
		groupchat.PageQuery{Before: newest[0].Timestamp, BeforeID: newest[0].ID})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, contents(rest))

	byTime, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(),
		groupchat.PageQuery{Before: newest[0].Timestamp})
	require.NoError(t, err)
	require.Empty(t, byTime)
}

func TestListMessages_LimitDefaultsAndClamp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPublic)

	for i := 0; i < groupchat.MaxLimit+5; i++ {
		_, err := h.svc.PostMessage(ctx, g.ID.Hex(), h.owner.ID.Hex(), "ada", "x")
		require.NoError(t, err)
	}

	page, err := h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page, groupchat.DefaultLimit)

	page, err = h.svc.ListMessages(ctx, g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, page, groupchat.MaxLimit)
}

func TestJoinGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPrivate)

	updated, err := h.svc.JoinGroup(ctx, g.ID.Hex(), h.outsider.ID.Hex())
	require.NoError(t, err)
	require.Len(t, updated.Members, 2)
	require.Equal(t, models.RoleMember, updated.Members[1].Role)

	_, err = h.svc.JoinGroup(ctx, g.ID.Hex(), h.outsider.ID.Hex())
	require.ErrorIs(t, err, groupchat.ErrConflict)

	after, err := h.svc.GetGroup(ctx, g.ID.Hex())
	require.NoError(t, err)
	require.Len(t, after.Members, 2)

	// Now a member: posting succeeds.
	_, err = h.svc.PostMessage(ctx, g.ID.Hex(), h.outsider.ID.Hex(), "grace", "joined!")
	require.NoError(t, err)
}

func TestJoinGroup_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.JoinGroup(context.Background(), primitive.NewObjectID().Hex(), h.outsider.ID.Hex())
	require.ErrorIs(t, err, groupchat.ErrNotFound)

	_, err = h.svc.JoinGroup(context.Background(), "zzz", h.outsider.ID.Hex())
	require.ErrorIs(t, err, groupchat.ErrNotFound)
}

func TestJoinGroup_ConcurrentSameUser(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.JoinGroup(context.Background(), g.ID.Hex(), h.outsider.ID.Hex())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, groupchat.ErrConflict) {
				dupes++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, 9, dupes)
}

func TestGetGroup_CarriesNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	g := h.group(models.PrivacyPublic)
	stranger := primitive.NewObjectID()
	_, err := h.svc.JoinGroup(ctx, g.ID.Hex(), h.outsider.ID.Hex())
	require.NoError(t, err)
	_, err = h.svc.JoinGroup(ctx, g.ID.Hex(), stranger.Hex())
	require.NoError(t, err)

	got, err := h.svc.GetGroup(ctx, g.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, h.owner.ID, got.Creator.ID)
	require.Equal(t, "Ada Lovelace", got.Creator.Name)
	require.Len(t, got.Members, 3)
	require.Equal(t, "Ada Lovelace", got.Members[0].Name)
	require.Equal(t, models.RoleAdmin, got.Members[0].Role)
	require.Equal(t, "Grace Hopper", got.Members[1].Name)
	require.Equal(t, stranger, got.Members[2].UserID)
	require.Empty(t, got.Members[2].Name)
}

func TestListGroups_CarriesNames(t *testing.T) {
	h := newHarness(t)
	h.group(models.PrivacyPublic)
	h.group(models.PrivacyPrivate)

	groups, err := h.svc.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, g := range groups {
		require.Equal(t, "Ada Lovelace", g.Creator.Name)
		require.Len(t, g.Members, 1)
		require.Equal(t, "Ada Lovelace", g.Members[0].Name)
	}
	require.Equal(t, 1, h.profiles.calls, "one profile lookup for the whole list")

	h.profiles.err = errBoom
	_, err = h.svc.ListGroups(context.Background())
	require.ErrorIs(t, err, errBoom)
}

func TestCreateGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	g, err := h.svc.CreateGroup(ctx, h.owner.ID.Hex(), groupchat.CreateGroupInput{
		Name:        "  <b>Linear Algebra</b> ",
		Description: "Eigen things<script>alert(1)</script>",
	})
	require.NoError(t, err)
	require.Equal(t, "Linear Algebra", g.Name)
	require.Equal(t, "Eigen things", g.Description)
	require.Equal(t, models.PrivacyPublic, g.Privacy)
	require.Len(t, g.Members, 1)
	require.Equal(t, h.owner.ID, g.Members[0].UserID)
	require.Equal(t, models.RoleAdmin, g.Members[0].Role)
}

func TestCreateGroup_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   groupchat.CreateGroupInput
	}{
		{"missing name", groupchat.CreateGroupInput{Description: "d"}},
		{"blank name", groupchat.CreateGroupInput{Name: "   ", Description: "d"}},
		{"missing description", groupchat.CreateGroupInput{Name: "n"}},
		{"bad privacy", groupchat.CreateGroupInput{Name: "n", Description: "d", Privacy: "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateGroup(ctx, h.owner.ID.Hex(), tt.in)
			require.ErrorIs(t, err, groupchat.ErrValidation)
		})
	}
}

func TestCheckRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	priv := h.group(models.PrivacyPrivate)
	pub := h.group(models.PrivacyPublic)

	require.NoError(t, h.svc.CheckRead(ctx, priv.ID.Hex(), h.owner.ID.Hex()))
	require.ErrorIs(t, h.svc.CheckRead(ctx, priv.ID.Hex(), h.outsider.ID.Hex()), groupchat.ErrForbidden)
	require.NoError(t, h.svc.CheckRead(ctx, pub.ID.Hex(), ""))
	require.ErrorIs(t, h.svc.CheckRead(ctx, primitive.NewObjectID().Hex(), h.owner.ID.Hex()), groupchat.ErrNotFound)
}

func TestStoreErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	g := h.group(models.PrivacyPublic)
	h.groups.err = errBoom

	_, err := h.svc.ListMessages(context.Background(), g.ID.Hex(), h.owner.ID.Hex(), groupchat.PageQuery{})
	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, groupchat.ErrNotFound)
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := groupchat.NewClock(func() time.Time { return fixed })

	a, b, d := c.Now(), c.Now(), c.Now()
	require.Equal(t, fixed, a)
	require.Equal(t, fixed.Add(time.Millisecond), b)
	require.Equal(t, fixed.Add(2*time.Millisecond), d)
}

func contents(msgs []models.EnrichedMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}
