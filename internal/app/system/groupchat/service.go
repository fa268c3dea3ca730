// Package groupchat implements the durable side of group messaging:
// reading and posting messages, joining and creating groups. All access
// decisions go through grouppolicy.
package groupchat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/studyhub/internal/app/policy/grouppolicy"
	groupstore "github.com/dalemusser/studyhub/internal/app/store/groups"
	"github.com/dalemusser/studyhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/studyhub/internal/domain/models"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Page size bounds for ListMessages.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// GroupStore is the membership store. GetByID and AddMember report a missing
// group with mongo.ErrNoDocuments; AddMember reports an existing member with
// groupstore.ErrAlreadyMember.
type GroupStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	Create(ctx context.Context, g models.Group) (models.Group, error)
	List(ctx context.Context) ([]models.Group, error)
	AddMember(ctx context.Context, groupID, userID primitive.ObjectID, role string) (models.Group, error)
}

// MessageStore persists and pages group messages (newest first).
type MessageStore interface {
	Insert(ctx context.Context, m models.GroupMessage) (models.GroupMessage, error)
	ListRecent(ctx context.Context, groupID primitive.ObjectID, before time.Time, beforeID primitive.ObjectID, limit int) ([]models.GroupMessage, error)
}

// ProfileStore resolves author display data.
type ProfileStore interface {
	Profiles(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
}

type Service struct {
	groups   GroupStore
	messages MessageStore
	profiles ProfileStore
	clock    *Clock
	validate *validator.Validate
	log      *zap.Logger
}

// New builds a Service. A nil clock uses the wall clock.
func New(groups GroupStore, messages MessageStore, profiles ProfileStore, clock *Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = NewClock(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		groups:   groups,
		messages: messages,
		profiles: profiles,
		clock:    clock,
		validate: validator.New(),
		log:      logger,
	}
}

// PageQuery selects a page of history. Zero Limit means DefaultLimit; Limit
// above MaxLimit is clamped. Before, when set, is exclusive; BeforeID
// additionally admits messages at exactly Before with a smaller id.
type PageQuery struct {
	Limit    int
	Before   time.Time
	BeforeID primitive.ObjectID
}

func (q PageQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

// CreateGroupInput is the client-supplied part of a new group.
type CreateGroupInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=2000"`
	Privacy     string `json:"privacy" validate:"omitempty,oneof=public private"`
}

// parseID turns a hex id into an ObjectID. Malformed ids yield NilObjectID,
// which never matches a group or a member.
func parseID(hex string) primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// loadGroup fetches a group by hex id, mapping absence (and malformed ids)
// to ErrNotFound.
func (s *Service) loadGroup(ctx context.Context, groupID string) (models.Group, error) {
	oid := parseID(groupID)
	if oid.IsZero() {
		return models.Group{}, fmt.Errorf("%w: %q", ErrNotFound, groupID)
	}
	g, err := s.groups.GetByID(ctx, oid)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Group{}, fmt.Errorf("%w: %s", ErrNotFound, groupID)
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("load group %s: %w", groupID, err)
	}
	return g, nil
}

// CheckRead returns nil if userID may read groupID, ErrNotFound if the group
// does not exist, and ErrForbidden otherwise.
func (s *Service) CheckRead(ctx context.Context, groupID, userID string) error {
	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !grouppolicy.CanRead(g, parseID(userID)) {
		return fmt.Errorf("%w: read %s", ErrForbidden, groupID)
	}
	return nil
}

// ListMessages returns one page of a group's transcript in ascending
// timestamp order: the newest q.Limit messages older than q.Before.
func (s *Service) ListMessages(ctx context.Context, groupID, requesterID string, q PageQuery) ([]models.EnrichedMessage, error) {
	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		reject("list", "not_found")
		return nil, err
	}
	if !grouppolicy.CanRead(g, parseID(requesterID)) {
		reject("list", "forbidden")
		return nil, fmt.Errorf("%w: read %s", ErrForbidden, groupID)
	}

	recent, err := s.messages.ListRecent(ctx, g.ID, q.Before, q.BeforeID, q.limit())
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", groupID, err)
	}
	out, err := s.enrich(ctx, lo.Reverse(recent))
	if err != nil {
		return nil, err
	}
	pageSize.Observe(float64(len(out)))
	return out, nil
}

// PostMessage validates, authorizes and persists a message, returning it
// enriched with the author's profile. Content is trimmed; blank content is
// rejected before any lookup. Nothing is broadcast from here.
func (s *Service) PostMessage(ctx context.Context, groupID, authorID, authorName, rawContent string) (models.EnrichedMessage, error) {
	content := strings.TrimSpace(rawContent)
	if content == "" {
		reject("post", "validation")
		return models.EnrichedMessage{}, fmt.Errorf("%w: message content is required", ErrValidation)
	}

	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		reject("post", "not_found")
		return models.EnrichedMessage{}, err
	}
	author := parseID(authorID)
	if !grouppolicy.CanWrite(g, author) {
		reject("post", "forbidden")
		return models.EnrichedMessage{}, fmt.Errorf("%w: post to %s", ErrForbidden, groupID)
	}

	msg, err := s.messages.Insert(ctx, models.GroupMessage{
		GroupID:   g.ID,
		UserID:    author,
		UserName:  authorName,
		Content:   content,
		Timestamp: s.clock.Now(),
	})
	if err != nil {
		return models.EnrichedMessage{}, fmt.Errorf("insert message: %w", err)
	}
	messagesPosted.Inc()

	enriched, err := s.enrich(ctx, []models.GroupMessage{msg})
	if err != nil {
		// The message is stored; fall back to the name stamped on it.
		s.log.Warn("author enrichment failed", zap.String("message_id", msg.ID.Hex()), zap.Error(err))
		return models.EnrichedMessage{GroupMessage: msg, Author: models.Author{ID: msg.UserID, Name: msg.UserName}}, nil
	}
	return enriched[0], nil
}

// JoinGroup adds userID to the group as a member and returns the updated
// group. The check and the write are a single conditional update.
func (s *Service) JoinGroup(ctx context.Context, groupID, userID string) (models.Group, error) {
	gid := parseID(groupID)
	if gid.IsZero() {
		reject("join", "not_found")
		return models.Group{}, fmt.Errorf("%w: %q", ErrNotFound, groupID)
	}
	uid := parseID(userID)
	if uid.IsZero() {
		reject("join", "validation")
		return models.Group{}, fmt.Errorf("%w: user id %q", ErrValidation, userID)
	}

	g, err := s.groups.AddMember(ctx, gid, uid, models.RoleMember)
	switch {
	case err == nil:
		joins.Inc()
		return g, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		reject("join", "not_found")
		return models.Group{}, fmt.Errorf("%w: %s", ErrNotFound, groupID)
	case errors.Is(err, groupstore.ErrAlreadyMember):
		reject("join", "conflict")
		return models.Group{}, fmt.Errorf("%w: %s in %s", ErrConflict, userID, groupID)
	default:
		return models.Group{}, fmt.Errorf("join group %s: %w", groupID, err)
	}
}

// CreateGroup creates a group owned by creatorID. Name and description are
// required (after trimming); privacy defaults to public.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, in CreateGroupInput) (models.Group, error) {
	creator := parseID(creatorID)
	if creator.IsZero() {
		reject("create", "validation")
		return models.Group{}, fmt.Errorf("%w: creator id %q", ErrValidation, creatorID)
	}

	in.Name = htmlsanitize.StripTags(in.Name)
	in.Description = htmlsanitize.Sanitize(in.Description)
	in.Privacy = strings.ToLower(strings.TrimSpace(in.Privacy))
	if err := s.validate.Struct(in); err != nil {
		reject("create", "validation")
		return models.Group{}, fmt.Errorf("%w: %s", ErrValidation, describe(err))
	}

	g, err := s.groups.Create(ctx, models.Group{
		Name:        in.Name,
		Description: in.Description,
		Privacy:     lo.Ternary(in.Privacy == "", models.PrivacyPublic, in.Privacy),
		CreatedBy:   creator,
	})
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

// GetGroup returns a group by id with creator and member names.
func (s *Service) GetGroup(ctx context.Context, groupID string) (models.EnrichedGroup, error) {
	g, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return models.EnrichedGroup{}, err
	}
	out, err := s.enrichGroups(ctx, []models.Group{g})
	if err != nil {
		return models.EnrichedGroup{}, err
	}
	return out[0], nil
}

// ListGroups returns every group, newest first, with creator and member
// names. Profiles are fetched in one batch for the whole list.
func (s *Service) ListGroups(ctx context.Context) ([]models.EnrichedGroup, error) {
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return s.enrichGroups(ctx, groups)
}

func (s *Service) enrichGroups(ctx context.Context, groups []models.Group) ([]models.EnrichedGroup, error) {
	ids := lo.FlatMap(groups, func(g models.Group, _ int) []primitive.ObjectID {
		return append([]primitive.ObjectID{g.CreatedBy},
			lo.Map(g.Members, func(m models.GroupMember, _ int) primitive.ObjectID { return m.UserID })...)
	})
	profiles, err := s.profiles.Profiles(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("load member profiles: %w", err)
	}

	return lo.Map(groups, func(g models.Group, _ int) models.EnrichedGroup {
		return models.EnrichedGroup{
			Group:   g,
			Creator: models.Author{ID: g.CreatedBy, Name: profiles[g.CreatedBy].Name},
			Members: lo.Map(g.Members, func(m models.GroupMember, _ int) models.MemberProfile {
				return models.MemberProfile{GroupMember: m, Name: profiles[m.UserID].Name}
			}),
		}
	}), nil
}

// enrich attaches author display data. Authors without a profile keep the
// name stamped on the message.
func (s *Service) enrich(ctx context.Context, msgs []models.GroupMessage) ([]models.EnrichedMessage, error) {
	ids := lo.Map(msgs, func(m models.GroupMessage, _ int) primitive.ObjectID { return m.UserID })
	profiles, err := s.profiles.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load author profiles: %w", err)
	}

	return lo.Map(msgs, func(m models.GroupMessage, _ int) models.EnrichedMessage {
		a := models.Author{ID: m.UserID, Name: m.UserName}
		if p, ok := profiles[m.UserID]; ok {
			if p.Name != "" {
				a.Name = p.Name
			}
			a.Avatar = p.Avatar
		}
		return models.EnrichedMessage{GroupMessage: m, Author: a}
	}), nil
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		return strings.ToLower(fe.Field()) + " " + fe.Tag()
	})
	return strings.Join(parts, ", ")
}
