package mongostore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

const (
	DefaultConversations = "conversations"
	DefaultMessages      = "messages"
)

var ErrStore = errors.New("mongostore: operation failed")

// Store implements community.ConversationStore and community.MessageStore on
// two collections. Documents use the bson tags of the community types.
type Store struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	log           *slog.Logger
}

var (
	_ community.ConversationStore = (*Store)(nil)
	_ community.MessageStore      = (*Store)(nil)
)

type Option func(*config)

type config struct {
	conversations string
	messages      string
	log           *slog.Logger
}

// WithCollections overrides the collection names.
func WithCollections(conversations, messages string) Option {
	return func(o *config) {
		if conversations != "" {
			o.conversations = conversations
		}
		if messages != "" {
			o.messages = messages
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *config) {
		if l != nil {
			o.log = l
		}
	}
}

func New(db *mongo.Database, opts ...Option) *Store {
	o := config{
		conversations: DefaultConversations,
		messages:      DefaultMessages,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		conversations: db.Collection(o.conversations),
		messages:      db.Collection(o.messages),
		log:           o.log,
	}
}

// EnsureIndexes creates the indexes the lookups rely on. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}}},
	}); err != nil {
		return errors.Join(ErrStore, err)
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}); err != nil {
		return errors.Join(ErrStore, err)
	}
	s.log.LogAttrs(ctx, slog.LevelDebug, "mongo indexes ensured", logger.Component("mongostore"))
	return nil
}

// SaveConversation upserts c by id.
func (s *Store) SaveConversation(ctx context.Context, c community.Conversation) error {
	_, err := s.conversations.ReplaceOne(ctx, bson.M{"_id": c.ID}, c,
		mopts.Replace().SetUpsert(true))
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	return nil
}

// SaveMessage inserts msg. An existing message with the same id is kept.
func (s *Store) SaveMessage(ctx context.Context, msg community.Message) error {
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return errors.Join(ErrStore, err)
	}
	return nil
}

func (s *Store) ConversationsFor(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.conversations.Find(ctx,
		bson.M{"participants.user_id": userID},
		mopts.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (s *Store) Conversation(ctx context.Context, conversationID string) (community.Conversation, error) {
	var c community.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return community.Conversation{}, community.ErrConversationNotFound
		}
		return community.Conversation{}, errors.Join(ErrStore, err)
	}
	return c, nil
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	n, err := s.conversations.CountDocuments(ctx, bson.M{
		"_id":                  conversationID,
		"participants.user_id": userID,
	})
	if err != nil {
		return false, errors.Join(ErrStore, err)
	}
	return n > 0, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := s.conversations.UpdateMany(ctx,
		bson.M{"participants.user_id": userID},
		bson.M{"$set": bson.M{"participants.$[p].last_seen_at": at}},
		mopts.UpdateMany().SetArrayFilters([]any{bson.M{"p.user_id": userID}}),
	)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	return nil
}

func (s *Store) UpdateLastMessage(ctx context.Context, conversationID string, summary community.MessageSummary) error {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message": summary}},
	)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if res.MatchedCount == 0 {
		return community.ErrConversationNotFound
	}
	return nil
}

func (s *Store) IncrementUnread(ctx context.Context, conversationID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"participants.$[p].unread": 1}},
		mopts.UpdateOne().SetArrayFilters([]any{bson.M{"p.user_id": bson.M{"$in": userIDs}}}),
	)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if res.MatchedCount == 0 {
		return community.ErrConversationNotFound
	}
	return nil
}

func (s *Store) ResetUnread(ctx context.Context, conversationID, userID string) error {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"participants.$[p].unread": 0}},
		mopts.UpdateOne().SetArrayFilters([]any{bson.M{"p.user_id": userID}}),
	)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if res.MatchedCount == 0 {
		return community.ErrConversationNotFound
	}
	return nil
}

func (s *Store) Message(ctx context.Context, messageID string) (community.Message, error) {
	var msg community.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return community.Message{}, community.ErrMessageNotFound
		}
		return community.Message{}, errors.Join(ErrStore, err)
	}
	return msg, nil
}

// AddReader uses $addToSet so concurrent readers never duplicate entries.
func (s *Store) AddReader(ctx context.Context, messageID, readerID string) (bool, error) {
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"read_by": readerID}},
	)
	if err != nil {
		return false, errors.Join(ErrStore, err)
	}
	if res.MatchedCount == 0 {
		return false, community.ErrMessageNotFound
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) UnreadFor(ctx context.Context, conversationID, userID string) ([]community.Message, error) {
	cur, err := s.messages.Find(ctx,
		bson.M{
			"conversation_id": conversationID,
			"sender_id":       bson.M{"$ne": userID},
			"read_by":         bson.M{"$ne": userID},
		},
		mopts.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	var out []community.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Join(ErrStore, err)
	}
	return out, nil
}
