// Package store persists conversations and messages in a local badger
// database. Values are JSON; keys are prefixed by entity kind and ids
// are version 7 UUIDs, so message keys iterate in creation order.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/pkg/slogx"
	"github.com/parleyhq/parley/pkg/uuidx"
	"github.com/samber/lo"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	conversationPrefix = "conversation:"
	messagePrefix      = "message:"

	// DefaultTitle is assigned to conversations created without one.
	DefaultTitle = "New Conversation"
)

// Store is a badger-backed record store.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the database under dir.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func conversationKey(id string) []byte {
	return []byte(conversationPrefix + id)
}

func messageKey(conversationID, id string) []byte {
	return []byte(messagePrefix + conversationID + ":" + id)
}

// ParticipantSpec describes one participant of a conversation to be
// created. A nil OrderIndex defaults to the entry's position in the list.
type ParticipantSpec struct {
	ModelID     string   `json:"modelId"`
	DisplayName string   `json:"displayName"`
	Role        api.Role `json:"role"`
	OrderIndex  *int     `json:"orderIndex"`
}

// CreateConversation creates a conversation with its participants.
func (s *Store) CreateConversation(ctx context.Context, title string, mode api.Mode, specs []ParticipantSpec) (api.Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}

	now := strfmt.DateTime(time.Now().UTC())
	conv := api.Conversation{
		ID:        uuidx.NewString(),
		Title:     title,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv.Participants = lo.Map(specs, func(spec ParticipantSpec, i int) api.Participant {
		role := spec.Role
		if role == "" {
			role = api.RoleParticipant
		}
		return api.Participant{
			ID:             uuidx.NewString(),
			ConversationID: conv.ID,
			ModelID:        spec.ModelID,
			DisplayName:    spec.DisplayName,
			Role:           role,
			OrderIndex:     lo.FromPtrOr(spec.OrderIndex, i),
		}
	})

	if err := s.putConversation(conv); err != nil {
		return api.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) putConversation(conv api.Conversation) error {
	record := conv
	record.Messages = nil // messages live under their own keys
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conv.ID), value)
	})
}

// GetConversation loads a conversation with its participants and all
// messages in creation order.
func (s *Store) GetConversation(ctx context.Context, id string) (api.Conversation, error) {
	conv, err := s.getConversation(id)
	if err != nil {
		return api.Conversation{}, err
	}
	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return api.Conversation{}, err
	}
	conv.Messages = messages
	return conv, nil
}

func (s *Store) getConversation(id string) (api.Conversation, error) {
	var conv api.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &conv)
		})
	})
	if err != nil {
		return api.Conversation{}, err
	}
	return conv, nil
}

// ListConversations returns all conversations ordered by most recent
// update, each carrying at most its first message (enough for a sidebar
// preview).
func (s *Store) ListConversations(ctx context.Context) ([]api.Conversation, error) {
	var conversations []api.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(conversationPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var conv api.Conversation
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &conv)
			}); err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range conversations {
		first, err := s.firstMessage(conversations[i].ID)
		if err != nil {
			return nil, err
		}
		if first != nil {
			conversations[i].Messages = []api.Message{*first}
		}
	}

	slices.SortFunc(conversations, func(a, b api.Conversation) int {
		return time.Time(b.UpdatedAt).Compare(time.Time(a.UpdatedAt))
	})
	return conversations, nil
}

func (s *Store) firstMessage(conversationID string) (*api.Message, error) {
	var first *api.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(messagePrefix + conversationID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}
		var msg api.Message
		if err := it.Item().Value(func(value []byte) error {
			return json.Unmarshal(value, &msg)
		}); err != nil {
			return err
		}
		first = &msg
		return nil
	})
	return first, err
}

// DeleteConversation removes a conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(conversationKey(id)); err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(messagePrefix + id + ":")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateConversationTitle renames a conversation and bumps its updatedAt.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	conv, err := s.getConversation(id)
	if err != nil {
		return err
	}
	conv.Title = strings.TrimSpace(title)
	conv.UpdatedAt = strfmt.DateTime(time.Now().UTC())
	return s.putConversation(conv)
}

// CreateMessage persists one message, assigning its id and timestamp,
// and bumps the conversation's updatedAt. The conversation must exist.
func (s *Store) CreateMessage(ctx context.Context, msg api.Message) (api.Message, error) {
	conv, err := s.getConversation(msg.ConversationID)
	if err != nil {
		return api.Message{}, err
	}

	msg.ID = uuidx.NewString()
	msg.CreatedAt = strfmt.DateTime(time.Now().UTC())
	value, err := json.Marshal(msg)
	if err != nil {
		return api.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ConversationID, msg.ID), value)
	}); err != nil {
		return api.Message{}, err
	}

	conv.UpdatedAt = msg.CreatedAt
	if err := s.putConversation(conv); err != nil {
		// The message itself landed; a stale updatedAt only affects
		// sidebar ordering.
		s.log.Warn("failed to bump conversation timestamp",
			"conversation_id", conv.ID, slogx.Error(err))
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]api.Message, error) {
	var messages []api.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(messagePrefix + conversationID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var msg api.Message
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			}); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	return messages, err
}
