package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vk "github.com/valkey-io/valkey-go"

	"askhc/src/core/chat"
)

const chatPrefix = "chat:" // Chat message list key prefix

// HistoryStore keeps every session as a valkey list of JSON encoded messages.
type HistoryStore struct {
	client vk.Client
	ttl    time.Duration
}

// NewClient connects to a single valkey node
func NewClient(address, password string, db int) (vk.Client, error) {
	client, err := vk.NewClient(vk.ClientOption{
		InitAddress: []string{address},
		Password:    password,
		SelectDB:    db,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return client, nil
}

// NewHistoryStore returns a store whose sessions expire ttl after their last
// message. A zero ttl keeps them forever.
func NewHistoryStore(client vk.Client, ttl time.Duration) *HistoryStore {
	return &HistoryStore{client: client, ttl: ttl}
}

func (s *HistoryStore) Append(ctx context.Context, session string, msgs ...chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	elements, err := encodeMessages(msgs)
	if err != nil {
		return err
	}

	key := sessionKey(session)
	cmds := vk.Commands{s.client.B().Rpush().Key(key).Element(elements...).Build()}
	if s.ttl > 0 {
		cmds = append(cmds, s.client.B().Pexpire().Key(key).Milliseconds(ttlMillis(s.ttl)).Build())
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("failed to save chat messages: %w", err)
		}
	}
	return nil
}

func (s *HistoryStore) Messages(ctx context.Context, session string) ([]chat.Message, error) {
	raw, err := s.client.Do(ctx, s.client.B().Lrange().Key(sessionKey(session)).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	return decodeMessages(raw)
}

func (s *HistoryStore) Len(ctx context.Context, session string) (int, error) {
	n, err := s.client.Do(ctx, s.client.B().Llen().Key(sessionKey(session)).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}
	return int(n), nil
}

func (s *HistoryStore) Clear(ctx context.Context, session string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(sessionKey(session)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return nil
}

// Ping checks that the server answers
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// ttlMillis rounds ttl up to whole milliseconds so that a positive ttl never
// expires the key immediately.
func ttlMillis(ttl time.Duration) int64 {
	ms := int64((ttl + time.Millisecond - 1) / time.Millisecond)
	return max(ms, 1)
}

func sessionKey(session string) string {
	return chatPrefix + session
}

func encodeMessages(msgs []chat.Message) ([]string, error) {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chat message: %w", err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func decodeMessages(raw []string) ([]chat.Message, error) {
	out := make([]chat.Message, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &out[i]); err != nil {
			return nil, fmt.Errorf("failed to decode chat message %d: %w", i, err)
		}
	}
	return out, nil
}
