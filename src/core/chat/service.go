package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"askhc/src/core/rag"
	"askhc/src/infrastructure/log"
)

const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusNoDocuments = "no_documents"

	StatsReady   = "ready"
	StatsWaiting = "waiting_for_documents"

	AnswerEmptyQuestion = "Please provide a question."
	AnswerNoDocuments   = "No documents have been indexed yet. Please upload documents first."
	AnswerFailed        = "An error occurred while processing your question. Please try again later."
)

// Querier is the part of rag.Chain used by the chat service.
type Querier interface {
	Query(ctx context.Context, question string, history []rag.Message, withSources bool) (*rag.Answer, error)
}

// Counter reports how many vectors are indexed.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Service struct {
	chain   Querier
	counter Counter
	history HistoryStore
	now     func() time.Time
}

func NewService(chain Querier, counter Counter, history HistoryStore) *Service {
	return &Service{
		chain:   chain,
		counter: counter,
		history: history,
		now:     time.Now,
	}
}

type AskRequest struct {
	Question       string `json:"question" binding:"required,min=1,max=1000"`
	IncludeSources bool   `json:"include_sources"`
	SessionID      string `json:"session_id"`
}

type AskResponse struct {
	Answer    string       `json:"answer"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Timestamp string       `json:"timestamp"`
	Status    string       `json:"status"`
}

type HistoryResponse struct {
	History []Message `json:"history"`
	Count   int       `json:"count"`
}

type Stats struct {
	DocumentsIndexed   int    `json:"documents_indexed"`
	ConversationLength int    `json:"conversation_length"`
	Status             string `json:"status"`
}

// Ask answers a question. Failures are reported through the response status
// with a generic answer; the history only records successful turns.
func (s *Service) Ask(ctx context.Context, req AskRequest) *AskResponse {
	now := s.now()
	resp := &AskResponse{Timestamp: now.Format(time.RFC3339)}
	session := sessionOrDefault(req.SessionID)
	question := strings.TrimSpace(req.Question)

	if question == "" {
		resp.Answer = AnswerEmptyQuestion
		resp.Status = StatusError
		return resp
	}

	count, err := s.counter.Count(ctx)
	if err != nil {
		log.Error(err, "failed to count indexed documents")
		resp.Answer = AnswerFailed
		resp.Status = StatusError
		return resp
	}
	if count == 0 {
		resp.Answer = AnswerNoDocuments
		resp.Status = StatusNoDocuments
		return resp
	}

	turns, err := s.turns(ctx, session)
	if err != nil {
		log.Error(err, "failed to load history", "session", session)
		resp.Answer = AnswerFailed
		resp.Status = StatusError
		return resp
	}

	answer, err := s.chain.Query(ctx, question, turns, req.IncludeSources)
	if err != nil {
		log.Error(err, "failed to answer question", "session", session)
		resp.Answer = AnswerFailed
		resp.Status = StatusError
		return resp
	}

	resp.Answer = answer.Text
	resp.Sources = answer.Sources
	resp.Status = StatusSuccess

	err = s.history.Append(ctx, session,
		Message{Role: rag.RoleUser, Content: question, Timestamp: now},
		Message{Role: rag.RoleAssistant, Content: answer.Text, Sources: answer.Sources, Timestamp: s.now()},
	)
	if err != nil {
		log.Error(err, "failed to save history", "session", session)
	}
	return resp
}

func (s *Service) turns(ctx context.Context, session string) ([]rag.Message, error) {
	msgs, err := s.history.Messages(ctx, session)
	if err != nil {
		return nil, err
	}
	out := make([]rag.Message, len(msgs))
	for i, m := range msgs {
		out[i] = rag.Message{Role: m.Role, Content: m.Content}
	}
	return out, nil
}

func (s *Service) History(ctx context.Context, session string) (*HistoryResponse, error) {
	msgs, err := s.history.Messages(ctx, sessionOrDefault(session))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &HistoryResponse{History: msgs, Count: len(msgs)}, nil
}

func (s *Service) ClearHistory(ctx context.Context, session string) error {
	if err := s.history.Clear(ctx, sessionOrDefault(session)); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *Service) Stats(ctx context.Context, session string) (*Stats, error) {
	count, err := s.counter.Count(ctx)
	if err != nil {
		return nil, err
	}

	length, err := s.history.Len(ctx, sessionOrDefault(session))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	stats := &Stats{
		DocumentsIndexed:   count,
		ConversationLength: length,
		Status:             StatsWaiting,
	}
	if count > 0 {
		stats.Status = StatsReady
	}
	return stats, nil
}

func sessionOrDefault(session string) string {
	if session = strings.TrimSpace(session); session == "" {
		return DefaultSession
	}
	return session
}
