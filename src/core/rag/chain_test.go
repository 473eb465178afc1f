package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"askhc/src/core/rag"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

type fakeStore struct {
	results []rag.SearchResult
	gotK    int
}

func (f *fakeStore) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, k int) ([]rag.SearchResult, error) {
	f.gotK = k
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeStore) DeleteBySource(ctx context.Context, source string) error { return nil }
func (f *fakeStore) Count(ctx context.Context) (int, error) { return len(f.results), nil }
func (f *fakeStore) Clear(ctx context.Context) error { return nil }

type fakeLLM struct {
	answer    string
	err       error
	gotSystem string
	gotPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.gotSystem = system
	f.gotPrompt = prompt
	return f.answer, f.err
}

func (f *fakeLLM) Ping(ctx context.Context) error { return nil }

func results() []rag.SearchResult {
	return []rag.SearchResult{
		{Chunk: rag.NewChunk("a.pdf", 1, 0, "alpha"), Score: 0.9},
		{Chunk: rag.NewChunk("b.txt", 0, 4, strings.Repeat("x", 250)), Score: 0.8},
		{Chunk: rag.NewChunk("c.txt", 0, 0, "gamma"), Score: 0.1},
	}
}

func TestChainQuery(t *testing.T) {
	store := &fakeStore{results: results()}
	llm := &fakeLLM{answer: "  the answer \n"}
	chain := rag.NewChain(&fakeEmbedder{}, store, llm, 2, 6)

	history := []rag.Message{{Role: rag.RoleUser, Content: "earlier"}, {Role: rag.RoleAssistant, Content: "reply"}}
	answer, err := chain.Query(context.Background(), "what is alpha?", history, true)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if answer.Text != "the answer" {
		t.Errorf("Query() answer = %q, want trimmed answer", answer.Text)
	}
	if store.gotK != 2 {
		t.Errorf("Search() k = %d, want 2", store.gotK)
	}
	if llm.gotSystem != rag.SystemPrompt {
		t.Errorf("Generate() system = %q", llm.gotSystem)
	}
	wantContext := "alpha" + rag.ContextSeparator + strings.Repeat("x", 250)
	if !strings.Contains(llm.gotPrompt, wantContext) {
		t.Errorf("prompt does not contain joined context: %q", llm.gotPrompt)
	}
	if strings.Contains(llm.gotPrompt, "gamma") {
		t.Errorf("prompt contains a chunk beyond k")
	}
	if !strings.Contains(llm.gotPrompt, "User: earlier\nAssistant: reply\n") {
		t.Errorf("prompt does not contain history: %q", llm.gotPrompt)
	}

	if len(answer.Sources) != 2 {
		t.Fatalf("Query() sources = %d, want 2", len(answer.Sources))
	}
	if got := answer.Sources[0].Content; got != "alpha..." {
		t.Errorf("source preview = %q, want alpha...", got)
	}
	if got := answer.Sources[1].Content; got != strings.Repeat("x", 200)+"..." {
		t.Errorf("long source preview has length %d", len(got))
	}
	if answer.Sources[0].Metadata["page"] != 1 {
		t.Errorf("pdf source page = %v, want 1", answer.Sources[0].Metadata["page"])
	}
	if _, ok := answer.Sources[1].Metadata["page"]; ok {
		t.Errorf("text source should not carry a page")
	}
	if answer.Sources[1].Metadata["source"] != "b.txt" {
		t.Errorf("source name = %v, want b.txt", answer.Sources[1].Metadata["source"])
	}
}

func TestChainQueryWithoutSources(t *testing.T) {
	chain := rag.NewChain(&fakeEmbedder{}, &fakeStore{results: results()}, &fakeLLM{answer: "ok"}, 5, 6)
	answer, err := chain.Query(context.Background(), "q", nil, false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if answer.Sources != nil {
		t.Errorf("Query() sources = %v, want nil", answer.Sources)
	}
}

func TestChainQueryErrors(t *testing.T) {
	errAPI := errors.New("api down")

	tests := []struct {
		name     string
		embedder *fakeEmbedder
		llm      *fakeLLM
	}{
		{name: "embedding fails", embedder: &fakeEmbedder{err: errAPI}, llm: &fakeLLM{}},
		{name: "generation fails", embedder: &fakeEmbedder{}, llm: &fakeLLM{err: errAPI}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := rag.NewChain(tt.embedder, &fakeStore{results: results()}, tt.llm, 5, 6)
			_, err := chain.Query(context.Background(), "q", nil, false)
			if !errors.Is(err, errAPI) {
				t.Errorf("Query() error = %v, want wrapped %v", err, errAPI)
			}
		})
	}
}

func TestFormatContextEmpty(t *testing.T) {
	if got := rag.FormatContext(nil); got != "" {
		t.Errorf("FormatContext(nil) = %q, want empty", got)
	}
}
