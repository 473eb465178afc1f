package rag

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Document is a loaded file split into pages. Plain text files have a single
// page numbered 0; PDF pages are numbered from 1.
type Document struct {
	Source string
	Format string
	Pages  []Page
}

type Page struct {
	Number int
	Text   string
}

// Chunk is the unit of retrieval. Its ID is derived from the source, page and
// index so that indexing the same file twice maps to the same vector ids.
type Chunk struct {
	ID      string
	Source  string
	Page    int
	Index   int
	Content string
}

// ChunkID returns the stable identifier for a chunk position in a document.
func ChunkID(source string, page, index int) string {
	name := fmt.Sprintf("%s/%d/%d", source, page, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// NewChunk builds a chunk with its stable ID filled in.
func NewChunk(source string, page, index int, content string) Chunk {
	return Chunk{
		ID:      ChunkID(source, page, index),
		Source:  source,
		Page:    page,
		Index:   index,
		Content: content,
	}
}

// Metadata returns the string metadata stored next to the vector.
func (c Chunk) Metadata() map[string]string {
	return map[string]string{
		"source":      c.Source,
		"page":        strconv.Itoa(c.Page),
		"chunk_index": strconv.Itoa(c.Index),
	}
}

// ChunkFromMetadata is the inverse of Chunk.Metadata.
func ChunkFromMetadata(id, content string, md map[string]string) Chunk {
	page, _ := strconv.Atoi(md["page"])
	index, _ := strconv.Atoi(md["chunk_index"])
	return Chunk{
		ID:      id,
		Source:  md["source"],
		Page:    page,
		Index:   index,
		Content: content,
	}
}

// SearchResult is a chunk returned by a similarity search. Score is a
// similarity, higher is closer.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Source is the citation returned alongside an answer.
type Source struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
