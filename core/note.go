package core

import "time"

// ReasonSemanticSimilarity tags links created by similarity discovery.
const ReasonSemanticSimilarity = "semantic similarity"

// Note is a single user-authored text entry. Content and CreatedAt never
// change after creation; Embedding is nil until computed and set once.
type Note struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float64 `json:"-"`
}

func (n Note) HasEmbedding() bool {
	return len(n.Embedding) > 0
}

// MemoryLink is a directed, weighted edge between two notes.
type MemoryLink struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Strength  float64   `json:"strength"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredNote is a recall candidate.
type ScoredNote struct {
	Note
	Similarity     float64 `json:"similarity"`
	RelevanceScore float64 `json:"relevance_score"`
}

type Cluster struct {
	Label string       `json:"label"`
	Notes []ScoredNote `json:"notes"`
}

type RelatedNote struct {
	Note
	Strength float64 `json:"strength"`
}

type Graph struct {
	Nodes []Note       `json:"nodes"`
	Edges []MemoryLink `json:"edges"`
}
