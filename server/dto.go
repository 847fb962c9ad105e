package server

import (
	"time"

	"github.com/hubenschmidt/go-resurface/core"
)

type CreateNoteRequest struct {
	Content string `json:"content"`
}

type RelatedNoteInfo struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

type NoteResponse struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	CreatedAt    time.Time         `json:"created_at"`
	LinksCreated int               `json:"links_created"`
	RelatedNotes []RelatedNoteInfo `json:"related_notes"`
}

type RelatedResponse struct {
	RelatedNotes []RelatedNoteInfo `json:"related_notes"`
}

type RelinkResponse struct {
	LinksCreated int               `json:"links_created"`
	RelatedNotes []RelatedNoteInfo `json:"related_notes"`
}

type RecallRequest struct {
	Query string `json:"query"`
	// Limit defaults to 10 when omitted.
	Limit *int `json:"limit,omitempty"`
}

type RecalledNote struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	RelevanceScore float64   `json:"relevance_score"`
	CreatedAt      time.Time `json:"created_at"`
}

type MemoryCluster struct {
	ClusterReason string         `json:"cluster_reason"`
	Notes         []RecalledNote `json:"notes"`
}

type RecallResponse struct {
	RecalledMemories []MemoryCluster `json:"recalled_memories"`
}

type GraphNode struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type GraphEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
	Reason   string  `json:"reason,omitempty"`
}

type GraphResponse struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	// NoteID is set when a note was stored before the failure.
	NoteID string `json:"note_id,omitempty"`
}

func toRelatedInfo(related []core.RelatedNote) []RelatedNoteInfo {
	out := make([]RelatedNoteInfo, len(related))
	for i, r := range related {
		out[i] = RelatedNoteInfo{ID: r.ID, Content: r.Content, Strength: r.Strength, CreatedAt: r.CreatedAt}
	}
	return out
}

func toRecallResponse(clusters []core.Cluster) RecallResponse {
	out := make([]MemoryCluster, len(clusters))
	for i, c := range clusters {
		notes := make([]RecalledNote, len(c.Notes))
		for j, n := range c.Notes {
			notes[j] = RecalledNote{
				ID:             n.ID,
				Content:        n.Content,
				RelevanceScore: n.RelevanceScore,
				CreatedAt:      n.CreatedAt,
			}
		}
		out[i] = MemoryCluster{ClusterReason: c.Label, Notes: notes}
	}
	return RecallResponse{RecalledMemories: out}
}

func toGraphResponse(g core.Graph) GraphResponse {
	nodes := make([]GraphNode, len(g.Nodes))
	for i, n := range g.Nodes {
		nodes[i] = GraphNode{ID: n.ID, Content: n.Content, CreatedAt: n.CreatedAt}
	}
	edges := make([]GraphEdge, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = GraphEdge{Source: e.SourceID, Target: e.TargetID, Strength: e.Strength, Reason: e.Reason}
	}
	return GraphResponse{Nodes: nodes, Edges: edges}
}
