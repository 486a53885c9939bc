// Package codec converts between the editor graph and the flat node and edge
// records the roadmap service persists. Structural defects are repaired here,
// at the boundary, so a bad record never reaches the editor or the server.
package codec

import "time"

// Roadmap is the metadata row of a persisted roadmap. ID is zero until the
// server has assigned one.
type Roadmap struct {
	ID          int64     `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// NodeRecord is the persisted form of a node. Data holds the JSON-encoded
// node data.
type NodeRecord struct {
	NodeIdentifier string  `json:"nodeIdentifier"`
	PositionX      float64 `json:"positionX"`
	PositionY      float64 `json:"positionY"`
	Data           string  `json:"data"`
	CourseID       *int64  `json:"courseId"`
	RoadmapID      *int64  `json:"roadmapId"`
}

// EdgeRecord is the persisted form of an edge. Style and Data hold JSON.
type EdgeRecord struct {
	EdgeIdentifier string  `json:"edgeIdentifier"`
	Source         string  `json:"source"`
	Target         string  `json:"target"`
	SourceHandle   *string `json:"sourceHandle"`
	TargetHandle   *string `json:"targetHandle"`
	Type           string  `json:"type"`
	Animated       bool    `json:"animated"`
	Style          string  `json:"style"`
	Data           string  `json:"data"`
	RoadmapID      *int64  `json:"roadmapId"`
}

// Payload is an encoded graph ready to send.
type Payload struct {
	Nodes []NodeRecord `json:"nodes"`
	Edges []EdgeRecord `json:"edges"`
}
