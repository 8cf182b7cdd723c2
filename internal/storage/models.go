package storage

import "time"

// Entity is a node of the knowledge graph.
type Entity struct {
	ID          string // UUID
	Name        string // Unique, case-insensitive
	Description string // Markdown
	URL         string // Provenance link checked by the citation gate
	UpdatedAt   time.Time
}

// Relation is a directed edge "subject predicate object".
type Relation struct {
	Subject   string // Entity name
	Predicate string
	Object    string // Entity name
	SourceURL string
}
