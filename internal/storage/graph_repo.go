package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_graph_store.go -package=mocks ragguard/internal/storage GraphStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"ragguard/internal/evidence"
	"ragguard/internal/textutil"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

const (
	// maxTerms bounds the number of query terms turned into LIKE clauses.
	maxTerms = 8
	// maxCandidates bounds the rows scored per lookup.
	maxCandidates = 200
	// relationsPerEntity is how many edges are rendered into a snippet.
	relationsPerEntity = 5
)

// GraphStore defines the knowledge-graph write operations used for seeding.
type GraphStore interface {
	// UpsertEntity inserts an entity or updates the one with the same name.
	UpsertEntity(ctx context.Context, entity *Entity) error
	// AddRelation links two existing entities by name.
	AddRelation(ctx context.Context, rel Relation) error
}

// GraphRepo provides knowledge-graph storage and lookup.
// It implements GraphStore and the KG retrieval backend.
type GraphRepo struct {
	db *sql.DB
}

// NewGraphRepo creates a new GraphRepo.
func NewGraphRepo(db *sql.DB) *GraphRepo {
	return &GraphRepo{db: db}
}

// GetEntityByName gets an entity by case-insensitive name.
// Returns nil and ErrNotFound if not found.
func (r *GraphRepo) GetEntityByName(ctx context.Context, name string) (*Entity, error) {
	var e Entity
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, description, url, updated_at FROM entities WHERE name = ?",
		strings.TrimSpace(name),
	).Scan(&e.ID, &e.Name, &e.Description, &e.URL, &e.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	return &e, nil
}

// UpsertEntity inserts a new entity or updates an existing one.
// A new entity gets a UUID; an existing one keeps its ID.
func (r *GraphRepo) UpsertEntity(ctx context.Context, entity *Entity) error {
	entity.Name = strings.TrimSpace(entity.Name)
	if entity.Name == "" {
		return fmt.Errorf("entity name cannot be empty")
	}

	existing, err := r.GetEntityByName(ctx, entity.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to check existing entity: %w", err)
	}

	if existing != nil {
		entity.ID = existing.ID
	} else if entity.ID == "" {
		entity.ID = uuid.New().String()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO entities (id, name, description, url, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE SET
		 description = excluded.description, url = excluded.url, updated_at = CURRENT_TIMESTAMP`,
		entity.ID, entity.Name, entity.Description, entity.URL,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// AddRelation links two entities by name. Both must exist. Adding the same
// edge twice is a no-op.
func (r *GraphRepo) AddRelation(ctx context.Context, rel Relation) error {
	predicate := strings.TrimSpace(rel.Predicate)
	if predicate == "" {
		return fmt.Errorf("relation predicate cannot be empty")
	}
	subject, err := r.GetEntityByName(ctx, rel.Subject)
	if err != nil {
		return fmt.Errorf("subject %q: %w", rel.Subject, err)
	}
	object, err := r.GetEntityByName(ctx, rel.Object)
	if err != nil {
		return fmt.Errorf("object %q: %w", rel.Object, err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO relations (subject_id, predicate, object_id, source_url) VALUES (?, ?, ?, ?)
		 ON CONFLICT (subject_id, predicate, object_id) DO UPDATE SET source_url = excluded.source_url`,
		subject.ID, predicate, object.ID, rel.SourceURL,
	)
	if err != nil {
		return fmt.Errorf("failed to add relation: %w", err)
	}
	return nil
}

// Lookup finds entities whose name or description mentions the query terms
// and renders each, with its nearest relations, as one slice. A term found
// in the name counts fully, one found only in the description counts half.
func (r *GraphRepo) Lookup(ctx context.Context, query string, topK int) ([]evidence.ContextSlice, error) {
	if topK <= 0 {
		return nil, nil
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(terms))
	args := make([]any, 0, 2*len(terms)+1)
	for _, t := range terms {
		pattern := "%" + escapeLike(t) + "%"
		clauses = append(clauses, `name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	args = append(args, maxCandidates)

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, description, url FROM entities WHERE "+strings.Join(clauses, " OR ")+" LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	type match struct {
		entity Entity
		score  float64
	}
	var matches []match
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.URL); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		matches = append(matches, match{entity: e, score: termScore(terms, e)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entity.Name < matches[j].entity.Name
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]evidence.ContextSlice, 0, len(matches))
	for _, m := range matches {
		edges, err := r.relationsOf(ctx, m.entity.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, evidence.ContextSlice{
			ID:      "kg:" + m.entity.ID,
			Source:  evidence.SourceKG,
			Origin:  evidence.SourceKG,
			Title:   m.entity.Name,
			Snippet: snippet(m.entity, edges),
			URL:     m.entity.URL,
			Score:   m.score,
		})
	}
	return evidence.Renumber(out), nil
}

// relationsOf returns up to relationsPerEntity edges touching the entity.
func (r *GraphRepo) relationsOf(ctx context.Context, entityID string) ([]Relation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.name, r.predicate, o.name, r.source_url
		 FROM relations r
		 JOIN entities s ON s.id = r.subject_id
		 JOIN entities o ON o.id = r.object_id
		 WHERE r.subject_id = ? OR r.object_id = ?
		 ORDER BY r.id
		 LIMIT ?`,
		entityID, entityID, relationsPerEntity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Relation
	for rows.Next() {
		var rel Relation
		if err := rows.Scan(&rel.Subject, &rel.Predicate, &rel.Object, &rel.SourceURL); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func snippet(e Entity, edges []Relation) string {
	_, text := textutil.MarkdownToText([]byte(e.Description))
	parts := make([]string, 0, len(edges)+1)
	if text != "" {
		parts = append(parts, text)
	}
	for _, rel := range edges {
		parts = append(parts, fmt.Sprintf("%s %s %s.", rel.Subject, rel.Predicate, rel.Object))
	}
	return strings.Join(parts, " ")
}

func termScore(terms []string, e Entity) float64 {
	name := strings.ToLower(e.Name)
	desc := strings.ToLower(e.Description)
	var score float64
	for _, t := range terms {
		switch {
		case strings.Contains(name, t):
			score += 1
		case strings.Contains(desc, t):
			score += 0.5
		}
	}
	return score / float64(len(terms))
}

// queryTerms lower-cases the query, splits it on anything that is not a
// letter or digit and keeps distinct terms of at least two runes.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
