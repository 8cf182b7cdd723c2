package storage

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document loaded by `ragctl kg seed`:
//
//	entities:
//	  - name: National Tax Service
//	    url: https://www.nts.go.kr
//	    description: |
//	      Collects **national** taxes.
//	relations:
//	  - subject: National Tax Service
//	    predicate: is part of
//	    object: Ministry of Economy and Finance
type Seed struct {
	Entities  []SeedEntity   `yaml:"entities"`
	Relations []SeedRelation `yaml:"relations"`
}

// SeedEntity is one entity in a seed file.
type SeedEntity struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

// SeedRelation is one relation in a seed file.
type SeedRelation struct {
	Subject   string `yaml:"subject"`
	Predicate string `yaml:"predicate"`
	Object    string `yaml:"object"`
	SourceURL string `yaml:"source_url"`
}

// SeedStats counts what a seed wrote.
type SeedStats struct {
	Entities  int
	Relations int
}

// LoadSeed decodes a seed document. Unknown fields are rejected.
func LoadSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Seed
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return &s, nil
		}
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return &s, nil
}

// Apply writes the seed's entities, then its relations. It stops at the
// first failure; what was written before stays.
func (s *Seed) Apply(ctx context.Context, store GraphStore) (SeedStats, error) {
	var stats SeedStats
	for _, e := range s.Entities {
		entity := &Entity{Name: e.Name, Description: e.Description, URL: e.URL}
		if err := store.UpsertEntity(ctx, entity); err != nil {
			return stats, fmt.Errorf("entity %q: %w", e.Name, err)
		}
		stats.Entities++
	}
	for _, rel := range s.Relations {
		err := store.AddRelation(ctx, Relation{
			Subject:   rel.Subject,
			Predicate: rel.Predicate,
			Object:    rel.Object,
			SourceURL: rel.SourceURL,
		})
		if err != nil {
			return stats, fmt.Errorf("relation %s -%s-> %s: %w", rel.Subject, rel.Predicate, rel.Object, err)
		}
		stats.Relations++
	}
	return stats, nil
}
