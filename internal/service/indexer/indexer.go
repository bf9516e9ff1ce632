// Package indexer builds the denormalized search documents and keeps the
// search engine in sync with the relational store.
package indexer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrdataworks/talentdb/internal/domain"
	"github.com/hrdataworks/talentdb/pkg/textx"
)

// Section caps keep documents bounded for pathological CVs; search quality
// does not improve past these.
const (
	maxSkills     = 20
	maxExperience = 5
	maxLanguages  = 5
	maxCerts      = 5
	maxTraining   = 5
)

// Indexer embeds and writes candidate documents.
type Indexer struct {
	search domain.SearchIndex
	ai     domain.AIClient
}

// New constructs an Indexer.
func New(search domain.SearchIndex, client domain.AIClient) *Indexer {
	return &Indexer{search: search, ai: client}
}

// BuildDocument assembles the search document for one profile, without the
// embedding vector.
func BuildDocument(p domain.CandidateProfile) domain.SearchDocument {
	doc := domain.SearchDocument{
		CandidateID:    p.ID,
		FullName:       p.FullName(),
		FullNameFolded: strings.TrimSpace(p.Identity.FirstNameFolded + " " + p.Identity.LastNameFolded),
		Location:       p.Identity.City,
		UpdatedAt:      p.UpdatedAt,
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}

	for _, s := range p.Skills[:min(len(p.Skills), maxSkills)] {
		doc.Skills = append(doc.Skills, domain.SearchSkill{
			Name:        s.Name,
			CanonicalID: s.Match.CanonicalID,
		})
	}
	for _, e := range p.Experience[:min(len(p.Experience), maxExperience)] {
		doc.Experience = append(doc.Experience, domain.SearchJob{
			Title:          e.Title,
			Company:        e.Company,
			Description:    e.Description,
			DurationMonths: e.DurationMonths,
		})
	}
	doc.Languages = p.Languages[:min(len(p.Languages), maxLanguages)]
	for _, c := range p.Certifications[:min(len(p.Certifications), maxCerts)] {
		doc.Certifications = append(doc.Certifications, c.Name)
	}
	for _, tr := range p.Training[:min(len(p.Training), maxTraining)] {
		doc.Training = append(doc.Training, tr.Name)
	}
	for _, d := range p.DrivingLicenses {
		doc.Licenses = append(doc.Licenses, d.Category)
	}
	return doc
}

// EmbeddingText composes the text embedded for semantic search: name,
// skills, roles, and descriptions, folded for consistency with queries.
func EmbeddingText(p domain.CandidateProfile) string {
	var b strings.Builder
	b.WriteString(p.FullName())
	b.WriteString("\n")
	for _, e := range p.Experience[:min(len(p.Experience), maxExperience)] {
		b.WriteString(e.Title)
		if e.Company != "" {
			b.WriteString(" at ")
			b.WriteString(e.Company)
		}
		b.WriteString(". ")
		if e.Description != "" {
			b.WriteString(e.Description)
			b.WriteString(" ")
		}
	}
	b.WriteString("\nSkills: ")
	for i, s := range p.Skills[:min(len(p.Skills), maxSkills)] {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.Name)
	}
	return textx.Fold(b.String())
}

// IndexProfile embeds and writes one candidate document.
func (ix *Indexer) IndexProfile(ctx domain.Context, p domain.CandidateProfile) error {
	doc := BuildDocument(p)
	vecs, err := ix.ai.Embed(ctx, []string{EmbeddingText(p)})
	if err != nil {
		return fmt.Errorf("op=indexer.IndexProfile: %w", err)
	}
	doc.Embedding = vecs[0]
	if err := ix.search.IndexCandidate(ctx, doc); err != nil {
		return fmt.Errorf("op=indexer.IndexProfile: %w", err)
	}
	return nil
}

// ReindexAll rebuilds the search index from every active profile, embedding
// in provider-sized batches. Documents go into a fresh versioned index; the
// serving alias moves over only after the full rebuild succeeds, so searches
// keep hitting the old index throughout.
func (ix *Indexer) ReindexAll(ctx domain.Context, repo domain.CandidateRepository) (int, error) {
	profiles, err := repo.ActiveProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("op=indexer.ReindexAll: %w", err)
	}
	target, err := ix.search.BeginReindex(ctx)
	if err != nil {
		return 0, fmt.Errorf("op=indexer.ReindexAll: %w", err)
	}

	indexed := 0
	for start := 0; start < len(profiles); start += domain.EmbedBatchSize {
		end := min(start+domain.EmbedBatchSize, len(profiles))
		batch := profiles[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = EmbeddingText(p)
		}
		vecs, err := ix.ai.Embed(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("op=indexer.ReindexAll: %w", err)
		}

		docs := make([]domain.SearchDocument, len(batch))
		for i, p := range batch {
			docs[i] = BuildDocument(p)
			docs[i].Embedding = vecs[i]
		}
		if err := ix.search.BulkIndexInto(ctx, target, docs); err != nil {
			return indexed, fmt.Errorf("op=indexer.ReindexAll: %w", err)
		}
		indexed += len(docs)
		slog.Debug("reindex batch written", slog.Int("indexed", indexed), slog.Int("total", len(profiles)))
	}

	if err := ix.search.PromoteIndex(ctx, target); err != nil {
		return indexed, fmt.Errorf("op=indexer.ReindexAll: %w", err)
	}
	slog.Info("search alias promoted", slog.String("index", target), slog.Int("indexed", indexed))
	return indexed, nil
}
