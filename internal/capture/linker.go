package capture

import "context"

// CreateSourceLinkInput is the caller-supplied half of a source link: the
// committed content and where it landed.
type CreateSourceLinkInput struct {
	DocID       string
	SectionPath *string
	Content     string
}

// Linker connects committed content to the sources that plausibly
// contributed to it, using a snapshot of the currently active sources at
// commit time.
type Linker struct {
	tracker *Tracker
	store   *Store
	digest  Digest
}

// NewLinker wires a Linker over a Tracker and the persistence layer.
func NewLinker(tracker *Tracker, store *Store, digest Digest) *Linker {
	return &Linker{tracker: tracker, store: store, digest: digest}
}

// CreateSourceLink snapshots the active sources, persists a SourceLink
// (orphan if no source is active) and its LinkedSources in one
// transaction, and returns the result.
func (l *Linker) CreateSourceLink(ctx context.Context, input CreateSourceLinkInput) (*SourceLinkWithSources, error) {
	now := NowMillis()
	threshold := minLinkRelevance
	active := l.tracker.GetActive(&threshold)

	contentDigest := l.digest.Compute([]byte(input.Content))
	preview := truncatePreview(input.Content, previewLength)

	link := SourceLink{
		ID:            NewID(),
		DocID:         input.DocID,
		SectionPath:   input.SectionPath,
		ContentDigest: contentDigest,
		Preview:       &preview,
		CreatedAt:     now,
	}

	if len(active) == 0 {
		link.ConfidenceScore = 0.0
		if err := l.store.InsertSourceLink(ctx, link, nil); err != nil {
			return nil, err
		}
		return &SourceLinkWithSources{Link: link, Sources: nil}, nil
	}

	var sum float64
	for _, a := range active {
		sum += a.Relevance
	}
	link.ConfidenceScore = sum / float64(len(active))

	sources := make([]LinkedSource, 0, len(active))
	for _, a := range active {
		sources = append(sources, LinkedSource{
			ID:               NewID(),
			LinkID:           link.ID,
			SourceType:       a.SourceType,
			SourceID:         a.SourceID,
			ContributionType: inferContributionType(a.SourceType, a.Relevance),
			Timestamp:        now,
		})
	}

	if err := l.store.InsertSourceLink(ctx, link, sources); err != nil {
		return nil, err
	}

	return &SourceLinkWithSources{Link: link, Sources: sources}, nil
}

// GetDocumentProvenance returns every source link recorded for a document.
func (l *Linker) GetDocumentProvenance(ctx context.Context, docID string) ([]SourceLinkWithSources, error) {
	return l.store.QuerySourceLinksForDoc(ctx, docID)
}

// inferContributionType classifies how a source contributed based on its
// type and decayed relevance at commit time.
func inferContributionType(sourceType SourceType, relevance float64) ContributionType {
	switch sourceType {
	case SourceClipboard:
		if relevance > 0.8 {
			return ContributionDirectCopy
		}
		return ContributionReferenced
	case SourceAIExchange:
		return ContributionAIAssisted
	default: // Webpage, Search, Document
		if relevance > 0.7 {
			return ContributionReferenced
		}
		return ContributionInspired
	}
}
