package capture

import "context"

// Coalescer turns EventBuffer flushes (or manual input) into persisted
// WorkBlocks.
type Coalescer struct {
	store *Store
}

// NewCoalescer wires a Coalescer over the persistence layer.
func NewCoalescer(store *Store) *Coalescer {
	return &Coalescer{store: store}
}

// CommitFlush persists a FlushResult as an automatically-derived,
// unpinned WorkBlock.
func (c *Coalescer) CommitFlush(ctx context.Context, r FlushResult) (*WorkBlock, error) {
	now := NowMillis()
	summary := r.AutoSummary
	block := WorkBlock{
		ID:           NewID(),
		ContextType:  r.ContextType,
		ContextID:    r.ContextID,
		ContextTitle: r.ContextTitle,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		DurationSecs: (r.EndedAt - r.StartedAt) / 1000,
		AutoSummary:  &summary,
		EditCount:    r.EditCount,
		BrowseCount:  r.BrowseCount,
		ResearchURLs: r.ResearchURLs,
		Tags:         []string{},
		IsManual:     false,
		IsPinned:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.InsertWorkBlock(ctx, block); err != nil {
		return nil, err
	}
	return &block, nil
}

// ManualBlockInput is the caller-supplied content for a block created
// directly by the user, bypassing the EventBuffer entirely.
type ManualBlockInput struct {
	StartedAt    int64
	EndedAt      int64
	UserSummary  string
	Notes        *string
	Tags         []string
	ContextType  ContextType
	ContextTitle *string
}

// CommitManual persists a user-authored WorkBlock with every
// auto-derived field left zero/empty.
func (c *Coalescer) CommitManual(ctx context.Context, in ManualBlockInput) (*WorkBlock, error) {
	now := NowMillis()
	summary := in.UserSummary
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	contextType := in.ContextType
	if contextType == "" {
		contextType = ContextManual
	}
	block := WorkBlock{
		ID:           NewID(),
		ContextType:  contextType,
		ContextTitle: in.ContextTitle,
		StartedAt:    in.StartedAt,
		EndedAt:      in.EndedAt,
		DurationSecs: (in.EndedAt - in.StartedAt) / 1000,
		ResearchURLs: []string{},
		UserSummary:  &summary,
		Notes:        in.Notes,
		Tags:         tags,
		IsManual:     true,
		IsPinned:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.store.InsertWorkBlock(ctx, block); err != nil {
		return nil, err
	}
	return &block, nil
}
