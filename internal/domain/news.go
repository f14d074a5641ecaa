package domain

import "time"

// Candidate is a feed entry that has not been persisted yet.
type Candidate struct {
	Title        string
	Link         string
	Summary      string
	Published    time.Time // zero when the feed date could not be parsed
	PublishedRaw string
	Source       string
	ImageURL     string // direct image declared by the feed, if any
}

// HasPublished reports whether the publication date was parsed.
func (c Candidate) HasPublished() bool {
	return !c.Published.IsZero()
}

// NewsItem is a persisted, filtered news entry of the current cycle.
type NewsItem struct {
	ID        int64
	Title     string
	Link      string
	Summary   string
	Published time.Time
	Category  string
	ImagePath string // empty when no image could be resolved
	CreatedAt time.Time
}

// HasImage reports whether enrichment produced an image file.
func (n NewsItem) HasImage() bool {
	return n.ImagePath != ""
}

// ItemScript is the narrative attached to one NewsItem.
type ItemScript struct {
	ID         int64
	NewsItemID int64
	Content    string
	CreatedAt  time.Time
}

// UnifiedScript is the single combined narrative of a weekly cycle.
type UnifiedScript struct {
	ID        int64
	Content   string
	WeekStart time.Time
	CreatedAt time.Time
}

// NewsDraft is what the pipeline hands to the store for one item.
type NewsDraft struct {
	Item      NewsItem
	Script    string
	Thumbnail string // stored next to Item.ImagePath, not persisted as a column
}

// StoredItem pairs a committed NewsItem with its script.
type StoredItem struct {
	Item   NewsItem
	Script ItemScript
}

// ResultItem is the normalized shape returned to the trigger layer.
type ResultItem struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	ImagePath string    `json:"imagePath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Script    string    `json:"script"`
}

// ToResult maps a stored item to its outbound form.
func (s StoredItem) ToResult() ResultItem {
	return ResultItem{
		Title:     s.Item.Title,
		Summary:   s.Item.Summary,
		Link:      s.Item.Link,
		ImagePath: s.Item.ImagePath,
		CreatedAt: s.Item.CreatedAt,
		Script:    s.Script.Content,
	}
}
