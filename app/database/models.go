package database

// Record is the persisted state of one creation: the mirrored catalog fields
// plus ledger bookkeeping. Bookkeeping instants are empty strings until
// written.
type Record struct {
	CreationID string
	Product    string

	Title             string
	AuthorDisplayName string

	PublishedAt      string
	FirstPublishedAt string
	UpdatedAt        string

	FirstSeenAt        string
	LastSeenAt         string
	LastSeenPtime      string
	LastPostedAt       string
	LastUpdatePostedAt string
	LastKnownHash      string
}

// Attempt is one append-only delivery-attempt row. PostID is the id the
// target assigned on success, or a client-generated opaque id on failure.
type Attempt struct {
	CreationID   string
	PostID       string
	PostType     string
	Target       string
	Success      bool
	ErrorMessage string
	PostedAt     string
	Title        string
	URL          string
}

// PendingDelivery identifies a logical delivery the retry pass should
// replay.
type PendingDelivery struct {
	CreationID string
	PostType   string
}

// Snapshot is the export/import document: three flat row collections keyed
// by column name.
type Snapshot struct {
	Creations []map[string]any `json:"creations"`
	Posts     []map[string]any `json:"posts"`
	Meta      []map[string]any `json:"meta"`
}
