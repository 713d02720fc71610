package database

import (
	"github.com/modhaven/creations-bot/app/catalog"
)

// Ledger is the durable store of creations, delivery attempts and scalar
// metadata. NullStore implements the same contract with all reads empty and
// all writes discarded, so preview runs need no conditional branching.
type Ledger interface {
	GetRecord(creationID string) (*Record, error)
	GetCreation(creationID string) (*catalog.Creation, error)
	UpsertCreation(c catalog.Creation, seenAt, hash string) error

	RecordDelivery(a Attempt) error
	FailedDeliveries(target string) ([]PendingDelivery, error)
	MissingWebhookDeliveries() ([]PendingDelivery, error)

	GetMeta(key string) (string, error)
	SetMeta(key, value string) error

	Export() (*Snapshot, error)
	Import(s *Snapshot) error

	Close() error
}

var _ Ledger = (*Store)(nil)
var _ Ledger = (*NullStore)(nil)
