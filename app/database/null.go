package database

import (
	"github.com/modhaven/creations-bot/app/catalog"
)

// NullStore is the preview-mode Ledger: reads come back empty, writes are
// discarded. Callers use it in place of Store without branching.
type NullStore struct{}

func NewNullStore() *NullStore {
	return &NullStore{}
}

func (n *NullStore) GetRecord(string) (*Record, error)               { return nil, nil }
func (n *NullStore) GetCreation(string) (*catalog.Creation, error)   { return nil, nil }
func (n *NullStore) UpsertCreation(catalog.Creation, string, string) error { return nil }

func (n *NullStore) RecordDelivery(Attempt) error                        { return nil }
func (n *NullStore) FailedDeliveries(string) ([]PendingDelivery, error)  { return nil, nil }
func (n *NullStore) MissingWebhookDeliveries() ([]PendingDelivery, error) { return nil, nil }

func (n *NullStore) GetMeta(string) (string, error) { return "", nil }
func (n *NullStore) SetMeta(string, string) error   { return nil }

func (n *NullStore) Export() (*Snapshot, error) {
	return &Snapshot{
		Creations: []map[string]any{},
		Posts:     []map[string]any{},
		Meta:      []map[string]any{},
	}, nil
}
func (n *NullStore) Import(*Snapshot) error { return nil }

func (n *NullStore) Close() error { return nil }
