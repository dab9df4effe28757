// Package models defines the wire structures exchanged with clients.
package models

import (
	"encoding/json"
	"errors"
)

// InsertItem is one record to insert or overwrite.
type InsertItem struct {
	Data string `json:"data"`
	ID   int64  `json:"id"`
}

// UnmarshalJSON requires both fields to be present.
func (it *InsertItem) UnmarshalJSON(b []byte) error {
	var aux struct {
		Data *string `json:"data"`
		ID   *int64  `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Data == nil {
		return errors.New("insert item: missing field \"data\"")
	}
	if aux.ID == nil {
		return errors.New("insert item: missing field \"id\"")
	}
	it.Data, it.ID = *aux.Data, *aux.ID
	return nil
}

// MutationResult reports the record count after an insert, delete or clear.
// NoOp is set when the request carried nothing to do.
type MutationResult struct {
	Count int  `json:"count"`
	NoOp  bool `json:"noop,omitempty"`
}
