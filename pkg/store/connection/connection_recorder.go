/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

// NewRecorder returns new connection recorder.
// Recorder is read-write connection store which provides
// write features on top of query features from Lookup.
func NewRecorder(p provider) (*Recorder, error) {
	lookup, err := NewLookup(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create new connection recorder: %w", err)
	}

	return &Recorder{lookup}, nil
}

// Recorder is read-write connection store.
type Recorder struct {
	*Lookup
}

// SaveConnectionRecord saves the given connection record in the underlying store
// and indexes it by each of the connection's verification keys.
func (c *Recorder) SaveConnectionRecord(record *Record) error {
	if err := isValidConnection(record); err != nil {
		return fmt.Errorf("validation failed while saving connection record: %w", err)
	}

	bytes, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}

	err = c.store.Put(getConnectionKeyPrefix()(record.ConnectionID), bytes, storage.Tag{Name: connIDKeyPrefix})
	if err != nil {
		return fmt.Errorf("save connection record: %w", err)
	}

	for _, verKey := range indexKeys(record) {
		if err := c.store.Put(getConnectionKeyKeyPrefix()(verKey), []byte(record.ConnectionID)); err != nil {
			return fmt.Errorf("save connection key map: %w", err)
		}
	}

	c.cache.Remove(record.ConnectionID)

	return nil
}

// RemoveConnectionRecord deletes the record and its key index entries.
func (c *Recorder) RemoveConnectionRecord(connectionID string) error {
	record, err := c.GetConnectionRecord(connectionID)
	if err != nil {
		return err
	}

	for _, verKey := range indexKeys(record) {
		if err := c.store.Delete(getConnectionKeyKeyPrefix()(verKey)); err != nil {
			return fmt.Errorf("delete connection key map: %w", err)
		}
	}

	if err := c.store.Delete(getConnectionKeyPrefix()(connectionID)); err != nil {
		return fmt.Errorf("delete connection record: %w", err)
	}

	c.cache.Remove(connectionID)

	return nil
}

// indexKeys returns the verification keys a record should be findable by.
func indexKeys(record *Record) []string {
	keys := make([]string, 0, len(record.RecipientKeys)+2)
	keys = append(keys, record.RecipientKeys...)

	if record.TheirKey != "" {
		keys = append(keys, record.TheirKey)
	}

	if record.MyKey != "" {
		keys = append(keys, record.MyKey)
	}

	return keys
}

func isValidConnection(record *Record) error {
	if record.ConnectionID == "" {
		return errors.New("connection id is mandatory")
	}

	return nil
}

