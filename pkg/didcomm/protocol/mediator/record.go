/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// StateNameRequested is the state of a mediation that was asked for but not decided.
	StateNameRequested = "requested"

	// StateNameGranted is the state of an accepted mediation.
	StateNameGranted = "granted"

	// StateNameDenied is the state of a rejected mediation.
	StateNameDenied = "denied"
)

// Namespace is the name of the mediation store.
const Namespace = "mediation"

const (
	keyPattern         = "%s_%s"
	mediationKeyPrefix = "med"
	routeKeyPrefix     = "route"
)

// ErrMediationNotFound is returned when no mediation record exists for a connection.
var ErrMediationNotFound = errors.New("mediation record not found")

var stateTransitions = map[string][]string{
	StateNameRequested: {StateNameGranted, StateNameDenied},
}

// MediationRecord tracks one connection's mediation agreement.
type MediationRecord struct {
	ID            string    `json:"id"`
	ConnectionID  string    `json:"connection_id"`
	State         string    `json:"state"`
	RecipientKeys []string  `json:"recipient_keys,omitempty"`
	RoutingKeys   []string  `json:"routing_keys,omitempty"`
	CreatedTime   time.Time `json:"created_time,omitempty"`
}

// UpdateState transitions the record to newState, failing on transitions the mediation
// lifecycle does not allow.
func (r *MediationRecord) UpdateState(newState string) error {
	for _, allowed := range stateTransitions[r.State] {
		if allowed == newState {
			r.State = newState
			return nil
		}
	}

	return fmt.Errorf("invalid state transition: %s -> %s", r.State, newState)
}

type storeProvider interface {
	StorageProvider() storage.Provider
}

// Store persists mediation records and the recipient key routes pointing at them.
type Store struct {
	store storage.Store
}

// NewStore returns a new mediation store.
func NewStore(p storeProvider) (*Store, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open mediation store: %w", err)
	}

	return &Store{store: store}, nil
}

// SaveMediationRecord writes the record.
func (s *Store) SaveMediationRecord(record *MediationRecord) error {
	if record.ConnectionID == "" {
		return errors.New("connection id missing")
	}

	val, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal mediation record: %w", err)
	}

	if err := s.store.Put(mediationKey(record.ConnectionID), val); err != nil {
		return fmt.Errorf("save mediation record: %w", err)
	}

	return nil
}

// GetMediationRecord reads the record of the given connection.
func (s *Store) GetMediationRecord(connectionID string) (*MediationRecord, error) {
	val, err := s.store.Get(mediationKey(connectionID))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMediationNotFound, connectionID)
		}

		return nil, fmt.Errorf("get mediation record: %w", err)
	}

	record := &MediationRecord{}
	if err := json.Unmarshal(val, record); err != nil {
		return nil, fmt.Errorf("unmarshal mediation record: %w", err)
	}

	return record, nil
}

// SaveRoute points the recipient key at the connection it is mediated for.
func (s *Store) SaveRoute(recipientKey, connectionID string) error {
	if recipientKey == "" {
		return errors.New("recipient key missing")
	}

	if err := s.store.Put(routeKey(recipientKey), []byte(connectionID)); err != nil {
		return fmt.Errorf("save route: %w", err)
	}

	return nil
}

// DeleteRoute removes the recipient key route.
func (s *Store) DeleteRoute(recipientKey string) error {
	if err := s.store.Delete(routeKey(recipientKey)); err != nil {
		return fmt.Errorf("delete route: %w", err)
	}

	return nil
}

// GetConnectionIDByRecipientKey resolves the connection a recipient key routes to.
func (s *Store) GetConnectionIDByRecipientKey(recipientKey string) (string, error) {
	val, err := s.store.Get(routeKey(recipientKey))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return "", fmt.Errorf("%w: no route for key %s", ErrMediationNotFound, recipientKey)
		}

		return "", fmt.Errorf("get route: %w", err)
	}

	return string(val), nil
}

func mediationKey(connectionID string) string {
	return fmt.Sprintf(keyPattern, mediationKeyPrefix, connectionID)
}

func routeKey(recipientKey string) string {
	return fmt.Sprintf(keyPattern, routeKeyPrefix, recipientKey)
}
