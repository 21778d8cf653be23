/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/model"
)

// Namespace is the name of the mailbox store.
const Namespace = "mailbox"

// QueuedMessage is an undelivered envelope held for an offline recipient.
type QueuedMessage struct {
	ID        string          `json:"id"`
	AddedTime time.Time       `json:"added_time"`
	Message   *model.Envelope `json:"message"`
}

// Repository gives access to the queue of undelivered messages per connection.
type Repository interface {
	// Add queues the envelope for the given connection and returns the queued message id.
	Add(connectionID string, msg *model.Envelope) (string, error)

	// AvailableCount returns the number of messages queued for the connection.
	AvailableCount(connectionID string) (int, error)

	// TakeFromQueue returns up to limit queued messages in arrival order. A limit <= 0
	// returns all of them. With keepOnQueue the messages stay queued, otherwise they are
	// removed.
	TakeFromQueue(connectionID string, limit int, keepOnQueue bool) ([]QueuedMessage, error)
}

// ForwardMessageStore marks a queue that wants forwarded envelopes pushed to live
// sessions as they arrive, rather than waiting for an explicit pickup.
type ForwardMessageStore interface {
	AddForwardMessage(connectionID string, msg *model.Envelope) (string, error)
}

type provider interface {
	StorageProvider() storage.Provider
}

// inbox is the persisted mailbox of one connection.
type inbox struct {
	ConnectionID string          `json:"connection_id"`
	Messages     []QueuedMessage `json:"messages"`
}

// Store is the storage-backed Repository implementation. One JSON blob per connection,
// guarded by a per-connection lock.
type Store struct {
	store     storage.Store
	inboxLock sync.Mutex
	locks     map[string]*sync.Mutex
}

// NewStore returns a new mailbox store.
func NewStore(p provider) (*Store, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open mailbox store: %w", err)
	}

	return &Store{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Add queues the envelope for the given connection.
func (s *Store) Add(connectionID string, msg *model.Envelope) (string, error) {
	if msg == nil {
		return "", errors.New("nil envelope")
	}

	lock := s.lock(connectionID)
	lock.Lock()
	defer lock.Unlock()

	box, err := s.getInbox(connectionID)
	if err != nil {
		return "", err
	}

	queued := QueuedMessage{
		ID:        uuid.New().String(),
		AddedTime: time.Now(),
		Message:   msg,
	}

	box.Messages = append(box.Messages, queued)

	if err := s.putInbox(box); err != nil {
		return "", err
	}

	return queued.ID, nil
}

// AvailableCount returns the number of messages queued for the connection.
func (s *Store) AvailableCount(connectionID string) (int, error) {
	lock := s.lock(connectionID)
	lock.Lock()
	defer lock.Unlock()

	box, err := s.getInbox(connectionID)
	if err != nil {
		return 0, err
	}

	return len(box.Messages), nil
}

// TakeFromQueue returns up to limit queued messages in arrival order.
func (s *Store) TakeFromQueue(connectionID string, limit int, keepOnQueue bool) ([]QueuedMessage, error) {
	lock := s.lock(connectionID)
	lock.Lock()
	defer lock.Unlock()

	box, err := s.getInbox(connectionID)
	if err != nil {
		return nil, err
	}

	n := len(box.Messages)
	if limit > 0 && limit < n {
		n = limit
	}

	taken := make([]QueuedMessage, n)
	copy(taken, box.Messages[:n])

	if !keepOnQueue {
		box.Messages = box.Messages[n:]

		if len(box.Messages) == 0 {
			if err := s.deleteInbox(connectionID); err != nil {
				return nil, err
			}
		} else if err := s.putInbox(box); err != nil {
			return nil, err
		}
	}

	return taken, nil
}

func (s *Store) getInbox(connectionID string) (*inbox, error) {
	box := &inbox{ConnectionID: connectionID}

	val, err := s.store.Get(connectionID)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return box, nil
		}

		return nil, fmt.Errorf("read inbox: %w", err)
	}

	if err := json.Unmarshal(val, box); err != nil {
		return nil, fmt.Errorf("unmarshal inbox: %w", err)
	}

	return box, nil
}

func (s *Store) putInbox(box *inbox) error {
	val, err := json.Marshal(box)
	if err != nil {
		return fmt.Errorf("marshal inbox: %w", err)
	}

	if err := s.store.Put(box.ConnectionID, val); err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}

	return nil
}

func (s *Store) deleteInbox(connectionID string) error {
	if err := s.store.Delete(connectionID); err != nil {
		return fmt.Errorf("delete inbox: %w", err)
	}

	return nil
}

// lock returns the mutex guarding one connection's inbox. Entries live for the life of
// the store, dropping one would race a goroutine still waiting on the old mutex.
func (s *Store) lock(connectionID string) *sync.Mutex {
	s.inboxLock.Lock()
	defer s.inboxLock.Unlock()

	lock, ok := s.locks[connectionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[connectionID] = lock
	}

	return lock
}

// ForwardStore is a Store that additionally announces forwarded envelopes for immediate
// push delivery over live sessions.
type ForwardStore struct {
	*Store
}

// NewForwardStore returns a mailbox store with push delivery enabled.
func NewForwardStore(p provider) (*ForwardStore, error) {
	store, err := NewStore(p)
	if err != nil {
		return nil, err
	}

	return &ForwardStore{Store: store}, nil
}

// AddForwardMessage queues the envelope like Add. Its presence signals to the forward
// handler that queued message ids can be pushed to the recipient as they arrive.
func (s *ForwardStore) AddForwardMessage(connectionID string, msg *model.Envelope) (string, error) {
	return s.Add(connectionID, msg)
}
