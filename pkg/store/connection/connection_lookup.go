/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bluele/gcache"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	// Namespace is namespace of connection store name.
	Namespace        = "connection"
	keyPattern       = "%s_%s"
	connIDKeyPrefix  = "conn"
	connKeyKeyPrefix = "connkey"
	keySeparator     = "_"

	recordCacheSize = 128
)

var logger = log.New("aries-agent/store/connection")

// KeyPrefix is prefix builder for storage keys.
type KeyPrefix func(...string) string

type provider interface {
	StorageProvider() storage.Provider
}

// NewLookup returns new connection lookup instance.
// Lookup is read only connection store. It provides connection record related query features.
func NewLookup(p provider) (*Lookup, error) {
	store, err := p.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to open store to create new connection lookup: %w", err)
	}

	err = p.StorageProvider().SetStoreConfig(Namespace, storage.StoreConfiguration{TagNames: []string{connIDKeyPrefix}})
	if err != nil {
		return nil, fmt.Errorf("failed to set store config: %w", err)
	}

	return &Lookup{
		store: store,
		cache: gcache.New(recordCacheSize).LRU().Build(),
	}, nil
}

// Lookup takes care of connection related query features.
// Reads go through an in-memory LRU cache in front of the store.
type Lookup struct {
	store storage.Store
	cache gcache.Cache
}

// GetConnectionRecord return connection record based on the connection ID.
func (c *Lookup) GetConnectionRecord(connectionID string) (*Record, error) {
	if cached, err := c.cache.Get(connectionID); err == nil {
		if rec, ok := cached.(*Record); ok {
			return rec, nil
		}
	}

	var rec Record

	err := getAndUnmarshal(getConnectionKeyPrefix()(connectionID), &rec, c.store)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, ErrConnectionNotFound
		}

		return nil, err
	}

	if err := c.cache.Set(connectionID, &rec); err != nil {
		logger.Warnf("failed to cache connection record %s: %s", connectionID, err.Error())
	}

	return &rec, nil
}

// GetConnectionRecordByKey returns the connection record bound to the given verification key.
func (c *Lookup) GetConnectionRecordByKey(verKey string) (*Record, error) {
	connectionIDBytes, err := c.store.Get(getConnectionKeyKeyPrefix()(verKey))
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return nil, ErrConnectionNotFound
		}

		return nil, fmt.Errorf("get connectionID by key: %w", err)
	}

	return c.GetConnectionRecord(string(connectionIDBytes))
}

// QueryConnectionRecords returns all connection records found in the underlying store.
func (c *Lookup) QueryConnectionRecords() ([]*Record, error) {
	itr, err := c.store.Query(connIDKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection store: %w", err)
	}

	defer func() {
		errClose := itr.Close()
		if errClose != nil {
			logger.Errorf("failed to close records iterator: %s", errClose.Error())
		}
	}()

	var records []*Record

	more, err := itr.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to get next record from iterator: %w", err)
	}

	for more {
		value, err := itr.Value()
		if err != nil {
			return nil, fmt.Errorf("failed to get value from iterator: %w", err)
		}

		var record Record

		err = json.Unmarshal(value, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection record: %w", err)
		}

		records = append(records, &record)

		more, err = itr.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to get next record from iterator: %w", err)
		}
	}

	return records, nil
}

func getAndUnmarshal(key string, target interface{}, store storage.Store) error {
	bytes, err := store.Get(key)
	if err != nil {
		return err
	}

	return json.Unmarshal(bytes, target)
}

// getConnectionKeyPrefix key prefix for connection record persisted.
func getConnectionKeyPrefix() KeyPrefix {
	return func(key ...string) string {
		return fmt.Sprintf(keyPattern, connIDKeyPrefix, strings.Join(key, keySeparator))
	}
}

// getConnectionKeyKeyPrefix key prefix for mapping between verification key and ConnectionID.
func getConnectionKeyKeyPrefix() KeyPrefix {
	return func(key ...string) string {
		return fmt.Sprintf(keyPattern, connKeyKeyPrefix, strings.Join(key, keySeparator))
	}
}
