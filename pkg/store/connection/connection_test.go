/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

type testProvider struct {
	storeProvider spistorage.Provider
}

func (p *testProvider) StorageProvider() spistorage.Provider {
	return p.storeProvider
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()

	recorder, err := NewRecorder(&testProvider{storeProvider: mem.NewProvider()})
	require.NoError(t, err)

	return recorder
}

func sampleRecord() *Record {
	return &Record{
		ConnectionID:    uuid.New().String(),
		State:           StateNameCompleted,
		MyKey:           "myverkey",
		TheirKey:        "theirverkey",
		RecipientKeys:   []string{"recipientkey1", "recipientkey2"},
		ServiceEndpoint: "https://agent.example.com:8081",
		RoutingKeys:     []string{"routingkey"},
		CreatedTime:     time.Now(),
	}
}

func TestSaveAndGetConnectionRecord(t *testing.T) {
	recorder := newTestRecorder(t)
	record := sampleRecord()

	require.NoError(t, recorder.SaveConnectionRecord(record))

	found, err := recorder.GetConnectionRecord(record.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, record.ConnectionID, found.ConnectionID)
	require.Equal(t, record.ServiceEndpoint, found.ServiceEndpoint)

	// second read is served from cache
	cached, err := recorder.GetConnectionRecord(record.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, found, cached)
}

func TestGetConnectionRecordNotFound(t *testing.T) {
	recorder := newTestRecorder(t)

	_, err := recorder.GetConnectionRecord("nonexistent")
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestGetConnectionRecordByKey(t *testing.T) {
	recorder := newTestRecorder(t)
	record := sampleRecord()

	require.NoError(t, recorder.SaveConnectionRecord(record))

	for _, verKey := range []string{"recipientkey1", "recipientkey2", "theirverkey", "myverkey"} {
		found, err := recorder.GetConnectionRecordByKey(verKey)
		require.NoError(t, err)
		require.Equal(t, record.ConnectionID, found.ConnectionID)
	}

	_, err := recorder.GetConnectionRecordByKey("unknownkey")
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestSaveConnectionRecordValidation(t *testing.T) {
	recorder := newTestRecorder(t)

	err := recorder.SaveConnectionRecord(&Record{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection id is mandatory")
}

func TestSaveInvalidatesCache(t *testing.T) {
	recorder := newTestRecorder(t)
	record := sampleRecord()

	require.NoError(t, recorder.SaveConnectionRecord(record))

	_, err := recorder.GetConnectionRecord(record.ConnectionID)
	require.NoError(t, err)

	record.State = StateNameCompleted
	record.ServiceEndpoint = "wss://agent.example.com:8082"
	require.NoError(t, recorder.SaveConnectionRecord(record))

	found, err := recorder.GetConnectionRecord(record.ConnectionID)
	require.NoError(t, err)
	require.Equal(t, "wss://agent.example.com:8082", found.ServiceEndpoint)
}

func TestRemoveConnectionRecord(t *testing.T) {
	recorder := newTestRecorder(t)
	record := sampleRecord()

	require.NoError(t, recorder.SaveConnectionRecord(record))
	require.NoError(t, recorder.RemoveConnectionRecord(record.ConnectionID))

	_, err := recorder.GetConnectionRecord(record.ConnectionID)
	require.ErrorIs(t, err, ErrConnectionNotFound)

	_, err = recorder.GetConnectionRecordByKey("recipientkey1")
	require.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestQueryConnectionRecords(t *testing.T) {
	recorder := newTestRecorder(t)

	expected := map[string]struct{}{}

	for i := 0; i < 3; i++ {
		record := sampleRecord()
		record.RecipientKeys = nil
		record.MyKey = ""
		record.TheirKey = ""
		expected[record.ConnectionID] = struct{}{}

		require.NoError(t, recorder.SaveConnectionRecord(record))
	}

	records, err := recorder.QueryConnectionRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)

	for _, rec := range records {
		require.Contains(t, expected, rec.ConnectionID)
	}
}

func TestUpdateState(t *testing.T) {
	record := &Record{ConnectionID: "c1"}

	require.False(t, record.IsReady())
	require.NoError(t, record.UpdateState(StateNameInvited))
	require.NoError(t, record.UpdateState(StateNameRequested))
	require.False(t, record.IsReady())
	require.NoError(t, record.UpdateState(StateNameResponded))
	require.True(t, record.IsReady())
	require.NoError(t, record.UpdateState(StateNameCompleted))
	require.True(t, record.IsReady())

	err := record.UpdateState(StateNameInvited)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid state transition")
}
