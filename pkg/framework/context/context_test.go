/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	ctx, err := New(
		WithLabel("alice"),
		WithStorageProvider(mem.NewProvider()),
		WithServiceEndpoint("https://alice.example.com"),
		WithTransportReturnRoute("all"),
	)
	require.NoError(t, err)
	require.Equal(t, "alice", ctx.Label())
	require.NotNil(t, ctx.StorageProvider())
	require.NotNil(t, ctx.ConnectionLookup())
	require.NotNil(t, ctx.ConnectionRecorder())
	require.Equal(t, "https://alice.example.com", ctx.ServiceEndpoint())
	require.Equal(t, "all", ctx.TransportReturnRoute())
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	alice, err := New(WithLabel("alice"), WithStorageProvider(mem.NewProvider()))
	require.NoError(t, err)

	bob, err := New(WithLabel("bob"), WithStorageProvider(mem.NewProvider()))
	require.NoError(t, err)

	require.NoError(t, registry.Register("alice", alice))
	require.NoError(t, registry.Register("bob", bob))

	found, err := registry.Resolve("bob")
	require.NoError(t, err)
	require.Same(t, bob, found)

	// empty tenant id falls back to the first registered context
	found, err = registry.Resolve("")
	require.NoError(t, err)
	require.Same(t, alice, found)

	_, err = registry.Resolve("mallory")
	require.ErrorIs(t, err, ErrUnknownTenant)

	require.Len(t, registry.TenantIDs(), 2)
}

func TestRegistryValidation(t *testing.T) {
	registry := NewRegistry()

	require.Error(t, registry.Register("", &Provider{}))
	require.Error(t, registry.Register("alice", nil))

	require.NoError(t, registry.Register("alice", &Provider{}))
	require.Error(t, registry.Register("alice", &Provider{}))
}
