/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"
)

// KeyManager provides key management operations against keys held in the agent keystore.
// Private key material never leaves this package; callers work with base58 verification keys
// and opaque handles only.
type KeyManager interface {
	// CreateKeySet creates a new signing/encryption key set and returns the base58 verification key.
	CreateKeySet() (string, error)

	// FindVerKey returns the index of the first candidate verification key present in the keystore.
	// It returns an error wrapping cryptoutil.ErrKeyNotFound when none of the candidates is held.
	FindVerKey(candidateKeys []string) (int, error)

	// SignMessage signs message with the private key bound to fromVerKey.
	SignMessage(message []byte, fromVerKey string) ([]byte, error)

	// ConvertToEncryptionKey converts an Ed25519 verification key into its Curve25519 counterpart.
	ConvertToEncryptionKey(verKey []byte) ([]byte, error)
}

// Provider supplies the KMS dependencies.
type Provider interface {
	StorageProvider() spistorage.Provider
}
