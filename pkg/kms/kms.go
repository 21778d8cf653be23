/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/crubn/aries-agent-go/pkg/internal/cryptoutil"
)

// Namespace is the name of the keystore store.
const Namespace = "keystore"

// keySet holds one signing key pair together with its derived encryption key pair.
// Values are base58 encoded. The set is stored under its base58 verification key.
type keySet struct {
	VerKey  string `json:"verkey"`
	SigPriv string `json:"sigpriv"`
	EncPub  string `json:"encpub"`
	EncPriv string `json:"encpriv"`
}

// BaseKMS is a local implementation of KeyManager backed by the SPI storage provider.
type BaseKMS struct {
	keystore spistorage.Store
}

// New returns a new BaseKMS instance.
func New(prov Provider) (*BaseKMS, error) {
	store, err := prov.StorageProvider().OpenStore(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	return &BaseKMS{keystore: store}, nil
}

// CreateKeySet creates a new Ed25519 key pair with its Curve25519 counterpart and returns
// the base58 verification key.
func (k *BaseKMS) CreateKeySet() (string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}

	encPub, err := cryptoutil.PublicEd25519toCurve25519(pub)
	if err != nil {
		return "", fmt.Errorf("convert public key: %w", err)
	}

	encPriv, err := cryptoutil.SecretEd25519toCurve25519(priv)
	if err != nil {
		return "", fmt.Errorf("convert private key: %w", err)
	}

	ks := keySet{
		VerKey:  base58.Encode(pub),
		SigPriv: base58.Encode(priv),
		EncPub:  base58.Encode(encPub),
		EncPriv: base58.Encode(encPriv),
	}

	val, err := json.Marshal(ks)
	if err != nil {
		return "", fmt.Errorf("marshal key set: %w", err)
	}

	if err := k.keystore.Put(ks.VerKey, val); err != nil {
		return "", fmt.Errorf("store key set: %w", err)
	}

	return ks.VerKey, nil
}

// FindVerKey returns the index of the first candidate key held in the keystore.
func (k *BaseKMS) FindVerKey(candidateKeys []string) (int, error) {
	for i, key := range candidateKeys {
		if _, err := k.getKeySet(key); err == nil {
			return i, nil
		}
	}

	return -1, fmt.Errorf("no candidate key in keystore: %w", cryptoutil.ErrKeyNotFound)
}

// SignMessage signs message with the private key bound to fromVerKey.
func (k *BaseKMS) SignMessage(message []byte, fromVerKey string) ([]byte, error) {
	ks, err := k.getKeySet(fromVerKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return ed25519.Sign(ed25519.PrivateKey(base58.Decode(ks.SigPriv)), message), nil
}

// ConvertToEncryptionKey converts an Ed25519 verification key into its Curve25519 counterpart.
func (k *BaseKMS) ConvertToEncryptionKey(verKey []byte) ([]byte, error) {
	return cryptoutil.PublicEd25519toCurve25519(verKey)
}

func (k *BaseKMS) getKeySet(verKey string) (*keySet, error) {
	val, err := k.keystore.Get(verKey)
	if err != nil {
		if errors.Is(err, spistorage.ErrDataNotFound) {
			return nil, cryptoutil.ErrKeyNotFound
		}

		return nil, fmt.Errorf("read keystore: %w", err)
	}

	ks := &keySet{}
	if err := json.Unmarshal(val, ks); err != nil {
		return nil, fmt.Errorf("unmarshal key set: %w", err)
	}

	return ks, nil
}

// VerifySignature verifies an Ed25519 signature made over message by the holder of verKey.
func VerifySignature(message, signature []byte, verKey string) error {
	if !ed25519.Verify(base58.Decode(verKey), message, signature) {
		return errors.New("signature verification failed")
	}

	return nil
}
