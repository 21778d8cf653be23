/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/nacl/box"

	"github.com/crubn/aries-agent-go/pkg/internal/cryptoutil"
)

// CryptoBox provides an elliptic-curve-based authenticated encryption scheme.
//
// Payloads are encrypted using symmetric encryption (XChacha20Poly1305) with a shared
// key derived through Curve25519 Elliptic Curve Diffie-Hellman key exchange.
//
// CryptoBox is created by a KMS and reads secret keys from the KMS for
// encryption/decryption, so clients never see the secrets themselves.
type CryptoBox struct {
	km *BaseKMS
}

// NewCryptoBox creates a CryptoBox which provides crypto box encryption using the given KMS's key pairs.
func NewCryptoBox(w KeyManager) (*CryptoBox, error) {
	wa, ok := w.(*BaseKMS)
	if !ok {
		return nil, fmt.Errorf("cannot use parameter as KMS")
	}

	return &CryptoBox{km: wa}, nil
}

// Easy seals a payload with a provided nonce.
// theirEncPub is the recipient Curve25519 public key, while mySigPub identifies the sender key set
// whose encryption private key is used.
func (b *CryptoBox) Easy(payload, nonce, theirEncPub, mySigPub []byte) ([]byte, error) {
	priv, err := b.encPrivKey(mySigPub)
	if err != nil {
		return nil, err
	}

	var (
		recPub     [cryptoutil.Curve25519KeySize]byte
		nonceBytes [cryptoutil.NonceSize]byte
	)

	copy(recPub[:], theirEncPub)
	copy(nonceBytes[:], nonce)

	return box.Seal(nil, payload, &nonceBytes, &recPub, priv), nil
}

// EasyOpen unseals a payload sealed with Easy, where the nonce is provided.
func (b *CryptoBox) EasyOpen(cipherText, nonce, theirEncPub, mySigPub []byte) ([]byte, error) {
	priv, err := b.encPrivKey(mySigPub)
	if err != nil {
		return nil, err
	}

	var (
		sendPub    [cryptoutil.Curve25519KeySize]byte
		nonceBytes [cryptoutil.NonceSize]byte
	)

	copy(sendPub[:], theirEncPub)
	copy(nonceBytes[:], nonce)

	out, success := box.Open(nil, cipherText, &nonceBytes, &sendPub, priv)
	if !success {
		return nil, errors.New("failed to unpack")
	}

	return out, nil
}

// Seal seals a payload using the equivalent of libsodium box_seal.
//
// Generates an ephemeral key pair for the sender and prepends the ephemeral sender
// public key to the message.
func (b *CryptoBox) Seal(payload, theirEncPub []byte, randSource io.Reader) ([]byte, error) {
	epk, esk, err := box.GenerateKey(randSource)
	if err != nil {
		return nil, err
	}

	var recPub [cryptoutil.Curve25519KeySize]byte

	copy(recPub[:], theirEncPub)

	nonce, err := cryptoutil.Nonce(epk[:], theirEncPub)
	if err != nil {
		return nil, err
	}

	return box.Seal(epk[:], payload, nonce, &recPub, esk), nil
}

// SealOpen decrypts a payload encrypted with Seal.
//
// Reads the ephemeral sender public key prepended to the message and uses it together
// with the recipient private key identified by mySigPub.
func (b *CryptoBox) SealOpen(cipherText, mySigPub []byte) ([]byte, error) {
	if len(cipherText) < cryptoutil.Curve25519KeySize {
		return nil, errors.New("message too short")
	}

	priv, err := b.encPrivKey(mySigPub)
	if err != nil {
		return nil, err
	}

	var epk [cryptoutil.Curve25519KeySize]byte

	copy(epk[:], cipherText[:cryptoutil.Curve25519KeySize])

	myEncPub, err := cryptoutil.PublicEd25519toCurve25519(mySigPub)
	if err != nil {
		return nil, err
	}

	nonce, err := cryptoutil.Nonce(epk[:], myEncPub)
	if err != nil {
		return nil, err
	}

	out, success := box.Open(nil, cipherText[cryptoutil.Curve25519KeySize:], nonce, &epk, priv)
	if !success {
		return nil, errors.New("failed to unpack")
	}

	return out, nil
}

func (b *CryptoBox) encPrivKey(sigPub []byte) (*[cryptoutil.Curve25519KeySize]byte, error) {
	ks, err := b.km.getKeySet(base58.Encode(sigPub))
	if err != nil {
		return nil, err
	}

	var priv [cryptoutil.Curve25519KeySize]byte

	copy(priv[:], base58.Decode(ks.EncPriv))

	return &priv, nil
}
