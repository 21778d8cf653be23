/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packer

import (
	"errors"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/kms"
)

// ErrDecryption is returned when an envelope cannot be opened with any locally held key,
// or when the ciphertext fails authentication. It deliberately carries no detail about
// which stage of decryption failed.
var ErrDecryption = errors.New("failed to decrypt message")

// Provider interface for packer ctx.
type Provider interface {
	KMS() kms.KeyManager
}

// Packer is an Aries envelope packer/unpacker to support secure DIDComm exchange of envelopes
// between agents.
type Packer interface {
	// Pack a payload of type ContentType in an Aries compliant format using the sender verkey
	// and recipient verkeys. A nil senderKey produces an anonymous envelope.
	Pack(payload, senderKey []byte, recipientKeys [][]byte) ([]byte, error)
	// Unpack an envelope in an Aries compliant format.
	Unpack(envelope []byte) (*transport.Envelope, error)
	// EncodingType returns the type of the encoding, as found in the envelope header `Typ` field.
	EncodingType() string
}
