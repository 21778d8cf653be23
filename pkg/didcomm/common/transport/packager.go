/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

// Packager manages the building and parsing of DIDComm raw messages in JSON envelopes.
//
// These envelopes are used as wire-level wrappers of messages sent in agent-agent
// communication.
type Packager interface {
	// PackMessage packs a message for one or more recipients.
	PackMessage(envelope *Envelope) ([]byte, error)

	// UnpackMessage unpacks an encrypted message, returning the plaintext along with the
	// sender and recipient key metadata recovered from the envelope.
	UnpackMessage(encMessage []byte) (*Envelope, error)
}
