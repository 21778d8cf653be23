/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

// Envelope holds message data and metadata for inbound and outbound messaging.
type Envelope struct {
	Message []byte
	// FromVerKey is the raw sender verification key recovered from (or used for) authcrypt.
	// Nil for anonymous envelopes.
	FromVerKey []byte
	// ToVerKeys stores base58 verification keys for an outbound message.
	ToVerKeys []string
	// ToVerKey holds the raw key that was used to decrypt an inbound message.
	ToVerKey []byte
}
