/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package model

// Envelope is the encrypted wire form of a DIDComm message: a protected header plus
// ciphertext. It is never introspected before decryption.
type Envelope struct {
	Protected  string `json:"protected,omitempty"`
	IV         string `json:"iv,omitempty"`
	CipherText string `json:"ciphertext,omitempty"`
	Tag        string `json:"tag,omitempty"`
}

// Forward is the route forward message, asking a mediator to relay the inner encrypted
// payload to the recipient key in To.
type Forward struct {
	Type string    `json:"@type,omitempty"`
	ID   string    `json:"@id,omitempty"`
	To   string    `json:"to,omitempty"`
	Msg  *Envelope `json:"message,omitempty"`
}
