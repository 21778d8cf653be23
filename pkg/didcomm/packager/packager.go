/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packager

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer"
)

// Provider contains dependencies for the base packager.
type Provider interface {
	Packers() []packer.Packer
	PrimaryPacker() packer.Packer
}

// Packager is the basic implementation of transport.Packager, routing envelopes to a
// Packer by the encoding type found in the envelope header.
type Packager struct {
	primaryPacker packer.Packer
	packers       map[string]packer.Packer
}

// New return new instance of Packager implementation of transport.Packager.
func New(ctx Provider) (*Packager, error) {
	basePackager := Packager{
		packers: map[string]packer.Packer{},
	}

	for _, packerType := range ctx.Packers() {
		basePackager.addPacker(packerType)
	}

	basePackager.primaryPacker = ctx.PrimaryPacker()
	if basePackager.primaryPacker == nil {
		return nil, fmt.Errorf("need primary packer to initialize packager")
	}

	basePackager.addPacker(basePackager.primaryPacker)

	return &basePackager, nil
}

func (bp *Packager) addPacker(pack packer.Packer) {
	if bp.packers[pack.EncodingType()] == nil {
		bp.packers[pack.EncodingType()] = pack
	}
}

// PackMessage Pack a message for one or more recipients.
func (bp *Packager) PackMessage(messageEnvelope *transport.Envelope) ([]byte, error) {
	if messageEnvelope == nil {
		return nil, errors.New("packMessage: envelope argument is nil")
	}

	if len(messageEnvelope.ToVerKeys) == 0 {
		return nil, errors.New("packMessage: no recipient keys")
	}

	recipients := make([][]byte, 0, len(messageEnvelope.ToVerKeys))

	for _, verKey := range messageEnvelope.ToVerKeys {
		recipients = append(recipients, base58.Decode(verKey))
	}

	bytes, err := bp.primaryPacker.Pack(messageEnvelope.Message, messageEnvelope.FromVerKey, recipients)
	if err != nil {
		return nil, fmt.Errorf("packMessage: failed to pack: %w", err)
	}

	return bytes, nil
}

type envelopeStub struct {
	Protected string `json:"protected,omitempty"`
}

type headerStub struct {
	Typ string `json:"typ,omitempty"`
}

func getEncodingType(encMessage []byte) (string, error) {
	env := &envelopeStub{}

	err := json.Unmarshal(encMessage, env)
	if err != nil {
		return "", fmt.Errorf("parse envelope: %w", err)
	}

	protBytes, err := base64.URLEncoding.DecodeString(env.Protected)
	if err != nil {
		return "", fmt.Errorf("decode header: %w", err)
	}

	prot := &headerStub{}

	err = json.Unmarshal(protBytes, prot)
	if err != nil {
		return "", fmt.Errorf("parse header: %w", err)
	}

	return prot.Typ, nil
}

// UnpackMessage Unpack a message.
func (bp *Packager) UnpackMessage(encMessage []byte) (*transport.Envelope, error) {
	encType, err := getEncodingType(encMessage)
	if err != nil {
		return nil, fmt.Errorf("getEncodingType: %w", err)
	}

	p, ok := bp.packers[encType]
	if !ok {
		return nil, fmt.Errorf("message Type not recognized")
	}

	envelope, err := p.Unpack(encMessage)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}

	return envelope, nil
}
