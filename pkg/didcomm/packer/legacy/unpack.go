/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package legacy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	chacha "golang.org/x/crypto/chacha20poly1305"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer"
	"github.com/crubn/aries-agent-go/pkg/internal/cryptoutil"
	"github.com/crubn/aries-agent-go/pkg/kms"
)

// Unpack will decode the envelope using the legacy format.
// Using (X)Chacha20 encryption algorithm and Poly1305 authenticator.
func (p *Packer) Unpack(envelope []byte) (*transport.Envelope, error) {
	var envelopeData legacyEnvelope

	err := json.Unmarshal(envelope, &envelopeData)
	if err != nil {
		return nil, err
	}

	protectedBytes, err := base64.URLEncoding.DecodeString(envelopeData.Protected)
	if err != nil {
		return nil, err
	}

	var protectedData protected

	err = json.Unmarshal(protectedBytes, &protectedData)
	if err != nil {
		return nil, err
	}

	if protectedData.Typ != encodingType {
		return nil, fmt.Errorf("message type %s not supported", protectedData.Typ)
	}

	if protectedData.Alg != algAuthcrypt && protectedData.Alg != algAnoncrypt {
		return nil, fmt.Errorf("message format %s not supported", protectedData.Alg)
	}

	keys, err := p.getCEK(&protectedData)
	if err != nil {
		return nil, err
	}

	data, err := p.decodeCipherText(keys.cek, &envelopeData)
	if err != nil {
		return nil, err
	}

	return &transport.Envelope{
		Message:    data,
		FromVerKey: keys.theirKey,
		ToVerKey:   keys.myKey,
	}, nil
}

type keys struct {
	cek      *[chacha.KeySize]byte
	theirKey []byte
	myKey    []byte
}

func (p *Packer) getCEK(protectedData *protected) (*keys, error) {
	var candidateKeys []string

	for _, candidate := range protectedData.Recipients {
		candidateKeys = append(candidateKeys, candidate.Header.KID)
	}

	recKeyIdx, err := p.kms.FindVerKey(candidateKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: no key accessible: %s", packer.ErrDecryption, err)
	}

	recip := protectedData.Recipients[recKeyIdx]
	recKey := base58.Decode(recip.Header.KID)

	encCEK, err := base64.URLEncoding.DecodeString(recip.EncryptedKey)
	if err != nil {
		return nil, err
	}

	box, err := kms.NewCryptoBox(p.kms)
	if err != nil {
		return nil, err
	}

	if protectedData.Alg == algAnoncrypt {
		cekSlice, err := box.SealOpen(encCEK, recKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt CEK: %s", packer.ErrDecryption, err)
		}

		var cek [chacha.KeySize]byte

		copy(cek[:], cekSlice)

		return &keys{cek: &cek, myKey: recKey}, nil
	}

	senderPub, senderPubCurve, err := p.decodeSender(recip.Header.Sender, recKey)
	if err != nil {
		return nil, err
	}

	nonceSlice, err := base64.URLEncoding.DecodeString(recip.Header.IV)
	if err != nil {
		return nil, err
	}

	cekSlice, err := box.EasyOpen(encCEK, nonceSlice, senderPubCurve, recKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt CEK: %s", packer.ErrDecryption, err)
	}

	var cek [chacha.KeySize]byte

	copy(cek[:], cekSlice)

	return &keys{
		cek:      &cek,
		theirKey: senderPub,
		myKey:    recKey,
	}, nil
}

func (p *Packer) decodeSender(b64Sender string, recKey []byte) ([]byte, []byte, error) {
	encSender, err := base64.URLEncoding.DecodeString(b64Sender)
	if err != nil {
		return nil, nil, err
	}

	box, err := kms.NewCryptoBox(p.kms)
	if err != nil {
		return nil, nil, err
	}

	senderPub, err := box.SealOpen(encSender, recKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decrypt sender key: %s", packer.ErrDecryption, err)
	}

	senderData := base58.Decode(string(senderPub))

	senderPubCurve, err := cryptoutil.PublicEd25519toCurve25519(senderData)

	return senderData, senderPubCurve, err
}

// decodeCipherText decodes (from base64) and decrypts the ciphertext using chacha20poly1305.
func (p *Packer) decodeCipherText(cek *[chacha.KeySize]byte, envelope *legacyEnvelope) ([]byte, error) {
	aad := []byte(envelope.Protected)

	cipherText, err := base64.URLEncoding.DecodeString(envelope.CipherText)
	if err != nil {
		return nil, err
	}

	nonce, err := base64.URLEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, err
	}

	tag, err := base64.URLEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, err
	}

	chachaCipher, err := chacha.New(cek[:])
	if err != nil {
		return nil, err
	}

	payload := append(cipherText, tag...)

	message, err := chachaCipher.Open(nil, nonce, payload, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: payload authentication failed: %s", packer.ErrDecryption, err)
	}

	return message, nil
}
