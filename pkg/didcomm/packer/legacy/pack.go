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

	"github.com/crubn/aries-agent-go/pkg/internal/cryptoutil"
	"github.com/crubn/aries-agent-go/pkg/kms"
)

// Pack will encode the payload argument using the legacy envelope format.
// A non-empty senderKey produces an Authcrypt envelope identifying the sender to each
// recipient; an empty senderKey produces an Anoncrypt envelope.
// Recipients appear in the envelope header in the order of recipientKeys.
func (p *Packer) Pack(payload, senderKey []byte, recipientKeys [][]byte) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("pack: no recipient keys")
	}

	var cek [chacha.KeySize]byte

	if _, err := p.randSource.Read(cek[:]); err != nil {
		return nil, fmt.Errorf("pack: generate cek: %w", err)
	}

	recipients, err := p.buildRecipients(&cek, senderKey, recipientKeys)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	alg := algAuthcrypt
	if len(senderKey) == 0 {
		alg = algAnoncrypt
	}

	protectedBytes, err := json.Marshal(protected{
		Enc:        encAlg,
		Typ:        encodingType,
		Alg:        alg,
		Recipients: recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("pack: marshal protected header: %w", err)
	}

	return p.buildEnvelope(&cek, base64.URLEncoding.EncodeToString(protectedBytes), payload)
}

func (p *Packer) buildRecipients(cek *[chacha.KeySize]byte, senderKey []byte, recPubKeys [][]byte) ([]recipient, error) {
	encodedRecipients := make([]recipient, 0, len(recPubKeys))

	for _, verKey := range recPubKeys {
		rec, err := p.buildRecipient(cek, senderKey, verKey)
		if err != nil {
			return nil, err
		}

		encodedRecipients = append(encodedRecipients, *rec)
	}

	return encodedRecipients, nil
}

// buildRecipient encodes the CEK for a recipient. With a sender key the CEK is boxed
// with the sender's key pair and the sender identity is sealed to the recipient, so only
// the recipient learns who sent the message.
func (p *Packer) buildRecipient(cek *[chacha.KeySize]byte, senderKey, recKey []byte) (*recipient, error) {
	recEncKey, err := cryptoutil.PublicEd25519toCurve25519(recKey)
	if err != nil {
		return nil, fmt.Errorf("convert recipient key: %w", err)
	}

	box, err := kms.NewCryptoBox(p.kms)
	if err != nil {
		return nil, err
	}

	if len(senderKey) == 0 {
		encCEK, err := box.Seal(cek[:], recEncKey, p.randSource)
		if err != nil {
			return nil, fmt.Errorf("seal cek: %w", err)
		}

		return &recipient{
			EncryptedKey: base64.URLEncoding.EncodeToString(encCEK),
			Header: recipientHeader{
				KID: base58.Encode(recKey),
			},
		}, nil
	}

	var nonce [cryptoutil.NonceSize]byte

	if _, err := p.randSource.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate cek nonce: %w", err)
	}

	encCEK, err := box.Easy(cek[:], nonce[:], recEncKey, senderKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt cek: %w", err)
	}

	encSender, err := box.Seal([]byte(base58.Encode(senderKey)), recEncKey, p.randSource)
	if err != nil {
		return nil, fmt.Errorf("seal sender key: %w", err)
	}

	return &recipient{
		EncryptedKey: base64.URLEncoding.EncodeToString(encCEK),
		Header: recipientHeader{
			KID:    base58.Encode(recKey),
			Sender: base64.URLEncoding.EncodeToString(encSender),
			IV:     base64.URLEncoding.EncodeToString(nonce[:]),
		},
	}, nil
}

// buildEnvelope encrypts the payload with chacha20poly1305, binding the base64 protected
// header as additional authenticated data, and splits off the poly1305 tag.
func (p *Packer) buildEnvelope(cek *[chacha.KeySize]byte, b64Protected string, payload []byte) ([]byte, error) {
	chachaCipher, err := chacha.New(cek[:])
	if err != nil {
		return nil, fmt.Errorf("pack: create cipher: %w", err)
	}

	nonce := make([]byte, chachaCipher.NonceSize())
	if _, err := p.randSource.Read(nonce); err != nil {
		return nil, fmt.Errorf("pack: generate nonce: %w", err)
	}

	symPld := chachaCipher.Seal(nil, nonce, payload, []byte(b64Protected))

	// tag is the trailing poly1305 authenticator appended by Seal
	tagIdx := len(symPld) - chachaCipher.Overhead()

	env := legacyEnvelope{
		Protected:  b64Protected,
		IV:         base64.URLEncoding.EncodeToString(nonce),
		CipherText: base64.URLEncoding.EncodeToString(symPld[:tagIdx]),
		Tag:        base64.URLEncoding.EncodeToString(symPld[tagIdx:]),
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("pack: marshal envelope: %w", err)
	}

	return out, nil
}
