/*
Copyright Crubn. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packager

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/btcsuite/btcutil/base58"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	spistorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"

	"github.com/crubn/aries-agent-go/pkg/didcomm/common/transport"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer"
	"github.com/crubn/aries-agent-go/pkg/didcomm/packer/legacy"
	"github.com/crubn/aries-agent-go/pkg/kms"
)

type testProvider struct {
	storeProvider spistorage.Provider
	kms           kms.KeyManager
	packers       []packer.Packer
	primaryPacker packer.Packer
}

func (p *testProvider) StorageProvider() spistorage.Provider { return p.storeProvider }
func (p *testProvider) KMS() kms.KeyManager                  { return p.kms }
func (p *testProvider) Packers() []packer.Packer             { return p.packers }
func (p *testProvider) PrimaryPacker() packer.Packer         { return p.primaryPacker }

func newTestPackager(t *testing.T) (*Packager, kms.KeyManager) {
	t.Helper()

	prov := &testProvider{storeProvider: mem.NewProvider()}

	km, err := kms.New(prov)
	require.NoError(t, err)

	prov.kms = km
	prov.primaryPacker = legacy.New(prov)

	pkgr, err := New(prov)
	require.NoError(t, err)

	return pkgr, km
}

func TestNewRequiresPrimaryPacker(t *testing.T) {
	prov := &testProvider{storeProvider: mem.NewProvider()}

	km, err := kms.New(prov)
	require.NoError(t, err)

	prov.kms = km

	_, err = New(prov)
	require.Error(t, err)
	require.Contains(t, err.Error(), "primary packer")
}

func TestPackUnpackRoundTrip(t *testing.T) {
	senderPackager, senderKMS := newTestPackager(t)
	recPackager, recKMS := newTestPackager(t)

	senderKey, err := senderKMS.CreateKeySet()
	require.NoError(t, err)

	recKey, err := recKMS.CreateKeySet()
	require.NoError(t, err)

	msg := []byte(`{"@id":"12345","label":"ping"}`)

	packed, err := senderPackager.PackMessage(&transport.Envelope{
		Message:    msg,
		FromVerKey: base58.Decode(senderKey),
		ToVerKeys:  []string{recKey},
	})
	require.NoError(t, err)

	unpacked, err := recPackager.UnpackMessage(packed)
	require.NoError(t, err)
	require.Equal(t, msg, unpacked.Message)
}

func TestPackMessageValidation(t *testing.T) {
	pkgr, _ := newTestPackager(t)

	_, err := pkgr.PackMessage(nil)
	require.Error(t, err)

	_, err = pkgr.PackMessage(&transport.Envelope{Message: []byte("data")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no recipient keys")
}

func TestUnpackUnknownEncoding(t *testing.T) {
	pkgr, _ := newTestPackager(t)

	header := base64.URLEncoding.EncodeToString([]byte(`{"typ":"JWE/9.9"}`))

	_, err := pkgr.UnpackMessage([]byte(fmt.Sprintf(`{"protected":%q}`, header)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not recognized")

	_, err = pkgr.UnpackMessage([]byte("not an envelope"))
	require.Error(t, err)
}
