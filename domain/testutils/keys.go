package testutils

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sashabeton/bitcoinvault/domain/netparams"
	"github.com/sashabeton/bitcoinvault/domain/vault/vaultscript"
)

// Key returns a deterministic private key derived from seed.
func Key(seed byte) *btcec.PrivateKey {
	keyBytes := make([]byte, 32)
	keyBytes[31] = seed
	key, _ := btcec.PrivKeyFromBytes(keyBytes)
	return key
}

// VaultKeys are the keys of one vault template.
type VaultKeys struct {
	Owner, Instant, Recovery *btcec.PrivateKey
}

// NewVaultKeys returns owner, instant and recovery keys derived from seed.
func NewVaultKeys(seed byte) *VaultKeys {
	return &VaultKeys{
		Owner:    Key(seed),
		Instant:  Key(seed + 1),
		Recovery: Key(seed + 2),
	}
}

// AlertTemplate returns the alert template of the keys.
func (k *VaultKeys) AlertTemplate() *vaultscript.Template {
	return vaultscript.NewAlertTemplate(k.Owner.PubKey(), k.Recovery.PubKey())
}

// InstantTemplate returns the instant template of the keys.
func (k *VaultKeys) InstantTemplate() *vaultscript.Template {
	return vaultscript.NewInstantTemplate(k.Owner.PubKey(), k.Instant.PubKey(), k.Recovery.PubKey())
}

// P2WPKHScript returns the pay-to-witness-pubkey-hash script of key.
func P2WPKHScript(t *testing.T, params *netparams.Params, key *btcec.PrivateKey) []byte {
	address, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), params.Net)
	if err != nil {
		t.Fatalf("NewAddressWitnessPubKeyHash: %+v", err)
	}
	script, err := txscript.PayToAddrScript(address)
	if err != nil {
		t.Fatalf("PayToAddrScript: %+v", err)
	}
	return script
}

// VaultPkScript returns the output script of template for addressType.
func VaultPkScript(t *testing.T, params *netparams.Params, template *vaultscript.Template,
	addressType vaultscript.AddressType) []byte {

	script, err := template.PkScript(params.Net, addressType)
	if err != nil {
		t.Fatalf("PkScript: %+v", err)
	}
	return script
}
