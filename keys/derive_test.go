package keys

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func testSeed(b byte) []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = b + byte(i)
	}
	return seed
}

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := testSeed(1)

	a, err := DeriveRoleSeed(root, "desk-politics")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "desk-politics")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "desk-sports")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
	if _, err := PrivateKeyFromSeed(a); err != nil {
		t.Fatalf("derived seed is not a valid key: %v", err)
	}
}

func TestDeriveRoleSeedRejectsBadInput(t *testing.T) {
	if _, err := DeriveRoleSeed([]byte{1, 2, 3}, "role"); err == nil {
		t.Fatalf("expected short root seed to fail")
	}
	if _, err := DeriveRoleSeed(testSeed(1), "bad role"); err == nil {
		t.Fatalf("expected invalid role to fail")
	}
}

func TestAddressFromSeedMatchesGoEthereum(t *testing.T) {
	seed := testSeed(7)
	addr, err := AddressFromSeed(seed)
	if err != nil {
		t.Fatalf("AddressFromSeed: %v", err)
	}
	priv, err := crypto.ToECDSA(seed)
	if err != nil {
		t.Fatalf("ToECDSA: %v", err)
	}
	if want := crypto.PubkeyToAddress(priv.PublicKey); addr != want {
		t.Fatalf("address = %s, want %s", addr.Hex(), want.Hex())
	}
	pubAddr, err := AddressFromPublicKey(&priv.PublicKey)
	if err != nil || pubAddr != addr {
		t.Fatalf("AddressFromPublicKey = %s, %v", pubAddr.Hex(), err)
	}
	if _, err := AddressFromPublicKey(&ecdsa.PublicKey{}); err == nil {
		t.Fatalf("expected empty public key to fail")
	}
}

func TestPrivateKeyFromSeedRejectsZero(t *testing.T) {
	if _, err := PrivateKeyFromSeed(make([]byte, SeedSize)); err == nil {
		t.Fatalf("expected zero scalar to be rejected")
	}
}

func TestKeyStoreLifecycle(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}

	seed := testSeed(9)
	addr, path, err := ks.InitializeRootKey("newsroom", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("root key permissions = %o", perm)
	}
	if _, _, err := ks.InitializeRootKey("newsroom", seed, false); err == nil {
		t.Fatalf("expected second init without overwrite to fail")
	}

	roleAddr, rolePath, err := ks.DeriveKeyFromRole("newsroom", "field", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	if roleAddr == addr {
		t.Fatalf("role key should differ from root key")
	}
	if filepath.Base(rolePath) != "field.key" {
		t.Fatalf("unexpected role path %s", rolePath)
	}

	got, err := ks.Address("newsroom", "field")
	if err != nil || got != roleAddr {
		t.Fatalf("Address = %s, %v", got.Hex(), err)
	}

	loaded, err := ks.LoadSeed("", "", "", rolePath)
	if err != nil {
		t.Fatalf("LoadSeed(keyFile): %v", err)
	}
	if a, _ := AddressFromSeed(loaded); a != roleAddr {
		t.Fatalf("key file address mismatch")
	}
	if _, err := ks.LoadSeed("", "", "", ""); err == nil {
		t.Fatalf("expected missing signer to fail")
	}

	pub, err := ks.ExportKey("newsroom", "field")
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}
	raw, err := hexutil.Decode(pub)
	if err != nil {
		t.Fatalf("ExportKey output %q: %v", pub, err)
	}
	key, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		t.Fatalf("UnmarshalPubkey: %v", err)
	}
	if crypto.PubkeyToAddress(*key) != roleAddr {
		t.Fatalf("exported key does not match role address")
	}
	if _, err := ks.ExportKey("newsroom", "absent"); err == nil {
		t.Fatalf("expected export of missing role to fail")
	}

	list, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []KeyEntry{{Identifier: "newsroom", Address: addr, Roles: []string{"field"}}}
	if len(list) != 1 || list[0].Identifier != want[0].Identifier || list[0].Address != want[0].Address ||
		len(list[0].Roles) != 1 || list[0].Roles[0] != "field" {
		t.Fatalf("ListKeys = %+v", list)
	}
}

func TestInitializeRootKeyGeneratesSeed(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	addr, _, err := ks.InitializeRootKey("fresh", nil, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if addr == (common.Address{}) {
		t.Fatalf("expected non-zero address")
	}
}

func TestParseSeedHex(t *testing.T) {
	seed := testSeed(3)
	hexSeed := "0x" + common.Bytes2Hex(seed)
	got, err := ParseSeedHex("  " + hexSeed + "\n")
	if err != nil {
		t.Fatalf("ParseSeedHex: %v", err)
	}
	if string(got) != string(seed) {
		t.Fatalf("seed mismatch")
	}
	if _, err := ParseSeedHex("abcd"); err == nil {
		t.Fatalf("expected short seed to fail")
	}
}
