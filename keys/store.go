package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyStore is a local-first wallet key store.
//
// EXPERIMENTAL: this filesystem-backed surface is not part of the stable API.
//
// Layout:
//
//	<Directory>/<name>/root.key          hex seed, 0600
//	<Directory>/<name>/roles/<role>.key  derived seed, 0600
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Address    common.Address
	Roles      []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".verinews", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleKeyPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

func CheckKeyName(identifier string) error {
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	if r, ok := firstInvalidRune(identifier); ok {
		return fmt.Errorf("invalid character %q in identifier", r)
	}
	return nil
}

func CheckRole(role string) error {
	if role == "" {
		return errors.New("role cannot be empty")
	}
	if r, ok := firstInvalidRune(role); ok {
		return fmt.Errorf("invalid character %q in role", r)
	}
	return nil
}

func firstInvalidRune(s string) (rune, bool) {
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return c, true
	}
	return 0, false
}

// ParseSeedHex decodes a hex private key, with or without 0x prefix, and
// checks that it is a valid secp256k1 scalar.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	if _, err := PrivateKeyFromSeed(data); err != nil {
		return nil, err
	}
	return data, nil
}

// GenerateSeed returns a fresh random account seed.
func GenerateSeed() ([]byte, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSA(priv), nil
}

func (ks *KeyStore) saveSeed(filePath string, seed []byte, overwrite bool) error {
	if _, err := PrivateKeyFromSeed(seed); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeed(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitializeRootKey stores seed as the root key for identifier. A nil seed
// generates a fresh one.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (addr common.Address, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return common.Address{}, "", err
	}
	if seed == nil {
		if seed, err = GenerateSeed(); err != nil {
			return common.Address{}, "", err
		}
	}
	filePath = ks.rootKeyPath(identifier)
	if err := ks.saveSeed(filePath, seed, overwrite); err != nil {
		return common.Address{}, "", err
	}
	addr, err = AddressFromSeed(seed)
	return addr, filePath, err
}

func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (addr common.Address, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return common.Address{}, "", err
	}
	if err := CheckRole(role); err != nil {
		return common.Address{}, "", err
	}
	rootSeed, err := ks.loadSeed(ks.rootKeyPath(from))
	if err != nil {
		return common.Address{}, "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return common.Address{}, "", err
	}
	filePath = ks.roleKeyPath(from, role)
	if err := ks.saveSeed(filePath, roleSeed, overwrite); err != nil {
		return common.Address{}, "", err
	}
	addr, err = AddressFromSeed(roleSeed)
	return addr, filePath, err
}

// Address returns the account address for a stored key without exposing the
// seed.
func (ks *KeyStore) Address(identifier, role string) (common.Address, error) {
	seed, err := ks.LoadSeed("", identifier, role, "")
	if err != nil {
		return common.Address{}, err
	}
	return AddressFromSeed(seed)
}

// LoadSeed resolves a signer from exactly one source, in priority order:
// explicit hex, a seed file, or a stored key name (optionally a role key).
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return ks.loadSeed(keyFile)
	}
	if signerName != "" {
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerRole == "" {
			return ks.loadSeed(ks.rootKeyPath(signerName))
		}
		if err := CheckRole(signerRole); err != nil {
			return nil, err
		}
		return ks.loadSeed(ks.roleKeyPath(signerName, signerRole))
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		addr, aerr := ks.Address(identifier, "")
		if aerr != nil {
			continue
		}
		var roles []string
		roleEntries, rerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "roles"))
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if !roleEntry.IsDir() && strings.HasSuffix(roleEntry.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		result = append(result, KeyEntry{Identifier: identifier, Address: addr, Roles: roles})
	}
	return result, nil
}
