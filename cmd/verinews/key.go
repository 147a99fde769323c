package main

import (
	"flag"
	"fmt"
	"io"

	"verinews.io/verify/keys"
)

func cmdKey(a *app, args []string) int {
	if len(args) == 0 {
		printKeyUsage(a.errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(a, args[1:])
	case "derive":
		return cmdKeyDerive(a, args[1:])
	case "list":
		return cmdKeyList(a, args[1:])
	case "export":
		return cmdKeyExport(a, args[1:])
	case "address":
		return cmdKeyAddress(a, args[1:])
	case "help", "-h", "--help":
		printKeyUsage(a.out)
		return 0
	default:
		fmt.Fprintf(a.errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(a.errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "verinews key: local signing keys")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  verinews key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  verinews key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  verinews key list")
	fmt.Fprintln(w, "  verinews key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  verinews key address --name <name> [--role <role>]")
}

func (a *app) keyStore() (*keys.KeyStore, int) {
	ks, err := keys.CreateKeyStore(a.cfg.KeysDir)
	if err != nil {
		fmt.Fprintf(a.errOut, "keys: %v\n", err)
		return nil, 1
	}
	return ks, 0
}

func cmdKeyInit(a *app, args []string) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(a.errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name (directory under the key store)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional secp256k1 seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(a.errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(a.errOut, "invalid --name: %v\n", err)
		return 2
	}
	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(a.errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	}
	ks, code := a.keyStore()
	if ks == nil {
		return code
	}
	addr, rootPath, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(a.errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Created root key: %s\n", addr.Hex())
	fmt.Fprintf(a.out, "Stored at: %s\n", rootPath)
	return 0
}

func cmdKeyDerive(a *app, args []string) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(a.errOut)

	var from string
	var role string
	var force bool

	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. field, desk)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(a.errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(a.errOut, "missing --role")
		return 2
	}
	if err := keys.CheckKeyName(from); err != nil {
		fmt.Fprintf(a.errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := keys.CheckRole(role); err != nil {
		fmt.Fprintf(a.errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, code := a.keyStore()
	if ks == nil {
		return code
	}
	addr, rolePath, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(a.errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Created role key: %s\n", addr.Hex())
	fmt.Fprintf(a.out, "Stored at: %s\n", rolePath)
	return 0
}

// keyRef parses --name and --role, shared by export and address.
func keyRef(a *app, name string, args []string) (string, string, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var key, role string
	fs.StringVar(&key, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (if set, uses the derived role key)")
	if err := fs.Parse(args); err != nil {
		return "", "", 2
	}
	if key == "" {
		fmt.Fprintln(a.errOut, "missing --name")
		return "", "", 2
	}
	if err := keys.CheckKeyName(key); err != nil {
		fmt.Fprintf(a.errOut, "invalid --name: %v\n", err)
		return "", "", 2
	}
	if role != "" {
		if err := keys.CheckRole(role); err != nil {
			fmt.Fprintf(a.errOut, "invalid --role: %v\n", err)
			return "", "", 2
		}
	}
	return key, role, 0
}

func cmdKeyExport(a *app, args []string) int {
	name, role, code := keyRef(a, "key export", args)
	if code != 0 {
		return code
	}
	ks, code := a.keyStore()
	if ks == nil {
		return code
	}
	pub, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(a.errOut, "export key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(a.out, pub)
	return 0
}

func cmdKeyAddress(a *app, args []string) int {
	name, role, code := keyRef(a, "key address", args)
	if code != 0 {
		return code
	}
	ks, code := a.keyStore()
	if ks == nil {
		return code
	}
	addr, err := ks.Address(name, role)
	if err != nil {
		fmt.Fprintf(a.errOut, "key address: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(a.out, addr.Hex())
	return 0
}

func cmdKeyList(a *app, args []string) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, code := a.keyStore()
	if ks == nil {
		return code
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(a.errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s\t%s\n", e.Identifier, e.Address.Hex())
		for _, r := range e.Roles {
			fmt.Fprintf(a.out, "  - %s\n", r)
		}
	}
	return 0
}
