package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
)

// cmdCAS works directly against a mirror store backend, bypassing the index.
// Objects are keyed by the same CID `verinews cid` prints.
func cmdCAS(a *app, args []string) int {
	if len(args) == 0 {
		printCASUsage(a.errOut)
		return 2
	}
	switch args[0] {
	case "put":
		return cmdCASPut(a, args[1:])
	case "get":
		return cmdCASGet(a, args[1:])
	case "has":
		return cmdCASHas(a, args[1:])
	case "backends":
		printBackends(a.out)
		return 0
	case "help", "-h", "--help":
		printCASUsage(a.out)
		return 0
	default:
		fmt.Fprintf(a.errOut, "unknown cas subcommand: %s\n\n", args[0])
		printCASUsage(a.errOut)
		return 2
	}
}

func printCASUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  verinews cas backends")
	fmt.Fprintln(w, "  verinews cas put --backend localfs --localfs-dir <dir> <file>")
	fmt.Fprintln(w, "  verinews cas get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  verinews cas has --backend grpc --grpc-target <host:port> --cid <cid>")
}

type backendFlags struct {
	backend string
}

func (c *backendFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "CAS backend name (see `verinews cas backends`)")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *backendFlags) open(a *app) (storage.CAS, bool) {
	cas, closeFn, err := casregistry.Open(c.backend, casregistry.UsageCLI)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return nil, false
	}
	if closeFn != nil {
		a.closers = append(a.closers, closeFn)
	}
	return cas, true
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdCASPut(a *app, args []string) int {
	fs := flag.NewFlagSet("cas put", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var bf backendFlags
	bf.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: verinews cas put [backend flags] <file>")
		return 2
	}
	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(a.errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	cas, ok := bf.open(a)
	if !ok {
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(a.out, id.String())
	return 0
}

func cidFlag(a *app, s string) (cid.Cid, int) {
	if s == "" {
		fmt.Fprintln(a.errOut, "missing --cid")
		return cid.Undef, 2
	}
	id, err := cid.Decode(s)
	if err != nil {
		fmt.Fprintln(a.errOut, storage.ErrInvalidCID)
		return cid.Undef, 2
	}
	return id, 0
}

func cmdCASGet(a *app, args []string) int {
	fs := flag.NewFlagSet("cas get", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var bf backendFlags
	bf.add(fs)
	var cidStr, outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, code := cidFlag(a, cidStr)
	if code != 0 {
		return code
	}
	cas, ok := bf.open(a)
	if !ok {
		return 1
	}
	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return 1
	}
	if outPath == "" {
		_, _ = a.out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(a.errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdCASHas(a *app, args []string) int {
	fs := flag.NewFlagSet("cas has", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var bf backendFlags
	bf.add(fs)
	var cidStr string
	fs.StringVar(&cidStr, "cid", "", "CID to look for")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, code := cidFlag(a, cidStr)
	if code != 0 {
		return code
	}
	cas, ok := bf.open(a)
	if !ok {
		return 1
	}
	if !cas.Has(id) {
		_, _ = fmt.Fprintln(a.out, "missing")
		return 1
	}
	_, _ = fmt.Fprintln(a.out, "present")
	return 0
}
