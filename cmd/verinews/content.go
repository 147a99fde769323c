package main

import (
	"flag"
	"fmt"
	"io"

	"verinews.io/verify/fingerprint"
)

func cmdHash(args []string, out io.Writer, errOut io.Writer) int {
	fp, code := fingerprintArg("hash", args, errOut)
	if code != 0 {
		return code
	}
	_, _ = fmt.Fprintln(out, fp.String())
	return 0
}

// cmdCID prints the CID a mirror stores the file under, so
// `ipfs block get <cid>` returns the same bytes.
func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	fp, code := fingerprintArg("cid", args, errOut)
	if code != 0 {
		return code
	}
	_, _ = fmt.Fprintln(out, fp.CID())
	return 0
}

func fingerprintArg(name string, args []string, errOut io.Writer) (fingerprint.Fingerprint, int) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return fingerprint.Zero, 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(errOut, "usage: verinews %s <file>\n", name)
		return fingerprint.Zero, 2
	}
	fp, err := fingerprint.FromFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", name, err)
		return fingerprint.Zero, 1
	}
	return fp, 0
}
