package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"verinews.io/verify/verify"
)

type lookupOutput struct {
	VerificationID string `json:"verificationId"`
	Fingerprint    string `json:"fingerprint"`
	Timestamp      string `json:"timestamp"`
	Creator        string `json:"creator"`
	Verified       bool   `json:"verified"`
}

func cmdLookup(a *app, args []string) int {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var asJSON bool
	fs.BoolVar(&asJSON, "json", false, "Print the record as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: verinews lookup [--json] <id>")
		return 2
	}

	ctx := context.Background()
	client, err := a.ledger(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "ledger: %v\n", err)
		return 1
	}
	reg := &verify.Registry{Ledger: client, Log: a.log}
	rec, err := reg.Lookup(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(a.errOut, "lookup: %v\n", err)
		return exitCode(err)
	}

	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(lookupOutput{
			VerificationID: rec.VerificationID,
			Fingerprint:    rec.Fingerprint.String(),
			Timestamp:      rec.Timestamp.Format(time.RFC3339),
			Creator:        rec.Creator.Hex(),
			Verified:       rec.Verified,
		}); err != nil {
			fmt.Fprintf(a.errOut, "encode: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(a.out, "Verification ID: %s\n", rec.VerificationID)
	fmt.Fprintf(a.out, "Fingerprint:     %s\n", rec.Fingerprint)
	fmt.Fprintf(a.out, "Registered at:   %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(a.out, "Creator:         %s\n", rec.Creator.Hex())
	fmt.Fprintf(a.out, "Verified:        %t\n", rec.Verified)
	return 0
}

// cmdCheck compares a local file with a registration. When a mirror is
// configured the entry is flagged on mismatch and cleared on a match.
func cmdCheck(a *app, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var path, id string
	fs.StringVar(&path, "file", "", "Content file")
	fs.StringVar(&id, "id", "", "Verification ID")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if path == "" || id == "" {
		fmt.Fprintln(a.errOut, "usage: verinews check --file <path> --id <id>")
		return 2
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(a.errOut, "read --file: %v\n", err)
		return 1
	}
	defer f.Close()

	ctx := context.Background()
	client, err := a.ledger(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "ledger: %v\n", err)
		return 1
	}
	v := &verify.Verifier{Registry: &verify.Registry{Ledger: client, Log: a.log}}
	rec, err := v.Check(ctx, f, id)
	tampered := verify.IsKind(err, verify.KindTampered)
	if err != nil && !tampered {
		fmt.Fprintf(a.errOut, "check: %v\n", err)
		return exitCode(err)
	}

	m, merr := a.mirror()
	if merr != nil {
		a.log.WithError(merr).Warn("mirror unavailable; not recording check result")
	} else if m != nil {
		if ferr := m.Flag(ctx, rec.VerificationID, tampered); ferr != nil {
			a.log.WithError(ferr).Warn("mirror: record check result")
		}
	}

	if tampered {
		fmt.Fprintf(a.out, "TAMPERED: %s does not match verification %s\n", path, rec.VerificationID)
		fmt.Fprintf(a.errOut, "check: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "OK: %s matches verification %s (%s)\n", path, rec.VerificationID, rec.Fingerprint)
	return 0
}

// cmdStatus reports the ledger the CLI is configured for.
func cmdStatus(a *app, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ctx := context.Background()
	client, err := a.ledger(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "ledger: %v\n", err)
		return 1
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "status: %v\n", err)
		return 1
	}
	head, err := client.Head(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "status: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Chain ID:     %s\n", chainID)
	fmt.Fprintf(a.out, "Block height: %d\n", head)
	fmt.Fprintf(a.out, "Contract:     %s\n", client.Contract().Hex())
	return 0
}
