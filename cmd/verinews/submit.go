package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"verinews.io/verify/keys"
	"verinews.io/verify/verify"
	"verinews.io/verify/wallet"
)

func cmdSubmit(a *app, args []string) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(a.errOut)

	var path, title, location, contentType, creator string
	var signer, signerRole, keyFile, seedHex string
	var asJSON bool

	fs.StringVar(&path, "file", "", "Content file to register")
	fs.StringVar(&title, "title", "", "Title (required)")
	fs.StringVar(&location, "location", "", "Where the content was captured")
	fs.StringVar(&contentType, "content-type", "", "MIME type; guessed from the file extension when empty")
	fs.StringVar(&creator, "creator", "", "Expected creator address; must match the signer")
	fs.StringVar(&signer, "signer", "", "Stored key name")
	fs.StringVar(&signerRole, "signer-role", "", "Role key under --signer")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file")
	fs.StringVar(&seedHex, "seed-hex", "", "Seed as 64 hex chars")
	fs.BoolVar(&asJSON, "json", false, "Print the record as JSON")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		fmt.Fprintln(a.errOut, "missing --file")
		return 2
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := time.Duration(a.cfg.SubmitTimeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	session, err := a.session(signer, signerRole, keyFile, seedHex)
	if err != nil {
		fmt.Fprintf(a.errOut, "signer: %v\n", err)
		return 2
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(a.errOut, "read --file: %v\n", err)
		return 1
	}
	defer f.Close()

	chain, err := a.ledger(ctx)
	if err != nil {
		fmt.Fprintf(a.errOut, "ledger: %v\n", err)
		return 1
	}
	m, err := a.mirror()
	if err != nil {
		fmt.Fprintf(a.errOut, "mirror: %v\n", err)
		return 1
	}
	s := &verify.Submitter{Chain: chain, Log: a.log}
	if m != nil {
		s.Tracker = m
	}

	rec, err := s.Submit(ctx, session, f, verify.Request{
		Title:       title,
		Location:    location,
		ContentType: contentType,
		Creator:     creator,
	})
	if err != nil {
		fmt.Fprintf(a.errOut, "submit: %v\n", err)
		return exitCode(err)
	}

	if asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(a.errOut, "encode: %v\n", err)
			return 1
		}
		return 0
	}
	printRecord(a.out, rec)
	return 0
}

// session loads a signer from the key store. An empty selection leaves the
// session disconnected, which the submitter reports as NotConnected.
func (a *app) session(name, role, keyFile, seedHex string) (*wallet.Session, error) {
	if name == "" && keyFile == "" && seedHex == "" {
		return new(wallet.Session), nil
	}
	ks, err := keys.CreateKeyStore(a.cfg.KeysDir)
	if err != nil {
		return nil, err
	}
	seed, err := ks.LoadSeed(seedHex, name, role, keyFile)
	if err != nil {
		return nil, err
	}
	signer, err := wallet.NewKeySigner(seed)
	if err != nil {
		return nil, err
	}
	return wallet.NewSession(signer), nil
}

func printRecord(w io.Writer, rec verify.Record) {
	fmt.Fprintf(w, "Verification ID: %s\n", rec.VerificationID)
	fmt.Fprintf(w, "Fingerprint:     %s\n", rec.Fingerprint)
	fmt.Fprintf(w, "Title:           %s\n", rec.Metadata.Title)
	if rec.Metadata.Location != "" {
		fmt.Fprintf(w, "Location:        %s\n", rec.Metadata.Location)
	}
	fmt.Fprintf(w, "Content type:    %s\n", rec.Metadata.ContentType)
	fmt.Fprintf(w, "Creator:         %s\n", rec.Creator.Hex())
	fmt.Fprintf(w, "Transaction:     %s\n", rec.TxHash.Hex())
	fmt.Fprintf(w, "Block:           %d\n", rec.BlockNumber)
	fmt.Fprintf(w, "Confirmed at:    %s\n", rec.ConfirmedTime().Format(time.RFC3339))
}
