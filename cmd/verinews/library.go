package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"verinews.io/verify/metadata"
	"verinews.io/verify/mirror"
)

func cmdList(a *app, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var search, category, status string
	var limit int
	fs.StringVar(&search, "search", "", "Match titles containing this text")
	fs.StringVar(&category, "type", "", "image, video or document")
	fs.StringVar(&status, "status", "", "pending, verified, failed or flagged")
	fs.IntVar(&limit, "limit", 0, "Maximum entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	f := mirror.Filter{Search: search, Limit: limit}
	if category != "" {
		c, ok := metadata.ParseCategory(category)
		if !ok {
			fmt.Fprintf(a.errOut, "invalid --type %q\n", category)
			return 2
		}
		f.Category = c
	}
	if status != "" {
		st, ok := mirror.ParseStatus(status)
		if !ok {
			fmt.Fprintf(a.errOut, "invalid --status %q\n", status)
			return 2
		}
		f.Status = st
	}

	m, code := a.requireMirror()
	if m == nil {
		return code
	}
	entries, err := m.Index.List(context.Background(), f)
	if err != nil {
		fmt.Fprintf(a.errOut, "list: %v\n", err)
		return 1
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTYPE\tSUBMITTED\tTITLE")
	for _, e := range entries {
		id := e.VerificationID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, e.Status, e.Category, e.SubmittedAt.Format(time.RFC3339), e.Title)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(a.errOut, "list: %v\n", err)
		return 1
	}
	return 0
}

func cmdStats(a *app, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	m, code := a.requireMirror()
	if m == nil {
		return code
	}
	st, err := m.Index.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(a.errOut, "stats: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Total:    %d\n", st.Total)
	fmt.Fprintf(a.out, "Verified: %d\n", st.Verified)
	fmt.Fprintf(a.out, "Pending:  %d\n", st.Pending)
	fmt.Fprintf(a.out, "Failed:   %d\n", st.Failed)
	fmt.Fprintf(a.out, "Flagged:  %d\n", st.Flagged)
	fmt.Fprintf(a.out, "Rate:     %.1f%%\n", st.Rate)
	return 0
}

func cmdMirror(a *app, args []string) int {
	if len(args) == 0 {
		printMirrorUsage(a)
		return 2
	}
	switch args[0] {
	case "show":
		return cmdMirrorShow(a, args[1:])
	case "export":
		return cmdMirrorExport(a, args[1:])
	case "import":
		return cmdMirrorImport(a, args[1:])
	case "help", "-h", "--help":
		printMirrorUsage(a)
		return 0
	default:
		fmt.Fprintf(a.errOut, "unknown mirror subcommand: %s\n\n", args[0])
		printMirrorUsage(a)
		return 2
	}
}

func printMirrorUsage(a *app) {
	fmt.Fprintln(a.errOut, "Usage:")
	fmt.Fprintln(a.errOut, "  verinews mirror show <id>")
	fmt.Fprintln(a.errOut, "  verinews mirror export --out <file> [--zstd] <id> [<id> ...]")
	fmt.Fprintln(a.errOut, "  verinews mirror import <file>")
}

func cmdMirrorShow(a *app, args []string) int {
	fs := flag.NewFlagSet("mirror show", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: verinews mirror show <id>")
		return 2
	}
	m, code := a.requireMirror()
	if m == nil {
		return code
	}
	rec, err := m.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Fprintf(a.errOut, "mirror show: %v\n", err)
		return 1
	}
	printRecord(a.out, rec)
	return 0
}

func cmdMirrorExport(a *app, args []string) int {
	fs := flag.NewFlagSet("mirror export", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var outPath string
	var compress bool
	fs.StringVar(&outPath, "out", "", "Bundle file to write")
	fs.BoolVar(&compress, "zstd", false, "Compress the bundle (default when --out ends in .zst)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(a.errOut, "usage: verinews mirror export --out <file> [--zstd] <id> [<id> ...]")
		return 2
	}
	if strings.HasSuffix(outPath, ".zst") {
		compress = true
	}
	m, code := a.requireMirror()
	if m == nil {
		return code
	}
	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(a.errOut, "create --out: %v\n", err)
		return 1
	}
	if err := m.Export(context.Background(), f, fs.Args(), compress); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		fmt.Fprintf(a.errOut, "mirror export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(a.errOut, "mirror export: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Exported %d records to %s\n", fs.NArg(), outPath)
	return 0
}

func cmdMirrorImport(a *app, args []string) int {
	fs := flag.NewFlagSet("mirror import", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: verinews mirror import <file>")
		return 2
	}
	m, code := a.requireMirror()
	if m == nil {
		return code
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(a.errOut, "read bundle: %v\n", err)
		return 1
	}
	defer f.Close()
	n, err := m.Import(context.Background(), f)
	if err != nil {
		fmt.Fprintf(a.errOut, "mirror import: %v\n", err)
		return 1
	}
	fmt.Fprintf(a.out, "Imported %d new records\n", n)
	return 0
}
