package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"verinews.io/verify/config"
	"verinews.io/verify/internal/logging"
	"verinews.io/verify/ledger"
	"verinews.io/verify/mirror"
	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
	"verinews.io/verify/storage/localfs"
	"verinews.io/verify/verify"

	_ "verinews.io/verify/storage/grpccas"
	_ "verinews.io/verify/storage/ipfs"
)

// dialLedger is replaced in tests.
var dialLedger = ledger.Dial

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	gs := flag.NewFlagSet("verinews", flag.ContinueOnError)
	gs.SetOutput(errOut)
	var g globals
	gs.StringVar(&g.configPath, "config", "", "Config file (JSON or YAML); defaults to $"+config.EnvConfig)
	gs.StringVar(&g.logLevel, "log-level", "", "Override log_level (trace, debug, info, warn, error)")
	gs.Usage = func() { printUsage(errOut) }
	if err := gs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	args = gs.Args()
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "hash":
		return cmdHash(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	}

	cmds := map[string]func(*app, []string) int{
		"submit": cmdSubmit,
		"lookup": cmdLookup,
		"check":  cmdCheck,
		"status": cmdStatus,
		"list":   cmdList,
		"stats":  cmdStats,
		"mirror": cmdMirror,
		"key":    cmdKey,
		"cas":    cmdCAS,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
	a, err := newApp(g, out, errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer a.close()
	return cmd(a, args[1:])
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "verinews: register and verify content fingerprints on the ledger")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  verinews [--config <file>] [--log-level <level>] <command> ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  verinews hash <file>")
	fmt.Fprintln(w, "  verinews cid <file>")
	fmt.Fprintln(w, "  verinews submit --file <path> --title <text> [--location <text>] [--content-type <mime>] (--signer <name> [--signer-role <role>] | --key-file <path> | --seed-hex <64hex>) [--json]")
	fmt.Fprintln(w, "  verinews lookup [--json] <id>")
	fmt.Fprintln(w, "  verinews check --file <path> --id <id>")
	fmt.Fprintln(w, "  verinews status")
	fmt.Fprintln(w, "  verinews list [--search <text>] [--type image|video|document] [--status <status>] [--limit <n>]")
	fmt.Fprintln(w, "  verinews stats")
	fmt.Fprintln(w, "  verinews mirror export --out <file> [--zstd] <id> [<id> ...]")
	fmt.Fprintln(w, "  verinews mirror import <file>")
	fmt.Fprintln(w, "  verinews key init|derive|list|export|address ...")
	fmt.Fprintln(w, "  verinews cas backends|put|get|has ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - submit, lookup, check and status need rpc_url and contract_address ($"+config.EnvRPCURL+", $"+config.EnvContract+")")
	fmt.Fprintln(w, "  - list, stats and mirror need mirror.index_path in the config file")
	fmt.Fprintln(w, "  - keys live under ~/.verinews/keys unless keys_dir ($"+config.EnvKeysDir+") is set")
	fmt.Fprintln(w, "  - exit status is 2 for usage and input errors, 1 for everything else")
}

type globals struct {
	configPath string
	logLevel   string
}

// app carries what commands share: configuration, the logger and anything
// that must be closed on exit.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	out     io.Writer
	errOut  io.Writer
	closers []func() error
}

func newApp(g globals, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	// Logs go to errOut in full so stdout carries only command output.
	log, closeLog, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Info:  errOut,
		Warn:  errOut,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, out: out, errOut: errOut, closers: []func() error{closeLog}}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close")
		}
	}
	a.closers = nil
}

func (a *app) ledger(ctx context.Context) (*ledger.Client, error) {
	if err := a.cfg.RequireLedger(); err != nil {
		return nil, err
	}
	c, closeFn, err := dialLedger(ctx, a.cfg.RPCURL, a.cfg.Contract(), a.cfg.LedgerOptions())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { closeFn(); return nil })
	return c, nil
}

// mirror opens the local record mirror, or returns nil when none is
// configured. Without a cas section, records go to <index dir>/cas.
func (a *app) mirror() (*mirror.Mirror, error) {
	mc := a.cfg.Mirror
	if !mc.Enabled() {
		return nil, nil
	}
	var store storage.CAS
	if mc.CAS.IsZero() {
		fs, err := localfs.New(filepath.Join(filepath.Dir(mc.IndexPath), "cas"))
		if err != nil {
			return nil, err
		}
		store = fs
	} else {
		cas, closeFn, err := mc.CAS.Open(casregistry.UsageCLI, "")
		if err != nil {
			return nil, err
		}
		if closeFn != nil {
			a.closers = append(a.closers, closeFn)
		}
		store = cas
	}
	if dir := filepath.Dir(mc.IndexPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
	}
	idx, err := mirror.OpenIndex(mc.IndexPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, idx.Close)
	return mirror.New(idx, store, a.log), nil
}

func (a *app) requireMirror() (*mirror.Mirror, int) {
	m, err := a.mirror()
	if err != nil {
		fmt.Fprintf(a.errOut, "mirror: %v\n", err)
		return nil, 1
	}
	if m == nil {
		fmt.Fprintln(a.errOut, "no mirror configured (set mirror.index_path)")
		return nil, 2
	}
	return m, 0
}

// exitCode maps verification errors onto the CLI's exit statuses.
func exitCode(err error) int {
	switch verify.KindOf(err) {
	case verify.KindInvalidInput:
		return 2
	default:
		return 1
	}
}
