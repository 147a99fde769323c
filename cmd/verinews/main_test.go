package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"verinews.io/verify/config"
	"verinews.io/verify/fingerprint"
	"verinews.io/verify/internal/logging"
	"verinews.io/verify/keys"
	"verinews.io/verify/ledger"
	"verinews.io/verify/ledger/ledgertest"
	"verinews.io/verify/verify"
)

var contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

const testSeedHex = "1111111111111111111111111111111111111111111111111111111111111111"

type env struct {
	dir     string
	cfgPath string
	backend *ledgertest.Backend
}

// newEnv writes a config with a mirror under a temp dir and routes ledger
// dials to an in-memory backend.
func newEnv(t *testing.T) *env {
	t.Helper()
	for _, k := range []string{config.EnvConfig, config.EnvRPCURL, config.EnvContract, config.EnvKeysDir, config.EnvChainID, logging.EnvLogFile} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	e := &env{dir: dir, backend: ledgertest.New(contract)}
	e.cfgPath = e.writeConfig(t, "config.json", filepath.Join(dir, "mirror", "index.db"))

	prev := dialLedger
	dialLedger = func(_ context.Context, _ string, addr common.Address, opts ledger.Options) (*ledger.Client, func(), error) {
		c, err := ledger.New(e.backend, addr, opts)
		return c, func() {}, err
	}
	t.Cleanup(func() { dialLedger = prev })
	return e
}

func (e *env) writeConfig(t *testing.T, name, indexPath string) string {
	t.Helper()
	cfg := map[string]any{
		"rpc_url":               "http://127.0.0.1:8545",
		"contract_address":      contract.Hex(),
		"receipt_poll_interval": "1ms",
		"keys_dir":              filepath.Join(e.dir, "keys"),
		"log_level":             "error",
		"mirror":                map[string]any{"index_path": indexPath},
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func (e *env) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return e.runWith(t, e.cfgPath, args...)
}

func (e *env) runWith(t *testing.T, cfgPath string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(append([]string{"--config", cfgPath}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (e *env) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (e *env) submit(t *testing.T, path, title string, extra ...string) verify.Record {
	t.Helper()
	args := append([]string{"submit", "--file", path, "--title", title, "--seed-hex", testSeedHex, "--json"}, extra...)
	code, out, errOut := e.run(t, args...)
	if code != 0 {
		t.Fatalf("submit exit %d: %s", code, errOut)
	}
	var rec verify.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode submit output: %v\n%s", err, out)
	}
	return rec
}

func TestUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 {
		t.Fatalf("no args exit = %d", code)
	}
	if code := run([]string{"bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("unknown command exit = %d", code)
	}
	out.Reset()
	if code := run([]string{"help"}, &out, &errOut); code != 0 || !strings.Contains(out.String(), "verinews submit") {
		t.Fatalf("help exit = %d, out = %q", code, out.String())
	}
}

func TestHashAndCID(t *testing.T) {
	e := newEnv(t)
	content := "breaking: river crossing at dawn"
	path := e.file(t, "photo.jpg", content)

	code, out, errOut := e.run(t, "hash", path)
	if code != 0 {
		t.Fatalf("hash exit %d: %s", code, errOut)
	}
	if got, want := strings.TrimSpace(out), fingerprint.Sum([]byte(content)).String(); got != want {
		t.Fatalf("hash = %s, want %s", got, want)
	}

	code, out, _ = e.run(t, "cid", path)
	if code != 0 {
		t.Fatalf("cid exit %d", code)
	}
	if got, want := strings.TrimSpace(out), fingerprint.CIDOf([]byte(content)).String(); got != want {
		t.Fatalf("cid = %s, want %s", got, want)
	}

	if code, _, _ := e.run(t, "hash", filepath.Join(e.dir, "missing")); code != 1 {
		t.Fatalf("hash of missing file exit = %d", code)
	}
}

func TestSubmitLookupCheck(t *testing.T) {
	e := newEnv(t)
	content := "council meeting recording"
	path := e.file(t, "meeting.mp4", content)

	rec := e.submit(t, path, "Council meeting", "--content-type", "video/mp4")
	if rec.VerificationID != "1" {
		t.Fatalf("verification id = %q", rec.VerificationID)
	}
	if rec.Fingerprint != fingerprint.Sum([]byte(content)) {
		t.Fatalf("record fingerprint mismatch")
	}
	if rec.Metadata.ContentType != "video/mp4" {
		t.Fatalf("content type = %q", rec.Metadata.ContentType)
	}
	seed, _ := keys.ParseSeedHex(testSeedHex)
	addr, _ := keys.AddressFromSeed(seed)
	if rec.Creator != addr {
		t.Fatalf("creator = %s, want %s", rec.Creator.Hex(), addr.Hex())
	}

	code, out, errOut := e.run(t, "lookup", rec.VerificationID)
	if code != 0 {
		t.Fatalf("lookup exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, rec.Fingerprint.String()) || !strings.Contains(out, "Verified:        true") {
		t.Fatalf("lookup output:\n%s", out)
	}

	code, out, _ = e.run(t, "check", "--file", path, "--id", rec.VerificationID)
	if code != 0 || !strings.HasPrefix(out, "OK:") {
		t.Fatalf("check exit %d:\n%s", code, out)
	}

	edited := e.file(t, "edited.mp4", content+" (edited)")
	code, out, errOut = e.run(t, "check", "--file", edited, "--id", rec.VerificationID)
	if code != 1 || !strings.HasPrefix(out, "TAMPERED:") || !strings.Contains(errOut, string(verify.KindTampered)) {
		t.Fatalf("tampered check exit %d:\n%s\n%s", code, out, errOut)
	}
	code, out, _ = e.run(t, "list", "--status", "flagged")
	if code != 0 || !strings.Contains(out, "Council meeting") {
		t.Fatalf("flagged list exit %d:\n%s", code, out)
	}

	if code, _, _ := e.run(t, "check", "--file", path, "--id", rec.VerificationID); code != 0 {
		t.Fatalf("recheck exit %d", code)
	}
	code, out, _ = e.run(t, "stats")
	if code != 0 || !strings.Contains(out, "Verified: 1") || !strings.Contains(out, "Flagged:  0") || !strings.Contains(out, "Rate:     100.0%") {
		t.Fatalf("stats exit %d:\n%s", code, out)
	}
}

func TestSubmitWithoutSignerIsNotConnected(t *testing.T) {
	e := newEnv(t)
	path := e.file(t, "memo.txt", "memo")
	code, _, errOut := e.run(t, "submit", "--file", path, "--title", "Memo")
	if code != 1 || !strings.Contains(errOut, string(verify.KindNotConnected)) {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if n := len(e.backend.Sent()); n != 0 {
		t.Fatalf("sent %d transactions without a signer", n)
	}
}

func TestSubmitInvalidInputExitCode(t *testing.T) {
	e := newEnv(t)
	path := e.file(t, "memo.txt", "memo")
	code, _, errOut := e.run(t, "submit", "--file", path, "--title", "  ", "--seed-hex", testSeedHex)
	if code != 2 || !strings.Contains(errOut, string(verify.KindInvalidInput)) {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if code, _, _ := e.run(t, "submit", "--title", "No file"); code != 2 {
		t.Fatalf("missing --file exit = %d", code)
	}
	code, _, errOut = e.run(t, "submit", "--file", path, "--title", "Memo", "--seed-hex", testSeedHex,
		"--creator", "0x0000000000000000000000000000000000000001")
	if code != 2 || !strings.Contains(errOut, "creator") {
		t.Fatalf("creator mismatch exit %d: %s", code, errOut)
	}
	if n := len(e.backend.Sent()); n != 0 {
		t.Fatalf("sent %d transactions for invalid input", n)
	}
}

func TestSubmitFailureIsTracked(t *testing.T) {
	e := newEnv(t)
	e.backend.Revert = true
	path := e.file(t, "leak.pdf", "leaked document")
	code, _, errOut := e.run(t, "submit", "--file", path, "--title", "Leak", "--seed-hex", testSeedHex)
	if code != 1 || !strings.Contains(errOut, string(verify.KindSubmissionFailed)) {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	code, out, _ := e.run(t, "list", "--status", "failed", "--type", "document")
	if code != 0 || !strings.Contains(out, "Leak") {
		t.Fatalf("failed list exit %d:\n%s", code, out)
	}
}

func TestLookupErrors(t *testing.T) {
	e := newEnv(t)
	code, _, errOut := e.run(t, "lookup", "42")
	if code != 1 || !strings.Contains(errOut, string(verify.KindNotFound)) {
		t.Fatalf("unknown id exit %d: %s", code, errOut)
	}
	if code, _, _ := e.run(t, "lookup", "abc"); code != 2 {
		t.Fatalf("malformed id exit = %d", code)
	}
	if code, _, _ := e.run(t, "lookup"); code != 2 {
		t.Fatalf("missing id exit = %d", code)
	}
}

func TestLedgerNotConfigured(t *testing.T) {
	e := newEnv(t)
	bare := filepath.Join(e.dir, "bare.json")
	if err := os.WriteFile(bare, []byte(`{"log_level":"error"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := e.runWith(t, bare, "lookup", "1")
	if code != 1 || !strings.Contains(errOut, "rpc_url") {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	code, _, errOut = e.runWith(t, bare, "stats")
	if code != 2 || !strings.Contains(errOut, "no mirror") {
		t.Fatalf("stats without mirror exit %d: %s", code, errOut)
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	e.submit(t, e.file(t, "a.png", "a"), "A")
	code, out, errOut := e.run(t, "status")
	if code != 0 {
		t.Fatalf("status exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Chain ID:     "+ledgertest.DefaultChainID.String()) || !strings.Contains(out, "Block height: 1") {
		t.Fatalf("status output:\n%s", out)
	}
}

func TestListFilters(t *testing.T) {
	e := newEnv(t)
	e.submit(t, e.file(t, "flood.jpg", "flood"), "Flood at the harbour")
	e.submit(t, e.file(t, "vote.mp4", "vote"), "Vote count", "--content-type", "video/mp4")
	e.submit(t, e.file(t, "budget.pdf", "budget"), "Harbour budget")

	code, out, _ := e.run(t, "list", "--search", "HARBOUR")
	if code != 0 || !strings.Contains(out, "Flood at the harbour") || !strings.Contains(out, "Harbour budget") || strings.Contains(out, "Vote count") {
		t.Fatalf("search exit %d:\n%s", code, out)
	}
	code, out, _ = e.run(t, "list", "--type", "video")
	if code != 0 || !strings.Contains(out, "Vote count") || strings.Contains(out, "Flood") {
		t.Fatalf("type filter exit %d:\n%s", code, out)
	}
	if code, _, _ := e.run(t, "list", "--type", "audio"); code != 2 {
		t.Fatalf("bad --type exit = %d", code)
	}
	if code, _, _ := e.run(t, "list", "--status", "lost"); code != 2 {
		t.Fatalf("bad --status exit = %d", code)
	}
}

func TestMirrorExportImport(t *testing.T) {
	e := newEnv(t)
	rec := e.submit(t, e.file(t, "scene.jpg", "scene"), "Scene")

	bundlePath := filepath.Join(e.dir, "records.tar.zst")
	code, _, errOut := e.run(t, "mirror", "export", "--out", bundlePath, rec.VerificationID)
	if code != 0 {
		t.Fatalf("export exit %d: %s", code, errOut)
	}
	if code, _, _ := e.run(t, "mirror", "export", "--out", filepath.Join(e.dir, "x.tar"), "99"); code != 1 {
		t.Fatalf("export of unknown id exit = %d", code)
	}

	other := e.writeConfig(t, "other.json", filepath.Join(e.dir, "other", "index.db"))
	code, out, errOut := e.runWith(t, other, "mirror", "import", bundlePath)
	if code != 0 || !strings.Contains(out, "Imported 1 new records") {
		t.Fatalf("import exit %d: %s%s", code, out, errOut)
	}
	code, out, _ = e.runWith(t, other, "mirror", "import", bundlePath)
	if code != 0 || !strings.Contains(out, "Imported 0 new records") {
		t.Fatalf("reimport exit %d: %s", code, out)
	}
	code, out, errOut = e.runWith(t, other, "mirror", "show", rec.VerificationID)
	if code != 0 || !strings.Contains(out, rec.TxHash.Hex()) {
		t.Fatalf("show exit %d: %s%s", code, out, errOut)
	}
}

func TestKeyCommands(t *testing.T) {
	e := newEnv(t)
	code, out, errOut := e.run(t, "key", "init", "--name", "newsroom", "--seed-hex", testSeedHex)
	if code != 0 {
		t.Fatalf("key init exit %d: %s", code, errOut)
	}
	seed, _ := keys.ParseSeedHex(testSeedHex)
	rootAddr, _ := keys.AddressFromSeed(seed)
	if !strings.Contains(out, rootAddr.Hex()) {
		t.Fatalf("key init output:\n%s", out)
	}
	if code, _, _ := e.run(t, "key", "init", "--name", "newsroom"); code != 1 {
		t.Fatalf("second init without --force exit = %d", code)
	}
	if code, _, _ := e.run(t, "key", "derive", "--from", "newsroom", "--role", "field"); code != 0 {
		t.Fatalf("key derive exit %d", code)
	}

	code, out, _ = e.run(t, "key", "address", "--name", "newsroom")
	if code != 0 || strings.TrimSpace(out) != rootAddr.Hex() {
		t.Fatalf("key address = %q (exit %d)", out, code)
	}
	code, out, _ = e.run(t, "key", "export", "--name", "newsroom", "--role", "field")
	if code != 0 || !strings.HasPrefix(out, "0x04") {
		t.Fatalf("key export = %q (exit %d)", out, code)
	}
	code, out, _ = e.run(t, "key", "list")
	if code != 0 || !strings.Contains(out, "newsroom") || !strings.Contains(out, "- field") {
		t.Fatalf("key list exit %d:\n%s", code, out)
	}
	if code, _, _ := e.run(t, "key", "init", "--name", "../escape"); code != 2 {
		t.Fatalf("bad key name exit = %d", code)
	}

	path := e.file(t, "note.txt", "note")
	code, out, errOut = e.run(t, "submit", "--file", path, "--title", "Note", "--signer", "newsroom", "--signer-role", "field")
	if code != 0 || !strings.Contains(out, "Verification ID: 1") {
		t.Fatalf("submit with stored role key exit %d: %s%s", code, out, errOut)
	}
}

func TestCASCommands(t *testing.T) {
	e := newEnv(t)
	content := "raw footage"
	path := e.file(t, "raw.mov", content)
	store := filepath.Join(e.dir, "store")

	code, out, errOut := e.run(t, "cas", "put", "--backend", "localfs", "--localfs-dir", store, path)
	if code != 0 {
		t.Fatalf("cas put exit %d: %s", code, errOut)
	}
	id := strings.TrimSpace(out)
	if id != fingerprint.CIDOf([]byte(content)).String() {
		t.Fatalf("cas put = %s", id)
	}

	code, out, _ = e.run(t, "cas", "get", "--localfs-dir", store, "--cid", id)
	if code != 0 || out != content {
		t.Fatalf("cas get = %q (exit %d)", out, code)
	}
	if code, out, _ := e.run(t, "cas", "has", "--localfs-dir", store, "--cid", id); code != 0 || strings.TrimSpace(out) != "present" {
		t.Fatalf("cas has = %q (exit %d)", out, code)
	}
	other := fingerprint.CIDOf([]byte("other")).String()
	if code, _, _ := e.run(t, "cas", "has", "--localfs-dir", store, "--cid", other); code != 1 {
		t.Fatalf("cas has of missing object exit = %d", code)
	}
	if code, _, _ := e.run(t, "cas", "get", "--localfs-dir", store, "--cid", "not-a-cid"); code != 2 {
		t.Fatalf("cas get with bad cid exit = %d", code)
	}
	code, out, _ = e.run(t, "cas", "backends")
	if code != 0 || !strings.Contains(out, "localfs") || !strings.Contains(out, "grpc") {
		t.Fatalf("cas backends exit %d:\n%s", code, out)
	}
}
