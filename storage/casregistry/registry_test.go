package casregistry

import (
	"flag"
	"testing"

	"verinews.io/verify/storage"
)

func TestRegisterValidation(t *testing.T) {
	open := func(map[string]string) (storage.CAS, func() error, error) { return storage.NewMemory(), nil, nil }
	cases := []Backend{
		{Usage: UsageCLI, Open: open},
		{Name: "x-no-open", Usage: UsageCLI},
		{Name: "x-no-usage", Open: open},
		{Name: "x-bad-option", Usage: UsageCLI, Open: open, Options: []Option{{}}},
		{Name: "memory", Usage: UsageCLI, Open: open},
	}
	for _, b := range cases {
		if err := Register(b); err == nil {
			t.Fatalf("Register(%q) should fail", b.Name)
		}
	}
}

func TestFlagsFeedOpen(t *testing.T) {
	var got map[string]string
	MustRegister(Backend{
		Name:    "test-flags",
		Usage:   UsageDaemon,
		Options: []Option{{Key: "root_dir", Default: "/tmp/a"}, {Key: "pin", Default: "false"}},
		Open: func(s map[string]string) (storage.CAS, func() error, error) {
			got = s
			return storage.NewMemory(), nil, nil
		},
	})

	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	RegisterFlags(fs, UsageDaemon)
	if err := fs.Parse([]string{"-test-flags-root-dir", "/srv/cas"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := Open("test-flags", UsageDaemon); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got["root_dir"] != "/srv/cas" || got["pin"] != "false" {
		t.Fatalf("settings = %v", got)
	}

	if _, _, err := Open("test-flags", UsageCLI); err == nil {
		t.Fatalf("expected usage mismatch error")
	}
	if _, _, err := OpenWithConfig("nope", UsageCLI, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestNamesIncludesMemory(t *testing.T) {
	for _, n := range Names(UsageCLI) {
		if n == "memory" {
			return
		}
	}
	t.Fatalf("memory backend not registered: %v", Names(UsageCLI))
}
