package casconfig

import (
	"os"
	"path/filepath"
	"testing"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
	_ "verinews.io/verify/storage/localfs"
)

func TestLoadFileYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "cas.yaml")
	if err := os.WriteFile(yml, []byte("write_policy: all\nbackends:\n  - name: memory\n  - name: localfs\n    id: disk\n    config: {dir: "+dir+"}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(yml)
	if err != nil {
		t.Fatalf("LoadFile(yaml): %v", err)
	}
	if cfg.WritePolicy != WriteAll || len(cfg.Backends) != 2 || cfg.Backends[1].Config["dir"] != dir {
		t.Fatalf("unexpected config %+v", cfg)
	}

	js := filepath.Join(dir, "cas.json")
	if err := os.WriteFile(js, []byte(`{"backends":[{"name":"memory"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(js); err != nil {
		t.Fatalf("LoadFile(json): %v", err)
	}
}

func TestValidate(t *testing.T) {
	bad := []Config{
		{},
		{Backends: []BackendConfig{{}}},
		{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}},
		{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestOpenPolicies(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Backends: []BackendConfig{
		{Name: "memory"},
		{Name: "localfs", ID: "disk", Config: map[string]string{"dir": dir}},
	}}

	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "disk")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	multi, ok := cas.(storage.MultiCAS)
	if !ok {
		t.Fatalf("first policy should yield MultiCAS, got %T", cas)
	}
	id, err := multi.Put([]byte("record"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !multi.Adapters[0].Has(id) || multi.Adapters[1].Has(id) {
		t.Fatalf("preferred backend should receive the write")
	}

	cfg.WritePolicy = WriteAll
	cas, closeAll, err := cfg.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open(all): %v", err)
	}
	defer closeAll()
	if _, ok := cas.(storage.ReplicatingCAS); !ok {
		t.Fatalf("all policy should yield ReplicatingCAS, got %T", cas)
	}

	if _, _, err := cfg.Open(casregistry.UsageCLI, "missing"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}
