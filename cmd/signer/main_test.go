package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FactorSign/client"
	"FactorSign/internal/api"
	"FactorSign/internal/journal"
	"FactorSign/internal/manifest"
	"FactorSign/internal/signable"
	"FactorSign/internal/storage"
)

const testManifest = `
sources:
  - name: phone
    kind: device
    seed: "phone seed material 0001"
  - name: nano
    kind: ledger
    seed: "ledger seed material 0002"
  - name: pass
    kind: password
    seed: "password seed material 3"

entities:
  - address: acc_plain
    unsecurified:
      source: pass
  - address: acc_shield
    primary:
      threshold: 1
      threshold_factors:
        - source: phone
        - source: nano

signables:
  - payload: "transfer"
    signers: [acc_plain]
  - payload: "metadata"
    signers: [acc_shield]
`

// writeManifest writes testManifest to a temporary file.
func writeManifest(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "batch.yml")
	if err := os.WriteFile(path, []byte(testManifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	return path
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		DataPath:     filepath.Join(t.TempDir(), "data"),
		ManifestPath: writeManifest(t),
		BatchID:      "batch-1",
		Poly:         []string{"device"},
		Verify:       true,
	}
}

func readJournal(t *testing.T, cfg *Config) (journal.Header, []journal.Entry) {
	t.Helper()

	store, err := storage.Open(cfg.DataPath, storage.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	h, err := journal.ReadHeader(store, cfg.BatchID)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}

	entries, err := journal.Entries(store, cfg.BatchID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	return h, entries
}

// TestRunSign tests a full run is journaled.
func TestRunSign(t *testing.T) {
	cfg := testConfig(t)

	if err := runSign(context.Background(), cfg); err != nil {
		t.Fatalf("sign: %v", err)
	}

	h, entries := readJournal(t, cfg)

	if h.Signables != 2 {
		t.Fatalf("expected 2 signables, got %d", h.Signables)
	}

	// one signature each: pass for transfer, nano for metadata
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

// TestRunSignResume tests that a cancelled batch resumes under the same id.
func TestRunSignResume(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runSign(ctx, cfg); err != nil {
		t.Fatalf("cancelled sign: %v", err)
	}

	if _, entries := readJournal(t, cfg); len(entries) != 0 {
		t.Fatalf("cancelled run should not journal entries, got %d", len(entries))
	}

	cfg.Skip = []string{"nano"}

	if err := runSign(context.Background(), cfg); err != nil {
		t.Fatalf("resumed sign: %v", err)
	}

	// pass signs, nano is skipped, phone signs
	if _, entries := readJournal(t, cfg); len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestRunSignRejects(t *testing.T) {
	cfg := testConfig(t)
	cfg.Skip = []string{"floppy"}

	if err := runSign(context.Background(), cfg); !errors.Is(err, manifest.ErrUnknownSource) {
		t.Fatalf("got %v, want ErrUnknownSource", err)
	}

	cfg = testConfig(t)
	cfg.Poly = []string{"floppy"}

	if err := runSign(context.Background(), cfg); err == nil {
		t.Fatal("unknown poly kind should fail")
	}

	cfg = testConfig(t)
	cfg.ManifestPath = ""

	if err := runSign(context.Background(), cfg); err == nil {
		t.Fatal("missing manifest should fail")
	}
}

// TestSimulate tests the per-source skip report.
func TestSimulate(t *testing.T) {
	m, batch, err := loadBatch(writeManifest(t), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	petitions, err := batch.Petitions()
	if err != nil {
		t.Fatalf("petitions: %v", err)
	}

	rows, err := simulate(m, batch, petitions, []string{"phone", "nano"})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	byName := make(map[string]simulationRow, len(rows))
	for _, r := range rows {
		byName[r.name] = r
	}

	// a 1-of-2 threshold survives losing one factor
	if r := byName["phone"]; r.signables != 1 || len(r.invalid) != 0 {
		t.Errorf("phone: %+v", r)
	}

	if r := byName["pass"]; r.signables != 1 || len(r.invalid) != 1 {
		t.Errorf("pass: %+v", r)
	}

	if r := byName["phone+nano"]; r.signables != 1 || len(r.invalid) != 1 {
		t.Errorf("phone+nano: %+v", r)
	}

	if _, err := simulate(m, batch, petitions, []string{"floppy"}); err == nil {
		t.Fatal("unknown skip should fail")
	}
}

// TestRunSignServesFinalStatus tests that a watcher polling after the run
// ended still reads the final status.
func TestRunSignServesFinalStatus(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t)
	cfg.HTTPAddress = addr
	cfg.Linger = 3 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runSign(ctx, cfg) }()

	c := client.NewClient(addr)

	var last api.Status
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline) && !last.Done; {
		if s, err := c.Progress(ctx); err == nil {
			last = s
		}

		time.Sleep(20 * time.Millisecond)
	}

	if !last.Done || last.Termination != "completed" || last.Succeeded != 2 {
		t.Fatalf("unexpected final status: %+v", last)
	}

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("sign: %v", err)
	}
}

// TestEntryFilter tests selecting journal entries by signable and source id.
func TestEntryFilter(t *testing.T) {
	cfg := testConfig(t)

	if err := runSign(context.Background(), cfg); err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, entries := readJournal(t, cfg)
	first := entries[0]

	f, err := parseEntryFilter(signable.IntentHash(first.Payload).String(), "")
	if err != nil {
		t.Fatalf("parse signable: %v", err)
	}

	if got := f.apply(entries); len(got) != 1 || got[0].Payload != first.Payload {
		t.Fatalf("by signable: got %d entries", len(got))
	}

	f, err = parseEntryFilter("", first.Source().Hex())
	if err != nil {
		t.Fatalf("parse source: %v", err)
	}

	if got := f.apply(entries); len(got) != 1 || got[0].Source() != first.Source() {
		t.Fatalf("by source: got %d entries", len(got))
	}

	if got := (entryFilter{}).apply(entries); len(got) != len(entries) {
		t.Fatalf("empty filter: got %d, want %d", len(got), len(entries))
	}

	var buf bytes.Buffer
	renderEntries(&buf, entries)

	if !strings.Contains(buf.String(), first.Source().Hex()) {
		t.Errorf("table should list the full source id:\n%s", buf.String())
	}

	for _, bad := range [][2]string{{"tx_00", ""}, {"", "device:zz"}, {"", "floppy:00"}} {
		if _, err := parseEntryFilter(bad[0], bad[1]); err == nil {
			t.Errorf("filter %q should be rejected", bad)
		}
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := &Config{Verify: true, StopOnInvalid: true}

	if got := len(cfg.options()); got != 2 {
		t.Fatalf("expected 2 options, got %d", got)
	}

	kinds, err := (&Config{Poly: []string{"device", "ledger"}}).polyKinds()
	if err != nil || len(kinds) != 2 {
		t.Fatalf("poly kinds: %v %v", kinds, err)
	}
}
