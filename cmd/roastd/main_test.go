package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roast_monitor/internal/config"
	"roast_monitor/internal/export"
	"roast_monitor/internal/importer"
	"roast_monitor/internal/logger"
	"roast_monitor/internal/server"
)

const sampleJSON = `{"timex":[0,2,4,6],"temp1":[210,208,207,209],"temp2":[180,150,145,148],"computed":{"CHARGE_BT":180,"TP_time":4}}`

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execRoot(t, "--help")
	if err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, want := range []string{"roastd", "serve", "convert"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help output missing %q: %s", want, out)
		}
	}
}

func TestConvertJSONToCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "roast.json")
	out := filepath.Join(dir, "roast.csv")
	if err := os.WriteFile(in, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	stdout, err := execRoot(t, "convert", "--in", in, "--out", out)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(stdout, "4 samples, 2 events") {
		t.Fatalf("summary = %q", stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	res, err := importer.Parse("roast.csv", data)
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(res.Samples) != 4 || len(res.Events) != 2 {
		t.Fatalf("round trip lost data: %d samples, %d events", len(res.Samples), len(res.Events))
	}
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "roast.json")
	if err := os.WriteFile(in, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	if _, err := execRoot(t, "convert", "--in", in, "--out", filepath.Join(dir, "roast.pdf")); !errors.Is(err, export.ErrUnknownFormat) {
		t.Fatalf("unknown output format: %v", err)
	}
	if _, err := execRoot(t, "convert", "--in", filepath.Join(dir, "missing.json"), "--out", filepath.Join(dir, "x.csv")); err == nil {
		t.Fatalf("expected error for missing input")
	}

	bad := filepath.Join(dir, "roast.txt")
	_ = os.WriteFile(bad, []byte("hello"), 0o644)
	if _, err := execRoot(t, "convert", "--in", bad, "--out", filepath.Join(dir, "x.csv")); !errors.Is(err, importer.ErrUnsupportedFormat) {
		t.Fatalf("unsupported input: %v", err)
	}

	if _, err := execRoot(t, "convert", "--in", in); err == nil {
		t.Fatalf("expected error for missing --out")
	}
}

func TestServiceOptionsFromConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.Sampler.Interval = 2 * time.Second
	cfg.Sampler.Grace = 7 * time.Second
	cfg.Auth.SigningKey = "k"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Device.ETFallback = "last-known"

	opts := serviceOptions(cfg, newPublisher(cfg, logger.Nop()), logger.Nop())
	if opts.Monitor.SampleInterval != 2*time.Second || opts.Monitor.Grace != 7*time.Second {
		t.Fatalf("monitor options = %+v", opts.Monitor)
	}
	if opts.Auth.SigningKey != "k" || opts.Auth.TokenTTL != time.Hour {
		t.Fatalf("auth options = %+v", opts.Auth)
	}
	if opts.Monitor.Factory == nil || opts.Monitor.Publisher == nil {
		t.Fatalf("factory or publisher not wired")
	}
}

func TestWaitForShutdownOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitForShutdown(ctx, &server.Server{}, make(chan error), logger.Nop()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestWaitForShutdownReportsServerError(t *testing.T) {
	errc := make(chan error, 1)
	boom := errors.New("address in use")
	errc <- boom
	if err := waitForShutdown(context.Background(), &server.Server{}, errc, logger.Nop()); !errors.Is(err, boom) {
		t.Fatalf("expected server error, got %v", err)
	}
}
