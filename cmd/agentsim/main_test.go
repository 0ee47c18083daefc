package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/agentsim/internal/persistence"
	"github.com/talgya/agentsim/internal/persistence/serieslog"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "agentsim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func seriesFile(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("series files = %v, want exactly one", matches)
	}
	return matches[0]
}

func TestLifeCommand(t *testing.T) {
	dir := t.TempDir()
	series := filepath.Join(dir, "runs")
	dbPath := filepath.Join(dir, "agentsim.db")

	out, err := execute(t, "life", "--ticks", "5", "--seed", "3", "--pattern", "blinker",
		"--series", series, "--db", dbPath)
	if err != nil {
		t.Fatalf("life: %v", err)
	}
	if !strings.Contains(out, "stopped at tick 5 with 3 live cells") {
		t.Errorf("output = %q", out)
	}

	h, recs, err := serieslog.Read(seriesFile(t, series))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Scenario != "life" || h.Seed != 3 {
		t.Errorf("header = %+v", h)
	}
	if len(recs) != 5 {
		t.Fatalf("records = %d, want 5", len(recs))
	}
	if v := recs[4].Values["population/live"]; v != 3 {
		t.Errorf("population/live = %g, want 3", v)
	}

	db, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	rec, err := db.GetRun(h.Run)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Ticks != 5 || !rec.FinishedAt.Valid {
		t.Errorf("run = %+v, want 5 ticks and finished", rec)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "life", "--ticks", "50", "--seed", "1", "--pattern", "blinker",
		"--series", "", "--config", writeFile(t, dir, "life:\n  pattern: block\n"))
	if err != nil {
		t.Fatalf("life: %v", err)
	}
	// The flag wins over the file.
	if !strings.Contains(out, "life (blinker) stopped at tick 50") {
		t.Errorf("output = %q", out)
	}
}

func TestTicksRequiredWithoutServe(t *testing.T) {
	if _, err := execute(t, "life", "--ticks", "0", "--series", ""); err == nil {
		t.Fatal("want error for --ticks 0 without --serve")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "life:\n  cell_size: -1\n")
	if _, err := execute(t, "life", "--ticks", "1", "--series", "", "--config", path); err == nil {
		t.Fatal("want error for negative cell size")
	}
}

func TestMarketCommandPersistsPolicies(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "agentsim.db")

	out, err := execute(t, "market", "--ticks", "30", "--seed", "5", "--series", "", "--db", dbPath)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	for _, name := range []string{"england", "portugal", "total wealth"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %q: %s", name, out)
		}
	}

	db, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, id := range []string{"trader-england", "trader-portugal"} {
		if _, err := db.LoadSnapshot(id); err != nil {
			t.Errorf("LoadSnapshot(%s): %v", id, err)
		}
	}
	last, err := db.GetMeta("last_tick")
	if err != nil || last != "30" {
		t.Errorf("last_tick = %q, %v; want 30", last, err)
	}

	// A second run starts from the saved policies.
	if _, err := execute(t, "market", "--ticks", "5", "--seed", "6", "--series", "", "--db", dbPath); err != nil {
		t.Fatalf("second market run: %v", err)
	}
}

func TestInspectCommand(t *testing.T) {
	series := filepath.Join(t.TempDir(), "runs")
	if _, err := execute(t, "life", "--ticks", "4", "--seed", "2", "--pattern", "block", "--series", series); err != nil {
		t.Fatalf("life: %v", err)
	}
	path := seriesFile(t, series)

	out, err := execute(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"scenario: life", "ticks:    4", "population/live"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "inspect", path, "--key", "population/live", "--json")
	if err != nil {
		t.Fatalf("inspect --key: %v", err)
	}
	var got struct {
		Key    string       `json:"key"`
		Points [][2]float64 `json:"points"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Points) != 4 || got.Points[3][1] != 4 {
		t.Errorf("points = %v, want 4 ticks of 4 live cells", got.Points)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output = %q", out)
	}
}
