package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

const validExperiments = `[
  {"id": "root", "name": "tune", "version": 1, "refers": {"root_id": "root"}},
  {"id": "v2", "name": "tune", "version": 2,
   "refers": {"root_id": "root", "parent_id": "root",
              "adapter": [{"kind": "dimension_renaming", "old_name": "lr", "new_name": "learning_rate"}]}}
]`

const corruptExperiments = `[
  {"id": "v2", "name": "tune", "version": 2,
   "refers": {"root_id": "root", "parent_id": "ghost"}}
]`

func writeFixture(t *testing.T, name, content string) {
	t.Helper()
	t.Chdir(t.TempDir())
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func TestCLIValidLineage(t *testing.T) {
	writeFixture(t, "experiments.json", validExperiments)
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Lineage validation passed.") {
		t.Fatalf("unexpected output: %s", stdout.String())
	}
}

func TestCLICorruptLineage(t *testing.T) {
	writeFixture(t, "experiments.json", corruptExperiments)
	var stdout, stderr bytes.Buffer
	if code := cli(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "violation") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestCLIJSONOutput(t *testing.T) {
	writeFixture(t, "experiments.json", corruptExperiments)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-json"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	payload := stderr.String()
	start := strings.Index(payload, "[")
	end := strings.LastIndex(payload, "]")
	if start < 0 || end < start {
		t.Fatalf("no json array in stderr: %s", payload)
	}
	var violations []map[string]any
	if err := json.Unmarshal([]byte(payload[start:end+1]), &violations); err != nil {
		t.Fatalf("decode violations: %v", err)
	}
	if len(violations) == 0 {
		t.Fatalf("expected at least one violation")
	}
}

func TestCLIMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-experiments", "nope.json"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
}

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected usage failure, got %d", code)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := os.WriteFile("empty.json", []byte("[]"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run("empty.json"); err == nil {
		t.Fatalf("empty input must fail")
	}

	if err := os.WriteFile("noid.json", []byte(`[{"name": "x"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run("noid.json"); err == nil || !strings.Contains(err.Error(), "missing id") {
		t.Fatalf("missing id must fail, got %v", err)
	}

	if err := os.WriteFile("dup.json", []byte(`[{"id": "a"}, {"id": "a"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run("dup.json"); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("duplicate id must fail, got %v", err)
	}
}

func TestValidatePath(t *testing.T) {
	if _, err := validatePath(""); err == nil {
		t.Fatalf("empty path must fail")
	}
	if _, err := validatePath("/etc/passwd"); err == nil {
		t.Fatalf("absolute path must fail")
	}
	if _, err := validatePath("../escape.json"); err == nil {
		t.Fatalf("traversal must fail")
	}
	clean, err := validatePath("./fixtures/experiments.json")
	if err != nil {
		t.Fatalf("relative path should pass: %v", err)
	}
	if clean != "fixtures/experiments.json" {
		t.Fatalf("unexpected clean path %s", clean)
	}
}
