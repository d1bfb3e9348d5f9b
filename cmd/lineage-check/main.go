// Command lineage-check validates experiment version documents offline: it
// loads a JSON array of experiment versions and verifies lineage structure
// and adapter chains without touching a live store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"searchcore/internal/core"
	"searchcore/internal/infra/persistence/memory"
	"searchcore/pkg/domain"
)

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lineage-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var experimentsPath string
	var asJSON bool
	fs.StringVar(&experimentsPath, "experiments", "experiments.json", "path to experiment versions json")
	fs.BoolVar(&asJSON, "json", false, "emit violations as json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	violations, err := run(experimentsPath)
	if err != nil {
		fmt.Fprintf(stderr, "Lineage validation failed: %v\n", err)
		return 1
	}
	if len(violations) > 0 {
		if asJSON {
			enc := json.NewEncoder(stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(violations)
		} else {
			for _, v := range violations {
				fmt.Fprintf(stderr, "%s: %s\n", v.Rule, v.Message)
			}
		}
		fmt.Fprintf(stderr, "Lineage validation failed: %d violation(s).\n", len(violations))
		return 1
	}
	fmt.Fprintln(stdout, "Lineage validation passed.")
	return 0
}

// validatePath keeps the input inside the working tree; absolute paths and
// traversal are rejected.
func validatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	clean := filepath.Clean(p)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path traversal not allowed: %s", p)
	}
	return clean, nil
}

// run loads the experiment versions and evaluates the lineage integrity rule
// over them, returning any violations.
func run(experimentsPath string) ([]domain.Violation, error) {
	safePath, err := validatePath(experimentsPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(safePath) // #nosec G304: path validated by validatePath
	if err != nil {
		return nil, fmt.Errorf("read experiments: %w", err)
	}

	var experiments []domain.ExperimentVersion
	if err := json.Unmarshal(data, &experiments); err != nil {
		return nil, fmt.Errorf("parse experiments: %w", err)
	}
	if len(experiments) == 0 {
		return nil, errors.New("no experiment versions in input")
	}

	snapshot := memory.Snapshot{Experiments: make(map[string]domain.ExperimentVersion, len(experiments))}
	for i, exp := range experiments {
		if exp.ID == "" {
			return nil, fmt.Errorf("experiments[%d]: missing id", i)
		}
		if _, dup := snapshot.Experiments[exp.ID]; dup {
			return nil, fmt.Errorf("experiments[%d]: duplicate id %s", i, exp.ID)
		}
		snapshot.Experiments[exp.ID] = exp
	}

	store := memory.NewStore(domain.NewRulesEngine())
	store.ImportState(snapshot)

	var violations []domain.Violation
	err = store.View(context.Background(), func(view domain.TransactionView) error {
		ruleView, ok := view.(domain.RuleView)
		if !ok {
			return errors.New("store view does not support rule evaluation")
		}
		res, err := core.LineageIntegrityRule().Evaluate(context.Background(), ruleView, nil)
		if err != nil {
			return err
		}
		violations = res.Violations
		return nil
	})
	if err != nil {
		return nil, err
	}
	return violations, nil
}
