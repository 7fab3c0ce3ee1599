package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/bucketsync/internal/catalog"
	"github.com/openmined/bucketsync/internal/diff"
	"github.com/openmined/bucketsync/internal/hierarchy"
	"github.com/openmined/bucketsync/internal/syncer"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q: use text, json or yaml", format)
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

// printSummary prints the single completion notice of an operation.
func printSummary(w io.Writer, title string, sum *syncer.Summary) {
	if sum == nil {
		return
	}
	if sum.Failed == 0 {
		fmt.Fprintf(w, "%s %s\n", green(title+" complete:"), sum.String())
		return
	}
	fmt.Fprintf(w, "%s %s\n", red(title+" finished with errors:"), sum.String())
	for _, e := range sum.Errors {
		fmt.Fprintf(w, "  %s %s: %v\n", red("✗"), e.Path, e.Err)
	}
}

func printDiff(w io.Writer, r *catalog.Repository, result diff.Result) {
	fmt.Fprintf(w, "%s %s %s\n", cyan(r.FriendlyName), gray(r.ID), gray("("+string(r.State)+")"))
	if result.IsEmpty() {
		fmt.Fprintln(w, green("up to date"))
		return
	}

	section := func(title, mark string, colorize func(a ...interface{}) string, entries []string) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d)\n", title, len(entries))
		for _, e := range entries {
			fmt.Fprintf(w, "  %s %s\n", colorize(mark), e)
		}
	}
	section("New", "+", green, result.NewFiles)
	section("Modified", "~", cyan, result.ModifiedFiles)
	section("Deleted", "-", red, result.DeletedFiles)
}

func printTree(w io.Writer, root *hierarchy.Node) {
	_ = hierarchy.Walk(root, func(n *hierarchy.Node, depth int) error {
		name := n.Name
		if n.IsFolder() {
			name = cyan(name + "/")
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
		return nil
	})
}
