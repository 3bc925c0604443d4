// Package report renders completed cross-validation runs as Markdown, HTML
// and console text.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gosurv/domain/run"
)

// FeatureCount is how many folds selected a design column
type FeatureCount struct {
	Name  string
	Folds int
}

// SelectionTable orders the run's selected columns by fold count, then name
func SelectionTable(r *run.Run) []FeatureCount {
	freq := r.SelectionFrequency()
	out := make([]FeatureCount, 0, len(freq))
	for name, n := range freq {
		out = append(out, FeatureCount{Name: name, Folds: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Folds != out[j].Folds {
			return out[i].Folds > out[j].Folds
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Markdown renders the run report
func Markdown(r *run.Run) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# Cross-validation run %s\n\n", r.ID)
	fmt.Fprintf(&b, "- Dataset: %s (%d subjects, %d events)\n", r.DatasetName, r.Subjects, r.Events)
	fmt.Fprintf(&b, "- Folds: %d, seed %d, fingerprint %s\n", len(r.Folds), r.Seed, r.Fingerprint.Short())
	fmt.Fprintf(&b, "- Started: %s, took %s\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"), r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "- **Mean C-index: %.4f ± %.4f**\n\n", r.Summary.Mean, r.Summary.StdDev)

	b.WriteString("## Folds\n\n")
	b.WriteString("| Fold | Train | Test | Test events | Design columns | Selected | Retries | C-index |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, f := range r.Folds {
		fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d | %d | %.4f |\n",
			f.Fold+1, f.TrainSize, f.TestSize, f.TestEvents, f.DesignColumns, len(f.Selected), f.Retries, f.CIndex)
	}
	b.WriteString("\n")

	b.WriteString("## Selected features\n\n")
	features := SelectionTable(r)
	if len(features) == 0 {
		b.WriteString("No feature was selected.\n\n")
	} else {
		b.WriteString("| Feature | Folds selected |\n")
		b.WriteString("|---|---:|\n")
		for _, fc := range features {
			fmt.Fprintf(&b, "| `%s` | %d/%d |\n", fc.Name, fc.Folds, len(r.Folds))
		}
		b.WriteString("\n")
	}

	if transformed := logTransformed(r); len(transformed) > 0 {
		fmt.Fprintf(&b, "Log-transformed in at least one fold: %s\n\n", strings.Join(transformed, ", "))
	}

	if len(r.Config) > 0 {
		b.WriteString("## Configuration\n\n```json\n")
		b.Write(r.Config)
		b.WriteString("\n```\n")
	}
	return b.Bytes()
}

// HTML renders the Markdown report as a standalone page
func HTML(r *run.Run) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: fmt.Sprintf("Cross-validation run %s", r.ID),
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(Markdown(r), p, renderer)
}

// Console writes the per-fold scores and the summary line
func Console(w io.Writer, r *run.Run) {
	for _, f := range r.Folds {
		fmt.Fprintf(w, "Fold %d C-index = %.4f\n", f.Fold+1, f.CIndex)
	}
	fmt.Fprintf(w, "Mean C-index over %d folds: %.4f ± %.4f\n", len(r.Folds), r.Summary.Mean, r.Summary.StdDev)
	if features := SelectionTable(r); len(features) > 0 {
		top := features
		if len(top) > 10 {
			top = top[:10]
		}
		parts := make([]string, len(top))
		for i, fc := range top {
			parts[i] = fmt.Sprintf("%s (%d)", fc.Name, fc.Folds)
		}
		fmt.Fprintf(w, "Most selected: %s\n", strings.Join(parts, ", "))
	}
}

func logTransformed(r *run.Run) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range r.Folds {
		for _, name := range f.LogTransformed {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out
}
