package main

import (
	"io"
	"strings"

	"FactorSign/internal/collector"
	"FactorSign/internal/manifest"
	"FactorSign/internal/signable"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderOutcome prints one row per signable.
func renderOutcome(w io.Writer, batch *manifest.Batch, out *collector.Outcome[signable.IntentHash]) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Signable", "Verdict", "Signatures", "Neglected", "Failed entities"})

	for _, s := range out.Signables {
		neglected := make([]string, 0, len(s.Neglected))
		for _, n := range s.Neglected {
			neglected = append(neglected, batch.Name(n.Source())+" ("+n.Reason.String()+")")
		}

		failed := make([]string, 0, len(s.FailedEntities))
		for _, addr := range s.FailedEntities {
			failed = append(failed, string(addr))
		}

		tw.AppendRow(table.Row{
			s.Payload.String(),
			s.Verdict.String(),
			len(s.Signatures),
			strings.Join(neglected, ", "),
			strings.Join(failed, ", "),
		})
	}

	tw.AppendFooter(table.Row{"", out.Termination.String(), len(out.AllSignatures()), len(out.Neglected), ""})
	tw.Render()
}

// renderSimulation prints, per factor source, the signables lost if it is skipped.
func renderSimulation(w io.Writer, rows []simulationRow) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Source", "Kind", "Signables", "Invalid if skipped"})

	for _, r := range rows {
		tw.AppendRow(table.Row{r.name, r.kind, r.signables, strings.Join(r.invalid, "\n")})
	}

	tw.Render()
}

// simulationRow is the effect of skipping one factor source.
type simulationRow struct {
	name      string
	kind      string
	signables int
	invalid   []string
}
