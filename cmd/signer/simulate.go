package main

import (
	"fmt"
	"os"
	"strings"

	"FactorSign/internal/factor"
	"FactorSign/internal/manifest"
	"FactorSign/internal/petition"
	"FactorSign/internal/signable"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Show which signables become invalid if a factor source is skipped",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, batch, err := loadBatch(viper.GetString("manifest"), nil)
			if err != nil {
				return err
			}

			petitions, err := batch.Petitions()
			if err != nil {
				return err
			}

			rows, err := simulate(m, batch, petitions, viper.GetStringSlice("skip"))
			if err != nil {
				return err
			}

			renderSimulation(os.Stdout, rows)

			return nil
		},
	}

	cmd.Flags().String("manifest", "", "batch manifest (YAML)")
	cmd.Flags().StringSlice("skip", nil, "also simulate skipping these sources together")

	return cmd
}

// simulate computes one row per manifest source, plus one for the skip set.
func simulate(m *manifest.Manifest, batch *manifest.Batch, petitions []*petition.ForTransaction[signable.IntentHash], skip []string) ([]simulationRow, error) {
	rows := make([]simulationRow, 0, len(m.Sources)+1)

	for _, s := range m.Sources {
		src, _ := batch.Source(s.Name)
		rows = append(rows, simulateSet(s.Name, s.Kind.String(), petitions, src.ID()))
	}

	if len(skip) == 0 {
		return rows, nil
	}

	ids := make([]factor.SourceID, 0, len(skip))

	for _, name := range skip {
		src, ok := batch.Source(name)
		if !ok {
			return nil, fmt.Errorf("--skip %s: %w", name, manifest.ErrUnknownSource)
		}

		ids = append(ids, src.ID())
	}

	return append(rows, simulateSet(strings.Join(skip, "+"), "", petitions, ids...)), nil
}

func simulateSet(name, kind string, petitions []*petition.ForTransaction[signable.IntentHash], ids ...factor.SourceID) simulationRow {
	row := simulationRow{name: name, kind: kind}

	set := make(map[factor.SourceID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	for _, p := range petitions {
		referenced := false
		for _, id := range ids {
			referenced = referenced || p.References(id)
		}

		if !referenced {
			continue
		}

		row.signables++

		if lost := p.InvalidIfNeglected(set); len(lost) > 0 {
			names := make([]string, len(lost))
			for i, addr := range lost {
				names[i] = string(addr)
			}

			row.invalid = append(row.invalid, fmt.Sprintf("%s (%s)", p.Payload(), strings.Join(names, ", ")))
		}
	}

	return row
}
