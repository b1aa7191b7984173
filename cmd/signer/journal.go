package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"FactorSign/internal/factor"
	"FactorSign/internal/journal"
	"FactorSign/internal/logger"
	"FactorSign/internal/signable"
	"FactorSign/internal/types"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func batchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batches",
		Short: "List journaled batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(viper.GetString("data"))
			if err != nil {
				return err
			}
			defer store.Close()

			headers, err := journal.Batches(store)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Batch", "Created", "Signables", "Entries", "Manifest"})

			for _, h := range headers {
				entries, err := journal.Entries(store, h.ID)
				if err != nil {
					return err
				}

				tw.AppendRow(table.Row{
					h.ID,
					h.CreatedAt.Format(time.DateTime),
					h.Signables,
					len(entries),
					fmt.Sprintf("%x", h.ManifestDigest[:8]),
				})
			}

			tw.Render()

			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a journaled batch to a compressed file",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, out := viper.GetString("batch"), viper.GetString("out")
			if batch == "" || out == "" {
				return fmt.Errorf("--batch and --out are required")
			}

			store, err := openStore(viper.GetString("data"))
			if err != nil {
				return err
			}
			defer store.Close()

			blob, err := journal.Export(store, batch)
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, blob, 0o600); err != nil {
				return fmt.Errorf("write %s:\n%w", out, err)
			}

			logger.Info("batch exported", "batch", batch, "file", out, "bytes", len(blob))

			return nil
		},
	}

	cmd.Flags().String("batch", "", "batch id")
	cmd.Flags().String("out", "", "output file")

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a batch written by export",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			in := viper.GetString("in")
			if in == "" {
				return fmt.Errorf("--in is required")
			}

			blob, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s:\n%w", in, err)
			}

			store, err := openStore(viper.GetString("data"))
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := journal.Import(store, blob)
			if err != nil {
				return err
			}

			logger.Info("batch imported", "batch", h.ID, "signables", h.Signables)

			return nil
		},
	}

	cmd.Flags().String("in", "", "file written by export")

	return cmd
}

func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List the journal entries of a batch",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := viper.GetString("batch")
			if batch == "" {
				return fmt.Errorf("--batch is required")
			}

			filter, err := parseEntryFilter(viper.GetString("signable"), viper.GetString("source"))
			if err != nil {
				return err
			}

			store, err := openStore(viper.GetString("data"))
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := journal.ReadHeader(store, batch); err != nil {
				return err
			}

			entries, err := journal.Entries(store, batch)
			if err != nil {
				return err
			}

			renderEntries(os.Stdout, filter.apply(entries))

			return nil
		},
	}

	cmd.Flags().String("batch", "", "batch id")
	cmd.Flags().String("signable", "", "only entries for this signable (txid_...)")
	cmd.Flags().String("source", "", "only entries of this factor source (kind:hex)")

	return cmd
}

// entryFilter selects journal entries. Unset fields match everything.
type entryFilter struct {
	payload *[32]byte
	source  *factor.SourceID
}

func parseEntryFilter(payload, source string) (entryFilter, error) {
	var f entryFilter

	if payload != "" {
		h, err := signable.ParseIntentHash(payload)
		if err != nil {
			return f, fmt.Errorf("--signable:\n%w", err)
		}

		d := h.Digest()
		f.payload = &d
	}

	if source != "" {
		id, err := factor.ParseSourceID(source)
		if err != nil {
			return f, fmt.Errorf("--source:\n%w", err)
		}

		f.source = &id
	}

	return f, nil
}

func (f entryFilter) apply(entries []journal.Entry) []journal.Entry {
	var out []journal.Entry

	for _, e := range entries {
		if f.payload != nil && e.Payload != *f.payload {
			continue
		}

		if f.source != nil && e.Source() != *f.source {
			continue
		}

		out = append(out, e)
	}

	return out
}

// renderEntries prints one row per entry.
func renderEntries(w io.Writer, entries []journal.Entry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Kind", "Signable", "Source", "Owner", "Detail"})

	for _, e := range entries {
		row := table.Row{e.Kind.String(), signable.IntentHash(e.Payload).String(), e.Source().Hex()}

		if e.Kind == types.EntryKindNeglect {
			row = append(row, "", e.Neglect.Reason.String())
		} else {
			row = append(row, string(e.Owned.Owner), e.Signature.String())
		}

		tw.AppendRow(row)
	}

	tw.AppendFooter(table.Row{len(entries)})
	tw.Render()
}
