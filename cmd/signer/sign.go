package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"FactorSign/internal/api"
	"FactorSign/internal/collector"
	"FactorSign/internal/journal"
	"FactorSign/internal/keyring"
	"FactorSign/internal/logger"
	"FactorSign/internal/signable"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Collect signatures for every signable of a manifest",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runSign(ctx, loadConfig())
		},
	}

	cmd.Flags().String("manifest", "", "batch manifest (YAML)")
	cmd.Flags().String("batch", "", "resume the journaled batch with this id")
	cmd.Flags().String("http", "", "serve progress on this address")
	cmd.Flags().Duration("linger", 5*time.Second, "keep serving the final status this long after the run")
	cmd.Flags().StringSlice("skip", nil, "manifest sources to skip")
	cmd.Flags().StringSlice("poly", []string{"device"}, "kinds signed in one session")
	cmd.Flags().Bool("verify", true, "verify every returned signature")
	cmd.Flags().Bool("continue-when-valid", false, "keep collecting once every signable is authorized")
	cmd.Flags().Bool("stop-on-invalid", false, "stop as soon as one signable fails")

	return cmd
}

// runSign runs one batch to termination.
func runSign(ctx context.Context, cfg *Config) error {
	m, batch, err := loadBatch(cfg.ManifestPath, cfg.Skip)
	if err != nil {
		return err
	}

	poly, err := cfg.polyKinds()
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	id := cfg.BatchID
	if id == "" {
		id = uuid.NewString()
	}

	j, err := journal.Open[signable.IntentHash](store, journal.Header{
		ID:             id,
		CreatedAt:      time.Now().UTC(),
		ManifestDigest: m.Digest(),
		Signables:      len(batch.Requests),
	})
	if err != nil {
		return fmt.Errorf("open journal:\n%w", err)
	}

	petitions, err := batch.Petitions()
	if err != nil {
		return err
	}

	if _, err := journal.Replay(store, id, petitions); err != nil {
		return fmt.Errorf("replay journal:\n%w", err)
	}

	tracker := api.NewTracker[signable.IntentHash](id, len(petitions))

	var server *api.Server

	if cfg.HTTPAddress != "" {
		server = api.New(cfg.HTTPAddress, tracker)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
	}

	opts := append(cfg.options(),
		collector.WithObserver[signable.IntentHash](j),
		collector.WithObserver[signable.IntentHash](tracker),
	)

	c, err := collector.New(petitions, keyring.Interactors[signable.IntentHash](batch.Ring, poly...), opts...)
	if err != nil {
		return err
	}

	logger.Info("signing batch",
		"batch", id,
		"signables", len(petitions),
		"sources", c.Sources(),
		"keyring", batch.Ring.Len(),
		"skipped", len(cfg.Skip),
	)

	out := c.Collect(ctx)

	tracker.Finish(out)

	if err := j.Err(); err != nil {
		logger.Warn("journal incomplete", "batch", id, "error", err)
	}

	renderOutcome(os.Stdout, batch, out)

	fmt.Printf("batch %s: %s after %d rounds\n", id, out.Termination, out.Rounds)

	if out.Termination == collector.TerminationCancelled {
		fmt.Printf("resume with: signer sign --manifest %s --batch %s\n", cfg.ManifestPath, id)
	}

	if server != nil {
		if err := server.Linger(ctx, cfg.Linger); err != nil {
			logger.Warn("http api shutdown", "error", err)
		}
	}

	return nil
}
