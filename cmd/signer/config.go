package main

import (
	"fmt"
	"time"

	"FactorSign/internal/collector"
	"FactorSign/internal/factor"
	"FactorSign/internal/manifest"
	"FactorSign/internal/signable"
	"FactorSign/internal/storage"

	"github.com/spf13/viper"
)

// Config holds the settings of a sign run.
type Config struct {
	// DataPath is the directory of the journal store.
	DataPath string

	// ManifestPath is the batch manifest.
	ManifestPath string

	// BatchID resumes a journaled batch. Empty starts a new one.
	BatchID string

	// HTTPAddress serves progress when set.
	HTTPAddress string

	// Linger keeps the progress server up after the run so watchers see the result.
	Linger time.Duration

	// Skip names the manifest sources the user declines to use.
	Skip []string

	// Poly lists the kinds signed in one session for all their sources.
	Poly []string

	// Verify checks every returned signature.
	Verify bool

	// ContinueWhenValid keeps collecting after every signable is authorized.
	ContinueWhenValid bool

	// StopOnInvalid stops as soon as one signable fails.
	StopOnInvalid bool
}

// loadConfig reads the sign settings from viper.
func loadConfig() *Config {
	return &Config{
		DataPath:          viper.GetString("data"),
		ManifestPath:      viper.GetString("manifest"),
		BatchID:           viper.GetString("batch"),
		HTTPAddress:       viper.GetString("http"),
		Linger:            viper.GetDuration("linger"),
		Skip:              viper.GetStringSlice("skip"),
		Poly:              viper.GetStringSlice("poly"),
		Verify:            viper.GetBool("verify"),
		ContinueWhenValid: viper.GetBool("continue-when-valid"),
		StopOnInvalid:     viper.GetBool("stop-on-invalid"),
	}
}

// polyKinds parses the poly kind names.
func (c *Config) polyKinds() ([]factor.Kind, error) {
	kinds := make([]factor.Kind, 0, len(c.Poly))

	for _, name := range c.Poly {
		k, err := factor.ParseKind(name)
		if err != nil {
			return nil, err
		}

		kinds = append(kinds, k)
	}

	return kinds, nil
}

// options returns the collector options of the run.
func (c *Config) options() []collector.Option[signable.IntentHash] {
	var opts []collector.Option[signable.IntentHash]

	if c.Verify {
		opts = append(opts, collector.WithSignatureVerification[signable.IntentHash]())
	}

	allValid := collector.AllValidFinish
	if c.ContinueWhenValid {
		allValid = collector.AllValidContinue
	}

	someInvalid := collector.SomeInvalidContinue
	if c.StopOnInvalid {
		someInvalid = collector.SomeInvalidFinish
	}

	return append(opts, collector.WithFinishEarly[signable.IntentHash](allValid, someInvalid))
}

// loadBatch reads the manifest and marks skipped sources.
func loadBatch(path string, skip []string) (*manifest.Manifest, *manifest.Batch, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("--manifest is required")
	}

	m, err := manifest.Load(path)
	if err != nil {
		return nil, nil, err
	}

	b, err := m.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build manifest:\n%w", err)
	}

	for _, name := range skip {
		src, ok := b.Source(name)
		if !ok {
			return nil, nil, fmt.Errorf("--skip %s: %w", name, manifest.ErrUnknownSource)
		}

		b.Ring.Skip(src.ID())
	}

	return m, b, nil
}

// openStore opens the journal store in dir.
func openStore(dir string) (*storage.Store, error) {
	s, err := storage.Open(dir, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal store:\n%w", err)
	}

	return s, nil
}
