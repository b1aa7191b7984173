// Package manifest reads the YAML description of a signing batch: the factor
// sources available on this machine, the security configuration of every
// entity and the signables to authorize.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"FactorSign/internal/factor"
	"FactorSign/internal/keyring"
	"FactorSign/internal/security"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the derivation path used when a factor reference has none.
const DefaultPath = "m/0"

// ErrUnknownSource is returned for references to undeclared factor sources.
var ErrUnknownSource = errors.New("unknown factor source")

// Manifest models batch.yml.
type Manifest struct {
	Sources   []Source   `yaml:"sources"`
	Entities  []Entity   `yaml:"entities"`
	Signables []Signable `yaml:"signables"`

	digest [32]byte
}

// Source declares a factor source and the seed its keys derive from.
type Source struct {
	Name string      `yaml:"name"`
	Kind factor.Kind `yaml:"kind"`
	Seed string      `yaml:"seed"`
}

// FactorRef points at a key of a declared source.
type FactorRef struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
}

// FactorList is the YAML form of security.FactorList.
type FactorList struct {
	Threshold uint8       `yaml:"threshold"`
	Factors   []FactorRef `yaml:"threshold_factors"`
	Override  []FactorRef `yaml:"override_factors"`
}

// Entity is an account or persona. Exactly one of Unsecurified or a matrix
// role must be set.
type Entity struct {
	Address      string      `yaml:"address"`
	Unsecurified *FactorRef  `yaml:"unsecurified"`
	Primary      *FactorList `yaml:"primary"`
	Recovery     *FactorList `yaml:"recovery"`
	Confirmation *FactorList `yaml:"confirmation"`

	// Roles are the exercised roles, every configured role if empty.
	Roles []string `yaml:"roles"`

	// Policy lists role combinations, one role per combination if empty.
	Policy [][]string `yaml:"policy"`
}

// Signable is a payload to authorize and the entities that must sign it.
type Signable struct {
	Payload string   `yaml:"payload"`
	Signers []string `yaml:"signers"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s:\n%w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates a manifest from raw YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest yaml:\n%w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	m.digest = blake3.Sum256(data)

	return &m, nil
}

// Digest is the BLAKE3 hash of the raw manifest.
func (m *Manifest) Digest() [32]byte {
	return m.digest
}

// Validate checks names are unique and every reference resolves.
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("manifest declares no factor sources")
	}

	if len(m.Signables) == 0 {
		return fmt.Errorf("manifest declares no signables")
	}

	sources := make(map[string]struct{}, len(m.Sources))

	for i, s := range m.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d] has no name", i)
		}

		if _, dup := sources[s.Name]; dup {
			return fmt.Errorf("source %s declared twice", s.Name)
		}

		if !s.Kind.Valid() {
			return fmt.Errorf("source %s has no valid kind", s.Name)
		}

		if len(s.Seed) < keyring.MinSeedSize {
			return fmt.Errorf("source %s: %w", s.Name, keyring.ErrShortSeed)
		}

		sources[s.Name] = struct{}{}
	}

	checkRef := func(addr string, ref FactorRef) error {
		if _, ok := sources[ref.Source]; !ok {
			return fmt.Errorf("entity %s: %w %q", addr, ErrUnknownSource, ref.Source)
		}

		return nil
	}

	entities := make(map[string]struct{}, len(m.Entities))

	for i, e := range m.Entities {
		if e.Address == "" {
			return fmt.Errorf("entities[%d] has no address", i)
		}

		if _, dup := entities[e.Address]; dup {
			return fmt.Errorf("entity %s declared twice", e.Address)
		}

		entities[e.Address] = struct{}{}

		lists := e.lists()

		if (e.Unsecurified == nil) == (len(lists) == 0) {
			return fmt.Errorf("entity %s must be either unsecurified or have matrix roles", e.Address)
		}

		if e.Unsecurified != nil {
			if err := checkRef(e.Address, *e.Unsecurified); err != nil {
				return err
			}
		}

		for _, l := range lists {
			for _, ref := range append(append([]FactorRef(nil), l.Factors...), l.Override...) {
				if err := checkRef(e.Address, ref); err != nil {
					return err
				}
			}
		}
	}

	payloads := make(map[string]struct{}, len(m.Signables))

	for i, s := range m.Signables {
		if s.Payload == "" {
			return fmt.Errorf("signables[%d] has no payload", i)
		}

		if _, dup := payloads[s.Payload]; dup {
			return fmt.Errorf("signable %q declared twice", s.Payload)
		}

		payloads[s.Payload] = struct{}{}

		if len(s.Signers) == 0 {
			return fmt.Errorf("signable %q has no signers", s.Payload)
		}

		for _, addr := range s.Signers {
			if _, ok := entities[addr]; !ok {
				return fmt.Errorf("signable %q: unknown signer %s", s.Payload, addr)
			}
		}
	}

	return nil
}

// lists returns the configured matrix roles.
func (e Entity) lists() map[security.Role]*FactorList {
	out := make(map[security.Role]*FactorList, 3)

	for r, l := range map[security.Role]*FactorList{
		security.RolePrimary:      e.Primary,
		security.RoleRecovery:     e.Recovery,
		security.RoleConfirmation: e.Confirmation,
	} {
		if l != nil {
			out[r] = l
		}
	}

	return out
}
