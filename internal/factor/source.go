package factor

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// SourceID identifies a factor source. It is comparable and immutable.
type SourceID struct {
	Kind Kind     // Kind is the kind of the factor source
	Body [32]byte // Body is BLAKE3 of the factor source's root public key material
}

// Reference is the id and kind of a factor source, as seen by the signing core.
type Reference = SourceID

// NewSourceID derives a SourceID from the root public key material of a factor source.
func NewSourceID(kind Kind, rootPublicKey []byte) SourceID {
	h := blake3.New()
	h.Write([]byte{byte(kind)})
	h.Write(rootPublicKey)

	var id SourceID
	id.Kind = kind
	copy(id.Body[:], h.Sum(nil))

	return id
}

// String returns "kind:hexprefix".
func (id SourceID) String() string {
	return id.Kind.String() + ":" + hex.EncodeToString(id.Body[:4])
}

// Hex returns the full "kind:hex" form used in manifests and journals.
func (id SourceID) Hex() string {
	return id.Kind.String() + ":" + hex.EncodeToString(id.Body[:])
}

// IsZero reports whether the id is unset.
func (id SourceID) IsZero() bool {
	return id == SourceID{}
}

// ParseSourceID parses the form produced by Hex.
func ParseSourceID(s string) (SourceID, error) {
	kindStr, bodyHex, ok := strings.Cut(s, ":")
	if !ok {
		return SourceID{}, fmt.Errorf("factor source id %q: missing kind separator", s)
	}

	kind, err := ParseKind(kindStr)
	if err != nil {
		return SourceID{}, err
	}

	body, err := hex.DecodeString(bodyHex)
	if err != nil {
		return SourceID{}, fmt.Errorf("factor source id %q:\n%w", s, err)
	}

	if len(body) != 32 {
		return SourceID{}, fmt.Errorf("factor source id %q: body is %d bytes, want 32", s, len(body))
	}

	id := SourceID{Kind: kind}
	copy(id.Body[:], body)

	return id, nil
}

// Compare orders ids by signing order of their kind, then by body.
func (id SourceID) Compare(other SourceID) int {
	if a, b := id.Kind.SigningOrder(), other.Kind.SigningOrder(); a != b {
		return a - b
	}

	return strings.Compare(string(id.Body[:]), string(other.Body[:]))
}
