package allocator

import (
	"github.com/bwmarrin/snowflake"
	"github.com/jxskiss/base62"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"

	"shortlink/links"
)

// DefaultAlphabet is the 62-symbol code alphabet.
const DefaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Minter produces candidate codes. Uniqueness is settled by the store, a
// Minter only has to make collisions rare.
type Minter interface {
	Mint() (string, error)
	// Valid reports whether code could have been produced by this Minter.
	Valid(code string) bool
}

// SequenceMinter encodes monotonically increasing snowflake IDs.
type SequenceMinter struct {
	node   *snowflake.Node
	enc    *base62.Encoding
	maxLen int
	symbol [256]bool
}

// NewSequenceMinter needs a 62-symbol alphabet. Codes longer than maxLen are
// refused with links.ErrAllocationExhausted.
func NewSequenceMinter(nodeID int64, alphabet string, maxLen int) (*SequenceMinter, error) {
	if len(alphabet) != 62 {
		return nil, errors.Errorf("sequence alphabet must have 62 symbols, got %d", len(alphabet))
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "create snowflake failed")
	}
	m := &SequenceMinter{
		node:   node,
		enc:    base62.NewEncoding(alphabet),
		maxLen: maxLen,
	}
	m.symbol = symbols(alphabet)
	return m, nil
}

func (m *SequenceMinter) Mint() (string, error) {
	id := m.node.Generate().Int64()
	code := string(m.enc.FormatInt(id))
	if m.maxLen > 0 && len(code) > m.maxLen {
		return "", errors.Wrapf(links.ErrAllocationExhausted, "id %d needs %d symbols, limit is %d", id, len(code), m.maxLen)
	}
	return code, nil
}

func (m *SequenceMinter) Valid(code string) bool {
	return validCode(code, m.maxLen, &m.symbol)
}

// RandomMinter draws fixed-length nanoid codes.
type RandomMinter struct {
	alphabet string
	length   int
	symbol   [256]bool
}

func NewRandomMinter(alphabet string, length int) (*RandomMinter, error) {
	if alphabet == "" || length <= 0 {
		return nil, errors.New("random minter needs an alphabet and a positive length")
	}
	return &RandomMinter{alphabet: alphabet, length: length, symbol: symbols(alphabet)}, nil
}

func (m *RandomMinter) Mint() (string, error) {
	return gonanoid.Generate(m.alphabet, m.length)
}

func (m *RandomMinter) Valid(code string) bool {
	return len(code) == m.length && validCode(code, m.length, &m.symbol)
}

func symbols(alphabet string) [256]bool {
	var s [256]bool
	for i := 0; i < len(alphabet); i++ {
		s[alphabet[i]] = true
	}
	return s
}

func validCode(code string, maxLen int, symbol *[256]bool) bool {
	if code == "" || (maxLen > 0 && len(code) > maxLen) {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !symbol[code[i]] {
			return false
		}
	}
	return true
}
