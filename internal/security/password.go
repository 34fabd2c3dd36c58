package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcAlgorithm = "argon2id"

// Argon2Params tunes the memory-hard hash.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params is the current cost baseline. Hashes stored with
// weaker parameters are rehashed on the next successful login.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher hashes and verifies passwords with Argon2id plus a
// server-side pepper. Verification also accepts pre-pepper legacy hashes
// so those accounts keep working until their first login rehashes them.
type PasswordHasher struct {
	params Argon2Params
	pepper []byte
}

// NewPasswordHasher builds a hasher. An empty pepper is allowed here;
// production refuses to start without one at config validation.
func NewPasswordHasher(pepper string, params Argon2Params) *PasswordHasher {
	if params.Memory == 0 {
		params = DefaultArgon2Params
	}
	return &PasswordHasher{params: params, pepper: []byte(pepper)}
}

// Hash returns a PHC-encoded Argon2id hash of the peppered password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(h.peppered(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks the password against a stored hash. It tries the peppered
// form first, then the raw password for hashes minted before the pepper
// existed. legacy reports which path matched; callers rehash after a
// legacy match. Both paths run the full hash computation.
func (h *PasswordHasher) Verify(password, encoded string) (ok bool, legacy bool, err error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, false, err
	}

	peppered := parsed.compute(h.peppered(password))
	plain := parsed.compute([]byte(password))

	if subtle.ConstantTimeCompare(peppered, parsed.hash) == 1 {
		return true, false, nil
	}
	if subtle.ConstantTimeCompare(plain, parsed.hash) == 1 {
		return true, true, nil
	}
	return false, false, nil
}

// NeedsRehash reports whether the stored hash uses weaker cost parameters
// than the current baseline. Unparseable hashes count as needing rehash.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	if h.params.Memory > parsed.memory {
		return true
	}
	if h.params.Time > parsed.time {
		return true
	}
	if h.params.Parallelism > parsed.parallelism {
		return true
	}
	if h.params.KeyLength != uint32(len(parsed.hash)) {
		return true
	}
	return false
}

func (h *PasswordHasher) peppered(password string) []byte {
	out := make([]byte, 0, len(password)+len(h.pepper))
	out = append(out, password...)
	out = append(out, h.pepper...)
	return out
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func (p *parsedPHC) compute(password []byte) []byte {
	return argon2.IDKey(password, p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid hash format")
	}
	if parts[1] != phcAlgorithm {
		return nil, errors.New("unsupported hash algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	parsed := &parsedPHC{}
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid hash parameters")
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return nil, errors.New("invalid hash parameters")
		}
		switch kv[0] {
		case "m":
			parsed.memory = uint32(v)
		case "t":
			parsed.time = uint32(v)
		case "p":
			if v > 255 {
				return nil, errors.New("invalid hash parameters")
			}
			parsed.parallelism = uint8(v)
		default:
			return nil, errors.New("invalid hash parameters")
		}
	}
	if parsed.memory == 0 || parsed.time == 0 || parsed.parallelism == 0 {
		return nil, errors.New("invalid hash parameters")
	}

	parsed.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(parsed.salt) < 8 {
		return nil, errors.New("invalid hash salt")
	}
	parsed.hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(parsed.hash) == 0 {
		return nil, errors.New("invalid hash digest")
	}

	return parsed, nil
}
