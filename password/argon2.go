package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// DefaultMaxPasswordBytes caps the input size when Config.MaxPasswordBytes
// is zero.
const DefaultMaxPasswordBytes = 1024

const (
	phcAlgorithm = "argon2id"
	minPassword  = 10
)

// Lower bounds enforced on both Config and decoded hashes.
var floor = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

var (
	ErrPasswordTooShort = errors.New("password: shorter than 10 bytes")
	ErrPasswordTooLong  = errors.New("password: longer than the configured maximum")
	// ErrInvalidHash wraps every failure to decode a stored hash.
	ErrInvalidHash = errors.New("password: malformed argon2id hash")
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig is tuned for interactive logins.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Config) validate() error {
	switch {
	case c.Memory < floor.Memory:
		return fmt.Errorf("password: memory %d KiB below %d", c.Memory, floor.Memory)
	case c.Time < floor.Time:
		return errors.New("password: time cost must be positive")
	case c.Parallelism < floor.Parallelism:
		return errors.New("password: parallelism must be positive")
	case c.SaltLength < floor.SaltLength:
		return fmt.Errorf("password: salt length %d below %d", c.SaltLength, floor.SaltLength)
	case c.KeyLength < floor.KeyLength:
		return fmt.Errorf("password: key length %d below %d", c.KeyLength, floor.KeyLength)
	}
	return nil
}

// Argon2 hashes and checks passwords. The zero value is unusable; build
// one with NewArgon2. Safe for concurrent use.
type Argon2 struct {
	cfg Config
}

// NewArgon2 returns a hasher for cfg.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a fresh salted key and returns it in PHC form. The password
// bytes are hashed as given.
func (a *Argon2) Hash(password string) (string, error) {
	switch n := len(password); {
	case n < minPassword:
		return "", ErrPasswordTooShort
	case n > a.cfg.MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}

	d := digest{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        make([]byte, a.cfg.SaltLength),
	}
	if _, err := rand.Read(d.salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}
	d.key = d.derive(password, a.cfg.KeyLength)
	return d.String(), nil
}

// Verify recomputes the key with the parameters recorded in encoded and
// compares in constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.cfg.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(got, d.key) == 1, nil
}

// NeedsUpgrade is true when encoded was produced with a lower cost or a
// different key length than the hasher's current Config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	weaker := d.memory < a.cfg.Memory ||
		d.time < a.cfg.Time ||
		d.parallelism < a.cfg.Parallelism ||
		uint32(len(d.key)) != a.cfg.KeyLength
	return weaker, nil
}

// digest is one decoded PHC string.
type digest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d digest) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, keyLen)
}

// String renders $argon2id$v=19$m=..,t=..,p=..$salt$key.
func (d digest) String() string {
	b64 := base64.StdEncoding
	return "$" + phcAlgorithm +
		"$v=" + strconv.Itoa(argon2.Version) +
		"$m=" + strconv.FormatUint(uint64(d.memory), 10) +
		",t=" + strconv.FormatUint(uint64(d.time), 10) +
		",p=" + strconv.FormatUint(uint64(d.parallelism), 10) +
		"$" + b64.EncodeToString(d.salt) +
		"$" + b64.EncodeToString(d.key)
}

func decode(encoded string) (digest, error) {
	d, err := decodeFields(encoded)
	if err != nil {
		return digest{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return d, nil
}

func decodeFields(encoded string) (digest, error) {
	rest, ok := strings.CutPrefix(encoded, "$")
	if !ok {
		return digest{}, errors.New("missing leading $")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 5 {
		return digest{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	if fields[0] != phcAlgorithm {
		return digest{}, fmt.Errorf("algorithm %q", fields[0])
	}

	v, ok := strings.CutPrefix(fields[1], "v=")
	if !ok {
		return digest{}, errors.New("missing version")
	}
	if n, err := strconv.Atoi(v); err != nil || n != argon2.Version {
		return digest{}, fmt.Errorf("version %q", v)
	}

	var d digest
	if err := d.parseCost(fields[2]); err != nil {
		return digest{}, err
	}

	var err error
	if d.salt, err = base64.StdEncoding.DecodeString(fields[3]); err != nil {
		return digest{}, fmt.Errorf("salt: %w", err)
	}
	if uint32(len(d.salt)) < floor.SaltLength {
		return digest{}, fmt.Errorf("salt of %d bytes", len(d.salt))
	}
	if d.key, err = base64.StdEncoding.DecodeString(fields[4]); err != nil {
		return digest{}, fmt.Errorf("key: %w", err)
	}
	if len(d.key) == 0 {
		return digest{}, errors.New("empty key")
	}
	return d, nil
}

// parseCost reads exactly one each of m, t and p.
func (d *digest) parseCost(s string) error {
	seen := map[string]bool{}
	for _, kv := range strings.Split(s, ",") {
		name, val, ok := strings.Cut(kv, "=")
		if !ok || seen[name] {
			return fmt.Errorf("cost entry %q", kv)
		}
		seen[name] = true

		bits := 32
		if name == "p" {
			bits = 8
		}
		n, err := strconv.ParseUint(val, 10, bits)
		if err != nil {
			return fmt.Errorf("cost %s: %w", name, err)
		}
		switch name {
		case "m":
			if uint32(n) < floor.Memory {
				return fmt.Errorf("memory %d below floor", n)
			}
			d.memory = uint32(n)
		case "t":
			if uint32(n) < floor.Time {
				return errors.New("zero time cost")
			}
			d.time = uint32(n)
		case "p":
			if uint8(n) < floor.Parallelism {
				return errors.New("zero parallelism")
			}
			d.parallelism = uint8(n)
		default:
			return fmt.Errorf("unknown cost %q", name)
		}
	}
	if len(seen) != 3 {
		return errors.New("incomplete cost parameters")
	}
	return nil
}
