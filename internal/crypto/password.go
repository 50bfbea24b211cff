package crypto

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

const (
	algorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	maxMemoryKB    uint32 = 1 << 20
	minTime        uint32 = 1
	maxTime        uint32 = 16
	minParallelism uint8  = 1
	maxParallelism uint8  = 64
	saltLength            = 16
	keyLength      uint32 = 32
	minSaltLength         = 16
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
}

func DefaultParams() Params {
	return Params{MemoryKB: 64 * 1024, Time: 3, Parallelism: 2}
}

// Hasher produces PHC-encoded argon2id hashes.
type Hasher struct {
	params Params
}

func NewHasher(params Params) (*Hasher, error) {
	if params.MemoryKB < minMemoryKB || params.MemoryKB > maxMemoryKB {
		return nil, fmt.Errorf("password memory must be between %d and %d KB", minMemoryKB, maxMemoryKB)
	}
	if params.Time < minTime || params.Time > maxTime {
		return nil, fmt.Errorf("password time must be between %d and %d", minTime, maxTime)
	}
	if params.Parallelism < minParallelism || params.Parallelism > maxParallelism {
		return nil, fmt.Errorf("password parallelism must be between %d and %d", minParallelism, maxParallelism)
	}
	return &Hasher{params: params}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, keyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches storedHash. A hash that
// cannot be parsed never matches.
func VerifyPassword(password, storedHash string) bool {
	parsed, ok := parseHash(storedHash)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

type encodedHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseHash(value string) (encodedHash, bool) {
	parts := strings.Split(value, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return encodedHash{}, false
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return encodedHash{}, false
	}

	var out encodedHash
	var seen int
	for _, pair := range strings.Split(parts[3], ",") {
		key, raw, found := strings.Cut(pair, "=")
		if !found {
			return encodedHash{}, false
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minMemoryKB || uint32(v) > maxMemoryKB {
				return encodedHash{}, false
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < minTime || uint32(v) > maxTime {
				return encodedHash{}, false
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < minParallelism || uint8(v) > maxParallelism {
				return encodedHash{}, false
			}
			out.parallelism = uint8(v)
		default:
			return encodedHash{}, false
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return encodedHash{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return encodedHash{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return encodedHash{}, false
	}
	out.salt = salt
	out.key = key
	return out, true
}
