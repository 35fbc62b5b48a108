// Package password hashea y verifica credenciales locales en formato PHC argon2id.
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

var ErrMalformedHash = errors.New("malformed argon2id hash")

type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

type decoded struct {
	params Params
	salt   []byte
	dk     []byte
}

func decode(phc string) (*decoded, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, dk
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: version %q", ErrMalformedHash, parts[2])
	}
	var d decoded
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMalformedHash, kv)
		}
		switch k {
		case "m":
			d.params.Memory = uint32(n)
		case "t":
			d.params.Time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: %s", ErrMalformedHash, kv)
			}
			d.params.Parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown param %q", ErrMalformedHash, k)
		}
	}
	if d.params.Memory == 0 || d.params.Time == 0 || d.params.Parallelism == 0 {
		return nil, ErrMalformedHash
	}
	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if d.dk, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.dk) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	d.params.KeyLen = uint32(len(d.dk))
	return &d, nil
}

// Verify compara en tiempo constante. Un hash malformado nunca verifica.
func Verify(plain, phc string) bool {
	d, err := decode(phc)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plain), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, d.params.KeyLen)
	return subtle.ConstantTimeCompare(key, d.dk) == 1
}

// Validate chequea que phc sea un hash argon2id bien formado.
func Validate(phc string) error {
	_, err := decode(phc)
	return err
}
