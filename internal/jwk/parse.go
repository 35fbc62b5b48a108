package jwk

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxjwk "github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/dropDatabas3/uaagate/internal/observability/logger"
)

type rawSet struct {
	Keys []json.RawMessage `json:"keys"`
}

type rawHeader struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
}

// ParseSet separa un JWKS en entradas y parsea cada una por separado. Claves no RSA se
// saltean en silencio; una RSA malformada se descarta con warning sin afectar al resto.
// Sólo un payload que no es un JWKS devuelve error.
func ParseSet(ctx context.Context, raw []byte) ([]*Entry, error) {
	var set rawSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("jwk: parse set: %w", err)
	}
	log := logger.From(ctx).With(logger.Layer("jwk"), logger.Op("ParseSet"))

	out := make([]*Entry, 0, len(set.Keys))
	for _, b := range set.Keys {
		var h rawHeader
		if err := json.Unmarshal(b, &h); err != nil {
			log.Warn("jwk entry dropped", logger.Err(err))
			continue
		}
		if !strings.EqualFold(h.Kty, string(jwa.RSA)) {
			continue
		}
		e, err := parseRSA(b)
		if err != nil {
			log.Warn("jwk entry dropped", logger.KeyID(h.Kid), logger.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parseRSA(b []byte) (*Entry, error) {
	key, err := jwxjwk.ParseKey(b)
	if err != nil {
		return nil, err
	}
	if key.KeyType() != jwa.RSA {
		return nil, fmt.Errorf("unexpected key type %s", key.KeyType())
	}
	kid := key.KeyID()
	if kid == "" {
		return nil, fmt.Errorf("missing kid")
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, err
	}
	var pub *rsa.PublicKey
	switch k := raw.(type) {
	case *rsa.PublicKey:
		pub = k
	case *rsa.PrivateKey:
		pub = &k.PublicKey
	default:
		return nil, fmt.Errorf("unexpected raw key %T", raw)
	}
	if pub.N == nil || pub.N.BitLen() < 1024 {
		return nil, fmt.Errorf("rsa modulus too small")
	}

	alg := ""
	if a := key.Algorithm(); a != nil {
		alg = a.String()
	}
	switch alg {
	case "", "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
	default:
		return nil, fmt.Errorf("alg %q not usable with rsa", alg)
	}

	return &Entry{
		KeyID:     kid,
		KeyType:   string(jwa.RSA),
		Algorithm: alg,
		PublicKey: pub,
	}, nil
}
