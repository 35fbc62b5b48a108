package idpconfig

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

type document struct {
	IDP struct {
		JwksSourceType string      `yaml:"jwksSourceType"`
		Clients        []clientDoc `yaml:"clients"`
	} `yaml:"idp"`
}

type clientDoc struct {
	Key            string `yaml:"key"`
	ClientID       string `yaml:"clientId"`
	Issuer         string `yaml:"issuer"`
	JwksSourceType string `yaml:"jwksSourceType"`
	JwksEndpoint   string `yaml:"jwksEndpoint"`
	StorageKey     string `yaml:"storageKey"`
}

// Rejected describe una entrada descartada.
type Rejected struct {
	Index    int
	ClientID string
	Reason   string
}

// Parsed es el resultado de parsear un documento: entradas válidas y descartadas.
type Parsed struct {
	SourceType SourceType
	Clients    []ClientConfig
	Rejected   []Rejected
}

// Parse valida cada entrada por separado: una entrada inválida no invalida el resto.
// Sólo un documento que no es YAML devuelve error.
func Parse(raw []byte) (*Parsed, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("idpconfig: parse: %w", err)
	}

	def := SourceType(strings.ToLower(strings.TrimSpace(doc.IDP.JwksSourceType)))
	if def == "" {
		def = SourceRemote
	}
	out := &Parsed{SourceType: def}

	seen := make(map[string]int, len(doc.IDP.Clients))
	for i, cd := range doc.IDP.Clients {
		c, err := cd.toConfig(def)
		if err != nil {
			out.Rejected = append(out.Rejected, Rejected{Index: i, ClientID: cd.ClientID, Reason: err.Error()})
			continue
		}
		// clientId duplicado: gana el último
		if j, ok := seen[c.ClientID]; ok {
			out.Clients[j] = c
			continue
		}
		seen[c.ClientID] = len(out.Clients)
		out.Clients = append(out.Clients, c)
	}
	return out, nil
}

func (cd clientDoc) toConfig(def SourceType) (ClientConfig, error) {
	c := ClientConfig{
		Key:          strings.TrimSpace(cd.Key),
		ClientID:     strings.TrimSpace(cd.ClientID),
		Issuer:       strings.TrimSpace(cd.Issuer),
		SourceType:   SourceType(strings.ToLower(strings.TrimSpace(cd.JwksSourceType))),
		JwksEndpoint: strings.TrimSpace(cd.JwksEndpoint),
		StorageKey:   strings.TrimSpace(cd.StorageKey),
	}
	if c.ClientID == "" {
		return c, fmt.Errorf("clientId required")
	}
	if c.Key == "" {
		c.Key = c.ClientID
	}
	if c.SourceType == "" {
		c.SourceType = def
	}
	if !c.SourceType.Valid() {
		return c, fmt.Errorf("unknown jwksSourceType %q", c.SourceType)
	}
	if !isHTTPURL(c.Issuer) {
		return c, fmt.Errorf("issuer must be an absolute http(s) url")
	}
	switch c.SourceType {
	case SourceRemote:
		if !isHTTPURL(c.JwksEndpoint) {
			return c, fmt.Errorf("jwksEndpoint must be an absolute http(s) url")
		}
	case SourceStorage:
		if c.StorageKey == "" {
			c.StorageKey = c.ClientID
		}
		if strings.ContainsAny(c.StorageKey, `/\:`) || c.StorageKey == "." || c.StorageKey == ".." {
			return c, fmt.Errorf("storageKey %q not allowed", c.StorageKey)
		}
	}
	return c, nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
