// Package idpconfig mantiene la configuración IDP activa por tenant: qué clients externos
// se aceptan, con qué issuer y de dónde salen sus claves públicas.
package idpconfig

import (
	"sort"
)

// SourceType indica de dónde se obtienen las JWKs de un client.
type SourceType string

const (
	SourceRemote  SourceType = "remote"
	SourceStorage SourceType = "storage"
)

func (s SourceType) Valid() bool {
	return s == SourceRemote || s == SourceStorage
}

// ClientConfig es una entrada validada del documento IDP de un tenant.
type ClientConfig struct {
	Key          string
	ClientID     string
	Issuer       string
	SourceType   SourceType
	JwksEndpoint string
	StorageKey   string
}

// Snapshot es la config activa de un tenant. Inmutable una vez publicada.
type Snapshot struct {
	Tenant  string
	Version uint64
	// SourceType default del tenant; cada client puede sobreescribirlo.
	SourceType SourceType
	clients    map[string]ClientConfig
}

// Client devuelve la config del clientId indicado.
func (s *Snapshot) Client(clientID string) (ClientConfig, bool) {
	c, ok := s.clients[clientID]
	return c, ok
}

// Clients devuelve todos los clients ordenados por clientId.
func (s *Snapshot) Clients() []ClientConfig {
	out := make([]ClientConfig, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// BySource agrupa los clients por tipo de fuente de claves.
func (s *Snapshot) BySource() map[SourceType][]ClientConfig {
	out := make(map[SourceType][]ClientConfig, 2)
	for _, c := range s.Clients() {
		out[c.SourceType] = append(out[c.SourceType], c)
	}
	return out
}

func (s *Snapshot) Len() int { return len(s.clients) }
