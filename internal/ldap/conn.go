// Package ldap autentica logins "usuario@dominio" contra el directorio LDAP que el
// tenant asocia a ese dominio, y provisiona el usuario local en el primer login.
package ldap

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/dropDatabas3/uaagate/internal/tenantprops"
)

// Conn es lo mínimo que el provider usa de una conexión LDAP.
type Conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close()
}

// Dialer abre una conexión al directorio configurado.
type Dialer func(ctx context.Context, cfg tenantprops.LdapConfig) (Conn, error)

type ldapConn struct{ *goldap.Conn }

func (c ldapConn) Close() { c.Conn.Close() }

// NetDialer conecta con go-ldap; StartTLS si el directorio lo pide.
func NetDialer(timeout time.Duration) Dialer {
	return func(ctx context.Context, cfg tenantprops.LdapConfig) (Conn, error) {
		d := &net.Dialer{Timeout: timeout}
		if dl, ok := ctx.Deadline(); ok {
			d.Deadline = dl
		}
		c, err := goldap.DialURL(cfg.URL, goldap.DialWithDialer(d))
		if err != nil {
			return nil, err
		}
		c.SetTimeout(timeout)
		if cfg.StartTLS {
			host := ""
			if u, err := url.Parse(cfg.URL); err == nil {
				host = u.Hostname()
			}
			if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
				c.Close()
				return nil, err
			}
		}
		return ldapConn{c}, nil
	}
}
