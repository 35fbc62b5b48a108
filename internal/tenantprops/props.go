// Package tenantprops mantiene las propiedades de seguridad por tenant (uaa.yml): rol
// por defecto y directorios LDAP.
package tenantprops

import (
	"strings"
)

// Properties es el contenido de uaa.yml de un tenant.
type Properties struct {
	Security struct {
		DefaultUserRole string `yaml:"defaultUserRole"`
	} `yaml:"security"`
	LDAP []LdapConfig `yaml:"ldap"`
}

// LdapConfig describe un directorio LDAP asociado a un dominio de login.
type LdapConfig struct {
	Domain             string            `yaml:"domain"`
	URL                string            `yaml:"url"`
	RootDN             string            `yaml:"rootDn"`
	// UserDNPattern: "{0}" se reemplaza por la parte local del login ("uid={0},ou=people").
	UserDNPattern      string            `yaml:"userDnPattern"`
	GroupSearchBase    string            `yaml:"groupSearchBase"`
	// GroupSearchFilter: "{0}" se reemplaza por el DN del usuario.
	GroupSearchFilter  string            `yaml:"groupSearchFilter"`
	FirstNameAttribute string            `yaml:"firstNameAttribute"`
	LastNameAttribute  string            `yaml:"lastNameAttribute"`
	DefaultRole        string            `yaml:"defaultRole"`
	RoleMapping        map[string]string `yaml:"roleMapping"`
	StartTLS           bool              `yaml:"startTls"`
}

func (c *LdapConfig) applyDefaults() {
	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	if c.UserDNPattern == "" {
		c.UserDNPattern = "uid={0}"
	}
	if c.GroupSearchFilter == "" {
		c.GroupSearchFilter = "(member={0})"
	}
	if c.FirstNameAttribute == "" {
		c.FirstNameAttribute = "givenName"
	}
	if c.LastNameAttribute == "" {
		c.LastNameAttribute = "sn"
	}
}

// UserDN arma el DN del usuario; localPart ya debe venir escapado.
func (c *LdapConfig) UserDN(localPart string) string {
	dn := strings.ReplaceAll(c.UserDNPattern, "{0}", localPart)
	if c.RootDN != "" && !strings.HasSuffix(strings.ToLower(dn), strings.ToLower(c.RootDN)) {
		dn += "," + c.RootDN
	}
	return dn
}

// GroupBase devuelve la base de búsqueda de grupos relativa a RootDN.
func (c *LdapConfig) GroupBase() string {
	switch {
	case c.GroupSearchBase == "":
		return c.RootDN
	case c.RootDN == "" || strings.HasSuffix(strings.ToLower(c.GroupSearchBase), strings.ToLower(c.RootDN)):
		return c.GroupSearchBase
	default:
		return c.GroupSearchBase + "," + c.RootDN
	}
}
