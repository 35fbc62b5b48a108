// Package util agrupa helpers chicos sin dependencias de dominio.
package util

import "strings"

// MaskLogin enmascara un login para logs: "alice@corp.com" -> "a…@c….com",
// "alice" -> "a…e". El dominio completo queda visible salvo la primera etiqueta.
func MaskLogin(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	user, dom, hasDomain := strings.Cut(s, "@")
	if !hasDomain {
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	labels := strings.Split(dom, ".")
	if len(labels[0]) > 1 {
		labels[0] = labels[0][:1] + "…"
	}
	return user + "@" + strings.Join(labels, ".")
}
