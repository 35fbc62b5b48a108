// Package tenantconfig entrega configuración por tenant (archivos YAML) a los listeners
// interesados: un path-pattern decide si un push le corresponde a cada listener.
package tenantconfig

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern es un template estilo ant: "{name}" captura un segmento, "*" cualquier
// segmento parcial y "**" cualquier cantidad de segmentos.
//
//	/config/tenants/{tenant}/uaa/idp-config-public.yml
type Pattern struct {
	raw   string
	re    *regexp.Regexp
	names []string
}

var varRe = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_]*)\}`)

// CompilePattern compila el template una sola vez.
func CompilePattern(p string) (*Pattern, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil, fmt.Errorf("tenantconfig: empty pattern")
	}
	var (
		b     strings.Builder
		names []string
	)
	b.WriteString("^")
	for i := 0; i < len(p); {
		switch {
		case p[i] == '{':
			loc := varRe.FindStringSubmatchIndex(p[i:])
			if loc == nil || loc[0] != 0 {
				return nil, fmt.Errorf("tenantconfig: bad variable at %d in %q", i, p)
			}
			name := p[i+loc[2] : i+loc[3]]
			for _, n := range names {
				if n == name {
					return nil, fmt.Errorf("tenantconfig: duplicate variable %q in %q", name, p)
				}
			}
			names = append(names, name)
			b.WriteString(`([^/]+)`)
			i += loc[1]
		case strings.HasPrefix(p[i:], "**"):
			b.WriteString(`.*`)
			i += 2
		case p[i] == '*':
			b.WriteString(`[^/]*`)
			i++
		default:
			b.WriteString(regexp.QuoteMeta(p[i : i+1]))
			i++
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("tenantconfig: compile %q: %w", p, err)
	}
	return &Pattern{raw: p, re: re, names: names}, nil
}

// MustPattern es CompilePattern que entra en pánico (sólo para constantes).
func MustPattern(p string) *Pattern {
	pt, err := CompilePattern(p)
	if err != nil {
		panic(err)
	}
	return pt
}

func (p *Pattern) String() string { return p.raw }

// Match devuelve las variables capturadas cuando path coincide con el template.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	vars := make(map[string]string, len(p.names))
	for i, n := range p.names {
		vars[n] = m[i+1]
	}
	return vars, true
}

// Expand reemplaza las variables del template. Wildcards quedan tal cual.
func (p *Pattern) Expand(vars map[string]string) string {
	return varRe.ReplaceAllStringFunc(p.raw, func(s string) string {
		if v, ok := vars[s[1:len(s)-1]]; ok {
			return v
		}
		return s
	})
}
