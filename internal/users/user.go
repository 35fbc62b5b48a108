// Package users es el contrato de persistencia de identidades locales: lookup por login,
// alta (rechaza logins repetidos) y guardado.
package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrLoginExists = errors.New("login already exists")
)

// LoginType tipifica un login.
type LoginType string

const (
	LoginEmail    LoginType = "LOGIN.EMAIL"
	LoginNickname LoginType = "LOGIN.NICKNAME"
	LoginMSISDN   LoginType = "LOGIN.MSISDN"
)

type Login struct {
	Type  LoginType
	Value string
}

// LocalUser es una identidad persistida.
type LocalUser struct {
	Key          string
	Tenant       string
	FirstName    string
	LastName     string
	RoleKey      string
	Logins       []Login
	PasswordHash string
	Activated    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PrimaryLogin devuelve el login de email si existe, si no el primero.
func (u *LocalUser) PrimaryLogin() string {
	for _, l := range u.Logins {
		if l.Type == LoginEmail {
			return l.Value
		}
	}
	if len(u.Logins) > 0 {
		return u.Logins[0].Value
	}
	return ""
}

// Store persiste usuarios del tenant que viaja en ctx.
type Store interface {
	// FindByLogin retorna ErrNotFound si ningún usuario tiene ese login.
	FindByLogin(ctx context.Context, login string) (*LocalUser, error)
	// Create asigna Key/fechas y falla con ErrLoginExists si algún login ya existe.
	Create(ctx context.Context, u *LocalUser) (*LocalUser, error)
	Save(ctx context.Context, u *LocalUser) error
}

// NormalizeLogin: trim + lower-case.
func NormalizeLogin(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func cloneUser(u *LocalUser) *LocalUser {
	cp := *u
	cp.Logins = append([]Login(nil), u.Logins...)
	return &cp
}
