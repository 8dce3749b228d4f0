package api

import (
	"errors"
	"net/http"
	"strings"

	"chantiercore/pkg/domain"
)

// ErrUnknownIdentity is returned when a request carries no resolvable actor.
var ErrUnknownIdentity = errors.New("unknown identity")

// IdentityProvider resolves the acting identity for one request. The core
// trusts the resolved actor as-is; authentication transport is the deployment's
// concern.
type IdentityProvider interface {
	Resolve(r *http.Request) (domain.Actor, error)
}

// StaticIdentityProvider resolves actors from a fixed directory keyed by the
// X-User-Email header.
type StaticIdentityProvider struct {
	actors map[string]domain.Actor
}

// NewStaticIdentityProvider indexes the given actors by lowercased email.
func NewStaticIdentityProvider(actors []domain.Actor) *StaticIdentityProvider {
	index := make(map[string]domain.Actor, len(actors))
	for _, a := range actors {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email != "" {
			index[email] = a
		}
	}
	return &StaticIdentityProvider{actors: index}
}

// Resolve implements IdentityProvider.
func (p *StaticIdentityProvider) Resolve(r *http.Request) (domain.Actor, error) {
	email := strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Email")))
	if email == "" {
		return domain.Actor{}, ErrUnknownIdentity
	}
	actor, ok := p.actors[email]
	if !ok {
		return domain.Actor{}, ErrUnknownIdentity
	}
	return actor, nil
}

// HeaderIdentityProvider builds the actor from trusted proxy headers
// (X-User-Email, X-User-First-Name, X-User-Last-Name, X-User-Role). Every
// request with an email resolves; role defaults to member.
type HeaderIdentityProvider struct{}

// Resolve implements IdentityProvider.
func (HeaderIdentityProvider) Resolve(r *http.Request) (domain.Actor, error) {
	email := strings.TrimSpace(r.Header.Get("X-User-Email"))
	if email == "" {
		return domain.Actor{}, ErrUnknownIdentity
	}
	role := domain.RoleMember
	if strings.EqualFold(strings.TrimSpace(r.Header.Get("X-User-Role")), string(domain.RoleAdmin)) {
		role = domain.RoleAdmin
	}
	return domain.Actor{
		Email:     email,
		FirstName: strings.TrimSpace(r.Header.Get("X-User-First-Name")),
		LastName:  strings.TrimSpace(r.Header.Get("X-User-Last-Name")),
		Role:      role,
	}, nil
}
