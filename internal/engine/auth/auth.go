package auth

import (
	"fmt"
	"strings"

	"peopleops/internal/config"
	"peopleops/internal/domain"
)

// ForbiddenError indicates the resolved scope lacks a capability.
type ForbiddenError struct {
	Capability string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("scope %s required", e.Capability)
}

// Resolver derives scopes from identities using the configured role claims.
type Resolver struct {
	cfo map[string]struct{}
	ops map[string]struct{}
}

// NewResolver builds a resolver from cfg; a nil config grants no claims.
func NewResolver(cfg *config.Config) Resolver {
	r := Resolver{cfo: map[string]struct{}{}, ops: map[string]struct{}{}}
	if cfg == nil {
		return r
	}
	for _, v := range cfg.Claims.CFO {
		r.cfo[normalize(v)] = struct{}{}
	}
	for _, v := range cfg.Claims.Ops {
		r.ops[normalize(v)] = struct{}{}
	}
	return r
}

// Resolve computes the scope of identity. An identity with neither name nor
// email resolves to an empty scope.
func (r Resolver) Resolve(identity domain.Identity) domain.Scope {
	name := strings.TrimSpace(identity.Name)
	email := strings.TrimSpace(identity.Email)
	if name == "" && email == "" {
		return domain.Scope{}
	}
	return domain.Scope{
		Name:     name,
		Email:    email,
		Employee: true,
		Director: identity.Director,
		CFO:      r.claims(r.cfo, name, email),
		Ops:      r.claims(r.ops, name, email),
	}
}

func (r Resolver) claims(set map[string]struct{}, name, email string) bool {
	for _, v := range []string{name, email} {
		if v == "" {
			continue
		}
		if _, ok := set[normalize(v)]; ok {
			return true
		}
	}
	return false
}

// Require returns ForbiddenError when ok is false.
func Require(ok bool, capability string) error {
	if ok {
		return nil
	}
	return ForbiddenError{Capability: capability}
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
