// Package auth checks bearer tokens presented to the internal API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Grant is the set of internal API capabilities a token carries.
type Grant uint8

const (
	// GrantPush allows delivering automation tasks.
	GrantPush Grant = 1 << iota
	// GrantReadJobs allows reading job status.
	GrantReadJobs

	GrantAll = GrantPush | GrantReadJobs
)

// Scope names accepted in configuration.
const (
	ScopeAll       = "*"
	ScopeTasksPush = "tasks:push"
	ScopeJobsRead  = "jobs:ro"
)

var scopeGrants = map[string]Grant{
	ScopeAll:       GrantAll,
	ScopeTasksPush: GrantPush,
	ScopeJobsRead:  GrantReadJobs,
}

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrNotBearer    = errors.New("authorization header is not a bearer token")
	ErrEmptyKeyring = errors.New("no api key or tokens configured")
)

// Allows reports whether g includes every capability in need.
func (g Grant) Allows(need Grant) bool {
	return need != 0 && g&need == need
}

// ParseScopes folds configured scope names into a Grant.
func ParseScopes(scopes []string) (Grant, error) {
	var g Grant
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		grant, ok := scopeGrants[s]
		if !ok {
			return 0, fmt.Errorf("unknown scope %q (want one of %s)", s, strings.Join(knownScopes(), ", "))
		}
		g |= grant
	}
	if g == 0 {
		return 0, errors.New("no scopes granted")
	}
	return g, nil
}

func knownScopes() []string {
	out := make([]string, 0, len(scopeGrants))
	for s := range scopeGrants {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TokenConfig is a configured bearer token and its scope names.
type TokenConfig struct {
	Token  string
	Scopes []string
}

type key struct {
	secret []byte
	grant  Grant
}

// Keyring holds the tokens accepted by the internal API. The admin key,
// when set, carries GrantAll.
type Keyring struct {
	keys []key
}

// NewKeyring validates the configured tokens once at startup.
func NewKeyring(adminKey string, tokens []TokenConfig) (*Keyring, error) {
	k := &Keyring{}
	if adminKey != "" {
		k.keys = append(k.keys, key{secret: []byte(adminKey), grant: GrantAll})
	}
	for i, t := range tokens {
		if t.Token == "" {
			return nil, fmt.Errorf("token %d: empty token", i)
		}
		g, err := ParseScopes(t.Scopes)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		k.keys = append(k.keys, key{secret: []byte(t.Token), grant: g})
	}
	if len(k.keys) == 0 {
		return nil, ErrEmptyKeyring
	}
	return k, nil
}

// Lookup returns the grant of the matching token. Every key is compared so
// the time taken does not depend on which key matched.
func (k *Keyring) Lookup(presented string) (Grant, bool) {
	if k == nil || presented == "" {
		return 0, false
	}
	p := []byte(presented)
	var (
		grant Grant
		found bool
	)
	for _, key := range k.keys {
		if subtle.ConstantTimeCompare(p, key.secret) == 1 {
			grant |= key.grant
			found = true
		}
	}
	return grant, found
}

// BearerToken reads the token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrNotBearer
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

type grantKey struct{}

// WithGrant stores an authenticated grant on ctx.
func WithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// GrantFrom returns the grant stored by WithGrant.
func GrantFrom(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantKey{}).(Grant)
	return g, ok
}
