// Package group is the small embedder-facing facade over the internal
// ratchet-tree/handshake machinery: New founds a group, Join consumes
// a Welcome, Add/Update/Remove propose and immediately self-apply a
// handshake, and Accept applies one received from another member.
package group

import (
	"crypto/rand"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/credential"
	"github.com/kindlyrobotics/ratchet/internal/groupstate"
	"github.com/kindlyrobotics/ratchet/internal/handshake"
	"github.com/kindlyrobotics/ratchet/internal/mlserr"
	"github.com/kindlyrobotics/ratchet/internal/welcome"
)

// Group wraps a GroupState with the handful of calls an outer
// application actually needs.
type Group struct {
	State *groupstate.GroupState
}

// New founds a single-member group under label, generating a fresh
// identity signing key, DH leaf key, and init secret.
func New(suite ciphersuite.Suite, label string) (*Group, error) {
	sigPub, sigPriv, err := suite.SignatureKeyGen(nil)
	if err != nil {
		return nil, mlserr.CryptoFailure("group: generate identity key", err)
	}
	dhPub, dhPriv, err := suite.DHKeyGen(nil)
	if err != nil {
		return nil, mlserr.CryptoFailure("group: generate leaf key", err)
	}
	initSecret := make([]byte, 32)
	if _, err := rand.Read(initSecret); err != nil {
		return nil, mlserr.CryptoFailure("group: generate init secret", err)
	}

	cred := credential.New(label, sigPub, suite.ID())
	st := groupstate.New(suite, cred, dhPub, dhPriv, sigPriv, initSecret)
	return &Group{State: st}, nil
}

// Join decrypts w with leafPriv (the DH private key retained from the
// UserInitKey that earned it) and reconstructs the resulting
// GroupState under identityPriv.
func Join(suite ciphersuite.Suite, w *welcome.Welcome, leafPriv, identityPriv []byte) (*Group, error) {
	info, err := welcome.Open(leafPriv, w)
	if err != nil {
		return nil, err
	}
	st, err := groupstate.FromWelcome(suite, info, leafPriv, identityPriv)
	if err != nil {
		return nil, err
	}
	return &Group{State: st}, nil
}

// Add proposes, signs, and self-applies a GroupAdd for initKey,
// returning both the Handshake to broadcast and the Welcome to
// deliver to the newcomer out of band.
func (g *Group) Add(initKey *welcome.UserInitKey) (*handshake.Handshake, *welcome.Welcome, error) {
	hs, err := g.State.ProposeAdd(initKey)
	if err != nil {
		return nil, nil, err
	}
	if err := g.State.Apply(hs); err != nil {
		return nil, nil, err
	}
	w, err := g.State.SealWelcome(initKey)
	if err != nil {
		return nil, nil, err
	}
	return hs, w, nil
}

// Update re-keys this member's own direct path with fresh entropy,
// returning the Handshake to broadcast.
func (g *Group) Update(freshSecret []byte) (*handshake.Handshake, error) {
	hs, err := g.State.ProposeUpdate(freshSecret)
	if err != nil {
		return nil, err
	}
	if err := g.State.Apply(hs); err != nil {
		return nil, err
	}
	return hs, nil
}

// Remove blanks removed's leaf and direct path and re-keys the root
// with fresh entropy, returning the Handshake to broadcast.
func (g *Group) Remove(removed uint32, freshSecret []byte) (*handshake.Handshake, error) {
	hs, err := g.State.ProposeRemove(removed, freshSecret)
	if err != nil {
		return nil, err
	}
	if err := g.State.Apply(hs); err != nil {
		return nil, err
	}
	return hs, nil
}

// Accept validates and applies a Handshake received from another
// member.
func (g *Group) Accept(hs *handshake.Handshake) error {
	return g.State.Apply(hs)
}

// Roster returns the credential bound to each leaf position.
func (g *Group) Roster() []credential.Credential {
	return g.State.Roster()
}
