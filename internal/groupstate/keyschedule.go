package groupstate

import (
	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
)

const secretSize = 32

// deriveEpochSecrets runs the epoch key schedule: InitSecret and
// commitSecret (the fresh entropy an Update/Remove's path contributes,
// or a zero-length slice for Init/Add, which contribute none) are
// combined via KDFExpand into a new InitSecret, ConfirmationKey, and
// ApplicationSecret for this epoch. There is no separate
// handshake/sender-data secret tier: only InitSecret, ConfirmationKey,
// and ApplicationSecret are tracked per epoch.
func (gs *GroupState) deriveEpochSecrets(commitSecret []byte) {
	chained := append(append([]byte(nil), gs.InitSecret...), commitSecret...)
	epochSecret := gs.Suite.KDFExpand(chained, "epoch-secret", secretSize)

	gs.InitSecret = gs.Suite.KDFExpand(epochSecret, "init", secretSize)
	gs.ConfirmationKey = gs.Suite.KDFExpand(epochSecret, "confirm", secretSize)
	gs.ApplicationSecret = gs.Suite.KDFExpand(epochSecret, "app", secretSize)
	gs.Suite.Zeroize(epochSecret)
}

// ApplicationRatchet is a per-sender hash ratchet chained off this
// epoch's ApplicationSecret: it derives a fresh (key, nonce) for every
// message generation from a running secret, with skipped generations
// cached for out-of-order delivery.
type ApplicationRatchet struct {
	suite          ciphersuite.Suite
	sender         uint32
	nextSecret     []byte
	nextGeneration uint32
	cache          map[uint32]keyAndNonce
}

type keyAndNonce struct {
	Key   []byte
	Nonce []byte
}

func newApplicationRatchet(suite ciphersuite.Suite, sender uint32, baseSecret []byte) *ApplicationRatchet {
	return &ApplicationRatchet{
		suite:      suite,
		sender:     sender,
		nextSecret: baseSecret,
		cache:      map[uint32]keyAndNonce{},
	}
}

// Next derives and caches the next (generation, key, nonce) triple,
// ratcheting the chain forward.
func (r *ApplicationRatchet) Next() (uint32, []byte, []byte) {
	key := r.suite.KDFExpand(r.nextSecret, "app-key", 32)
	nonce := r.suite.KDFExpand(r.nextSecret, "app-nonce", 12)
	secret := r.suite.KDFExpand(r.nextSecret, "app-secret", secretSize)

	generation := r.nextGeneration
	r.nextGeneration++
	r.suite.Zeroize(r.nextSecret)
	r.nextSecret = secret

	r.cache[generation] = keyAndNonce{Key: key, Nonce: nonce}
	return generation, append([]byte(nil), key...), append([]byte(nil), nonce...)
}

// Get returns the (key, nonce) for generation, ratcheting forward and
// caching intermediate generations as needed. Returns an error for an
// already-erased (expired) generation.
func (r *ApplicationRatchet) Get(generation uint32) ([]byte, []byte, error) {
	if kn, ok := r.cache[generation]; ok {
		return kn.Key, kn.Nonce, nil
	}
	if r.nextGeneration > generation {
		return nil, nil, protocolf("application ratchet: generation %d already expired", generation)
	}
	for r.nextGeneration < generation {
		r.Next()
	}
	_, key, nonce := r.Next()
	return key, nonce, nil
}

// Erase zeroizes and drops a cached generation, bounding how long a
// skipped message's key material survives in memory.
func (r *ApplicationRatchet) Erase(generation uint32) {
	kn, ok := r.cache[generation]
	if !ok {
		return
	}
	r.suite.Zeroize(kn.Key)
	r.suite.Zeroize(kn.Nonce)
	delete(r.cache, generation)
}

// ApplicationRatchetFor returns (creating if necessary) the per-sender
// hash ratchet rooted at this epoch's ApplicationSecret.
func (gs *GroupState) ApplicationRatchetFor(sender uint32) *ApplicationRatchet {
	if r, ok := gs.ratchets[sender]; ok {
		return r
	}
	base := gs.Suite.KDFExpand(gs.ApplicationSecret, "sender-base", secretSize)
	r := newApplicationRatchet(gs.Suite, sender, base)
	gs.ratchets[sender] = r
	return r
}
