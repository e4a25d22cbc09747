package ratchettree

import (
	"golang.org/x/sync/errgroup"

	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/treemath"
)

const pathSecretLabel = "path-secret"
const pathSecretSize = 32

// RekeyPath returns the node indices a path update re-keys above leaf
// (a node index, not a leaf position): the direct path extended with
// the root. The root is included so that pairing the sealed secret at
// position m with copath entry m covers every live member outside the
// leaf's own subtree; the secret installed at the root is the one the
// whole group derives the next epoch from. Empty when leaf is itself
// the root. Its length always equals the copath's.
func RekeyPath(leaf, n uint32) []uint32 {
	root := treemath.Root(n)
	if leaf == root {
		return nil
	}
	return append(treemath.DirectPath(leaf, n), root)
}

// BuildDirectPath runs the sender algorithm: starting from leafSecret
// at actorLeaf, it derives a fresh path secret and DH keypair for
// every node on the actor's re-key path, encrypts each secret to the
// resolution of the corresponding copath node, and returns the
// resulting DirectPathMessage together with the locally retained
// (node -> private key) pairs the caller should install. Intermediate
// path secrets are wiped before returning.
func BuildDirectPath(suite ciphersuite.Suite, tree *RatchetTree, actorLeaf uint32, leafSecret []byte) (*DirectPathMessage, map[uint32][]byte, error) {
	n := tree.NumLeaves()
	leaf := actorLeaf * 2
	path := RekeyPath(leaf, n)
	copath := treemath.Copath(leaf, n)

	secrets := make([][]byte, len(path)+1)
	pubKeys := make([][]byte, len(path)+1)
	privKeys := make([][]byte, len(path)+1)
	defer func() {
		for _, s := range secrets[1:] {
			suite.Zeroize(s)
		}
	}()

	secrets[0] = leafSecret
	for m := range secrets {
		if m > 0 {
			secrets[m] = suite.KDFExpand(secrets[m-1], pathSecretLabel, pathSecretSize)
		}
		pub, priv, err := suite.DHKeyGen(secrets[m])
		if err != nil {
			return nil, nil, cryptof("derive path keypair at depth %d: %v", m, err)
		}
		pubKeys[m] = pub
		privKeys[m] = priv
	}

	msg := &DirectPathMessage{Nodes: make([]DirectPathNodeMessage, len(path)+1)}
	msg.Nodes[0] = DirectPathNodeMessage{PublicKey: pubKeys[0]}

	for m := range path {
		resolution := tree.Resolution(copath[m])
		sealed := make([]sealedSecret, len(resolution))
		var g errgroup.Group
		for r, memberNode := range resolution {
			r, memberNode := r, memberNode
			g.Go(func() error {
				memberPub, ok := tree.PublicKey(memberNode)
				if !ok {
					return protocolf("resolution member node %d is blank", memberNode)
				}
				ct, err := suite.ECIESEncrypt(memberPub, secrets[m+1])
				if err != nil {
					return cryptof("seal path secret to node %d: %v", memberNode, err)
				}
				sealed[r] = sealedSecret{Data: ct}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		msg.Nodes[m+1] = DirectPathNodeMessage{PublicKey: pubKeys[m+1], NodeSecrets: sealed}
	}

	held := make(map[uint32][]byte, len(path)+1)
	held[leaf] = privKeys[0]
	for m, node := range path {
		held[node] = privKeys[m+1]
	}
	return msg, held, nil
}

// ConsumeDirectPath runs the receiver algorithm for a
// DirectPathMessage sent along actorLeaf's re-key path. receiverLeaf
// is the local party's own leaf position; exactly one copath node's
// subtree contains it, and the receiver must hold a private key for
// some entry of that node's resolution. Returns the (node -> private
// key) pairs the caller should install, covering every node from the
// decryption point up to and including the root.
func ConsumeDirectPath(suite ciphersuite.Suite, tree *RatchetTree, actorLeaf, receiverLeaf uint32, msg *DirectPathMessage) (map[uint32][]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	n := tree.NumLeaves()
	leaf := actorLeaf * 2
	path := RekeyPath(leaf, n)
	copath := treemath.Copath(leaf, n)

	if len(msg.Nodes) != len(path)+1 {
		return nil, protocolf("direct path message has %d node entries, want %d", len(msg.Nodes), len(path)+1)
	}

	if receiverLeaf == actorLeaf {
		return nil, protocolf("direct path message names its own actor as receiver")
	}

	var decryptionPoint = -1
	var secret []byte
	for m := range path {
		if !IsAncestor(copath[m], receiverLeaf, n) {
			continue
		}
		resolution := tree.Resolution(copath[m])
		found := false
		for r, memberNode := range resolution {
			priv, ok := tree.PrivateKey(memberNode)
			if !ok {
				continue
			}
			if r >= len(msg.Nodes[m+1].NodeSecrets) {
				return nil, protocolf("node %d secrets shorter than its resolution", m+1)
			}
			pt, err := suite.ECIESDecrypt(priv, msg.Nodes[m+1].NodeSecrets[r].Data)
			if err != nil {
				return nil, cryptof("open sealed path secret at depth %d: %v", m+1, err)
			}
			secret = pt
			found = true
			break
		}
		if !found {
			return nil, protocolf("receiver holds no private key in the resolution at depth %d", m+1)
		}
		decryptionPoint = m
		break
	}

	if decryptionPoint < 0 {
		return nil, protocolf("receiver's leaf is not covered by any copath node on this direct path")
	}

	held := make(map[uint32][]byte, len(path)-decryptionPoint)
	for m := decryptionPoint; m < len(path); m++ {
		pub, priv, err := suite.DHKeyGen(secret)
		if err != nil {
			suite.Zeroize(secret)
			return nil, cryptof("re-derive path keypair at depth %d: %v", m+1, err)
		}
		if !bytesEqual(pub, msg.Nodes[m+1].PublicKey) {
			suite.Zeroize(secret)
			return nil, protocolf("derived public key mismatch at depth %d", m+1)
		}
		held[path[m]] = priv
		next := suite.KDFExpand(secret, pathSecretLabel, pathSecretSize)
		suite.Zeroize(secret)
		secret = next
	}
	suite.Zeroize(secret)
	return held, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
