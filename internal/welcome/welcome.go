package welcome

import (
	"github.com/kindlyrobotics/ratchet/internal/ciphersuite"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

// WelcomeInfo is the payload sealed inside a Welcome: enough of the
// current Group State for a newcomer to synchronize without having
// observed any prior handshake.
type WelcomeInfo struct {
	Epoch             uint32
	Roster            []wire.Opaque2 `tls:"head=4"` // serialized credential.Credential entries, one per roster slot (holes are zero-length)
	TreePublicKeys    []wire.Opaque2 `tls:"head=4"` // node index -> public key, zero-length for blank nodes
	MyLeafIndex       uint32
	InitSecret        []byte `tls:"head=1"`
	ConfirmationKey   []byte `tls:"head=1"`
	ApplicationSecret []byte `tls:"head=1"`
	TranscriptHash    []byte `tls:"head=1"`
}

// Welcome is the transport-level bootstrap blob: an ECIES-encrypted
// WelcomeInfo keyed to a specific (user_init_key_id, cipher_suite)
// pair.
type Welcome struct {
	UserInitKeyID        []byte `tls:"head=1"`
	CipherSuite          uint16
	EncryptedWelcomeInfo []byte `tls:"head=4"`
}

// Seal encrypts info to the joiner's init key under the given cipher
// suite, identified on the wire by (userInitKeyID, suite.ID()) so the
// joiner can pick the matching entry out of its own UserInitKey.
func Seal(suite ciphersuite.Suite, userInitKeyID, joinerPub []byte, info *WelcomeInfo) (*Welcome, error) {
	plaintext, err := marshalSignable(info)
	if err != nil {
		return nil, err
	}
	ct, err := suite.ECIESEncrypt(joinerPub, plaintext)
	if err != nil {
		return nil, cryptof("seal welcome info: %v", err)
	}
	return &Welcome{
		UserInitKeyID:        append([]byte(nil), userInitKeyID...),
		CipherSuite:          suite.ID(),
		EncryptedWelcomeInfo: ct,
	}, nil
}

// Open decrypts a Welcome with the joiner's private key for the
// matching UserInitKey entry, recovering the WelcomeInfo. Callers must
// have already confirmed w.UserInitKeyID/CipherSuite match a
// UserInitKey they published and retained the private key for.
func Open(joinerPriv []byte, w *Welcome) (*WelcomeInfo, error) {
	suite, ok := ciphersuite.ByID(w.CipherSuite)
	if !ok {
		return nil, protocolf("welcome names unregistered cipher suite %d", w.CipherSuite)
	}
	plaintext, err := suite.ECIESDecrypt(joinerPriv, w.EncryptedWelcomeInfo)
	if err != nil {
		return nil, cryptof("open welcome: %v", err)
	}
	var info WelcomeInfo
	if err := unmarshalSignable(plaintext, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
