package welcome

import (
	"fmt"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
	"github.com/kindlyrobotics/ratchet/internal/wire"
)

func protocolf(format string, args ...interface{}) error {
	return mlserr.ProtocolMismatch(fmt.Sprintf(format, args...), nil)
}

func cryptof(format string, args ...interface{}) error {
	return mlserr.CryptoFailure(fmt.Sprintf(format, args...), nil)
}

// marshalSignable is wire.Marshal with a package-local name, kept
// distinct so the intent at each call site (encode vs. encode-to-sign)
// reads clearly.
func marshalSignable(v interface{}) ([]byte, error) {
	return wire.Marshal(v)
}

func unmarshalSignable(data []byte, v interface{}) error {
	return wire.Unmarshal(data, v)
}
