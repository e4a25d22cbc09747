package handshake

import (
	"fmt"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
)

func malformedf(format string, args ...interface{}) error {
	return mlserr.MalformedWire(fmt.Sprintf(format, args...), nil)
}

func protocolf(format string, args ...interface{}) error {
	return mlserr.ProtocolMismatch(fmt.Sprintf(format, args...), nil)
}

func cryptof(format string, args ...interface{}) error {
	return mlserr.CryptoFailure(fmt.Sprintf(format, args...), nil)
}
