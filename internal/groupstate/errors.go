package groupstate

import (
	"fmt"

	"github.com/kindlyrobotics/ratchet/internal/mlserr"
)

func protocolf(format string, args ...interface{}) error {
	return mlserr.ProtocolMismatch(fmt.Sprintf(format, args...), nil)
}

func cryptof(format string, args ...interface{}) error {
	return mlserr.CryptoFailure(fmt.Sprintf(format, args...), nil)
}
