package identity

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseSourceID parses an external identity (an OAuth subject) as a positive
// decimal integer.
func ParseSourceID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("identity: source id %q is not a decimal integer", s)
	}
	if id.Sign() <= 0 {
		return nil, fmt.Errorf("identity: source id %q must be positive", s)
	}
	return id, nil
}
