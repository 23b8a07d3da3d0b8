package eosio

import (
	"fmt"
	"strings"
)

// NameToUint64 encodes an account or action name into its 64-bit on-chain
// form. Names are up to 12 characters of [a-z1-5.], with an optional 13th
// character restricted to [a-j1-5.].
func NameToUint64(name string) (uint64, error) {
	if len(name) > 13 {
		return 0, fmt.Errorf("name %q longer than 13 characters", name)
	}
	var out uint64
	for i := 0; i < len(name); i++ {
		c, ok := nameSymbol(name[i])
		if !ok {
			return 0, fmt.Errorf("name %q has invalid character %q", name, name[i])
		}
		if i < 12 {
			out |= (c & 0x1f) << (64 - 5*(i+1))
			continue
		}
		if c > 0x0f {
			return 0, fmt.Errorf("name %q has invalid 13th character %q", name, name[i])
		}
		out |= c & 0x0f
	}
	return out, nil
}

// Uint64ToName is the inverse of NameToUint64.
func Uint64ToName(value uint64) string {
	const charmap = ".12345abcdefghijklmnopqrstuvwxyz"
	out := make([]byte, 13)
	tmp := value
	for i := 0; i <= 12; i++ {
		var c byte
		if i == 0 {
			c = charmap[tmp&0x0f]
			tmp >>= 4
		} else {
			c = charmap[tmp&0x1f]
			tmp >>= 5
		}
		out[12-i] = c
	}
	return strings.TrimRight(string(out), ".")
}

func nameSymbol(c byte) (uint64, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6, true
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1, true
	case c == '.':
		return 0, true
	default:
		return 0, false
	}
}
