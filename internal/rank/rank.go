// Package rank generates lexicographically sortable keys used to order
// siblings independently of array position.
//
// Keys are strings over the base-62 alphabet 0-9A-Za-z, read as fractions in
// [0, 1). A valid key is non-empty and never ends in '0'; the empty string
// stands for the open lower or upper bound.
package rank

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base   = len(digits)
)

var (
	ErrOrder   = errors.New("rank: lower bound must sort before upper bound")
	ErrInvalid = errors.New("rank: invalid key")
)

// Valid reports whether key can be used as a bound.
func Valid(key string) bool {
	if key == "" || key[len(key)-1] == '0' {
		return false
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return false
		}
	}
	return true
}

// Between returns a key strictly between a and b. Either bound may be empty.
func Between(a, b string) (string, error) {
	if (a != "" && !Valid(a)) || (b != "" && !Valid(b)) {
		return "", ErrInvalid
	}
	if a != "" && b != "" && a >= b {
		return "", errors.Wrapf(ErrOrder, "%q >= %q", a, b)
	}
	return midpoint(a, b), nil
}

// NBetween returns n ascending keys strictly between a and b.
func NBetween(a, b string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	mid, err := Between(a, b)
	if err != nil {
		return nil, err
	}
	left, err := NBetween(a, mid, n/2)
	if err != nil {
		return nil, err
	}
	right, err := NBetween(mid, b, n-n/2-1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	out = append(out, left...)
	out = append(out, mid)
	return append(out, right...), nil
}

func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(suffix(a, n), b[n:])
		}
	}

	lo := 0
	if a != "" {
		lo = strings.IndexByte(digits, a[0])
	}
	hi := base
	if b != "" {
		hi = strings.IndexByte(digits, b[0])
	}
	if hi-lo > 1 {
		return string(digits[(lo+hi)/2])
	}
	if b != "" && len(b) > 1 {
		return b[:1]
	}
	return string(digits[lo]) + midpoint(suffix(a, 1), "")
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return '0'
}

func suffix(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	return s[n:]
}
