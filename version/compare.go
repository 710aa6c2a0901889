package version

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrMalformedProtocol = errors.New("malformed protocol version")

// Protocol is an electrum protocol version such as 1.4 or 1.4.2.
type Protocol []int

// ParseProtocol parses dot separated non negative numbers.
func ParseProtocol(s string) (Protocol, error) {
	if s == "" {
		return nil, errors.Wrap(ErrMalformedProtocol, "empty string")
	}
	fields := strings.Split(s, ".")
	p := make(Protocol, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrMalformedProtocol, "%q", s)
		}
		p = append(p, n)
	}
	return p, nil
}

// Compare returns -1, 0 or 1. Missing trailing parts count as 0, so 1.4
// equals 1.4.0.
func (p Protocol) Compare(other Protocol) int {
	for i := 0; i < len(p) || i < len(other); i++ {
		a, b := p.part(i), other.part(i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (p Protocol) part(i int) int {
	if i < len(p) {
		return p[i]
	}
	return 0
}

func (p Protocol) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// AtLeast reports whether version a is equal to or newer than b.
func AtLeast(a, b string) (bool, error) {
	pa, err := ParseProtocol(a)
	if err != nil {
		return false, err
	}
	pb, err := ParseProtocol(b)
	if err != nil {
		return false, err
	}
	return pa.Compare(pb) >= 0, nil
}
