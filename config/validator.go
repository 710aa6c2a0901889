package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is matched by every error returned from Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Validator is one config setting. key names it the way it is written in the
// config file.
type Validator interface {
	key() string
	validate() error
}

// Validate checks all settings and reports every failing one, so that a bad
// config file can be fixed in one go.
func Validate(validators ...Validator) error {
	var failures []string
	for _, v := range validators {
		if err := v.validate(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", v.key(), err))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.Wrap(ErrInvalidConfig, strings.Join(failures, "; "))
}
