package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	domainconfig "github.com/felixgeelhaar/itinerary/domain/config"
)

// envPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// expand substitutes environment references in input. Unset plain
// references become empty unless strict is set.
func expand(input string, strict bool) (string, error) {
	var missing []string

	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case ":-":
			if !ok || value == "" {
				return arg
			}
		case ":?":
			if !ok || value == "" {
				missing = append(missing, fmt.Sprintf("%s: %s", name, arg))
				return match
			}
		default:
			if !ok && strict {
				missing = append(missing, name)
			}
		}
		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpandEnv expands environment references, leaving unset ones empty.
func ExpandEnv(input string) string {
	out, _ := expand(input, false)
	return out
}

// ExpandEnvStrict expands environment references and fails on unset ones.
func ExpandEnvStrict(input string) (string, error) {
	return expand(input, true)
}
