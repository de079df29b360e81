package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
)

var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands $VAR and ${VAR} from the environment. A ${VAR}
// naming an unset variable is an error listing every such name; a bare $VAR
// that is unset expands to "". $$ is a literal $.
func ExpandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	parts := strings.Split(s, "$$")
	var missing []string
	for i, p := range parts {
		for _, m := range bracedVar.FindAllStringSubmatch(p, -1) {
			if _, ok := os.LookupEnv(m[1]); !ok {
				missing = append(missing, m[1])
			}
		}
		parts[i] = os.ExpandEnv(p)
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(slices.Compact(missing), ", "))
	}
	return strings.Join(parts, "$"), nil
}

// expandAll expands each setting in place, in name order so the first error
// is stable.
func expandAll(targets map[string]*string) error {
	for _, name := range slices.Sorted(maps.Keys(targets)) {
		v, err := ExpandEnvStrict(*targets[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*targets[name] = v
	}
	return nil
}
