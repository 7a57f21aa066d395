package registry

import (
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"

	"github.com/TFMV/dwgate/pkg/errors"
)

// dotEnvSearchDepth is how many parent directories FindDotEnv climbs.
const dotEnvSearchDepth = 3

// FindDotEnv looks for a .env file in dir and up to three of its parents.
func FindDotEnv(dir string) (string, bool) {
	for i := 0; i <= dotEnvSearchDepth; i++ {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// ReadDotEnv parses a .env file. Single-quoted values are taken literally;
// unquoted and double-quoted values expand ${UPPER_CASE} references.
func ReadDotEnv(path string) (map[string]string, error) {
	env, err := gotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidRequest, "failed to read env file %s", path)
	}
	return env, nil
}

// LoadDotEnv sets variables from a .env file into the process environment
// without overriding variables that are already set. An empty path searches
// from the working directory. It returns the file that was loaded, or "" when
// none was found.
func LoadDotEnv(path string) (string, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, errors.CodeInternal, "failed to get working directory")
		}
		found, ok := FindDotEnv(wd)
		if !ok {
			return "", nil
		}
		path = found
	}

	vars, err := ReadDotEnv(path)
	if err != nil {
		return "", err
	}

	for k, v := range vars {
		if _, set := os.LookupEnv(k); set {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return "", errors.Wrapf(err, errors.CodeInternal, "failed to set %s", k)
		}
	}
	return path, nil
}
