// Package registry loads backend instance configuration from the environment
// and owns the live connection handle of every configured instance.
package registry

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

var (
	// {KIND}_{REGION}_{PROJECT}_{PARAM}
	multiKeyRe = regexp.MustCompile(`^(MAXCOMPUTE|DATAWORKS|HOLOGRES|HOLO|MYSQL|POLARDB|REDSHIFT)_([A-Z0-9]+)_([A-Z0-9]+)_([A-Z]+)$`)
	// {KIND}_CONNECTION
	legacyKeyRe = regexp.MustCompile(`^(MAXCOMPUTE|HOLOGRES|MYSQL|POLARDB|REDSHIFT)_CONNECTION$`)
)

// LegacyEnvVars lists the single-URL variables in catalog order.
var LegacyEnvVars = []string{
	"MAXCOMPUTE_CONNECTION",
	"HOLOGRES_CONNECTION",
	"MYSQL_CONNECTION",
	"POLARDB_CONNECTION",
	"REDSHIFT_CONNECTION",
}

// SkippedInstance explains why a configured instance was not loaded.
type SkippedInstance struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// LoadResult is the outcome of scanning an environment.
type LoadResult struct {
	Instances map[string]models.InstanceConfig `json:"instances"`
	Fixes     []string                         `json:"fixes,omitempty"`
	Skipped   []SkippedInstance                `json:"skipped,omitempty"`
}

// IDs returns the loaded instance ids, sorted.
func (r *LoadResult) IDs() []string {
	ids := make([]string, 0, len(r.Instances))
	for id := range r.Instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// fragment accumulates the params of one multi-instance id.
type fragment struct {
	id     string
	prefix string
	kind   string
	params map[string]string
}

// LoadConfig scans KEY=VALUE entries, as returned by os.Environ, for backend
// instances. Entries are read in order and later duplicates win. Invalid
// instances are reported in Skipped rather than failing the load.
func LoadConfig(environ []string) *LoadResult {
	result := &LoadResult{Instances: make(map[string]models.InstanceConfig)}

	fragments := make(map[string]*fragment)
	legacy := make(map[string]string)

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		if m := legacyKeyRe.FindStringSubmatch(key); m != nil {
			legacy[m[1]] = value
			continue
		}

		m := multiKeyRe.FindStringSubmatch(key)
		if m == nil || !models.KnownParams[m[4]] {
			continue
		}

		prefix := m[1] + "_" + m[2] + "_" + m[3]
		id := strings.ToLower(prefix)
		f, exists := fragments[id]
		if !exists {
			f = &fragment{id: id, prefix: prefix, kind: m[1], params: make(map[string]string)}
			fragments[id] = f
		}
		f.params[m[4]] = value
	}

	ids := make([]string, 0, len(fragments))
	for id := range fragments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		f := fragments[id]
		result.Fixes = append(result.Fixes, autoFix(f)...)

		cfg, err := buildMulti(f)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedInstance{ID: id, Reason: errors.GetMessage(err)})
			continue
		}
		result.Instances[id] = cfg
	}

	kinds := make([]string, 0, len(legacy))
	for kind := range legacy {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, name := range kinds {
		id := strings.ToLower(name)
		kind, _ := models.ParsePlatformKind(name)

		cfg, err := parseLegacyURL(id, kind, legacy[name])
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedInstance{ID: id, Reason: errors.GetMessage(err)})
			continue
		}
		result.Instances[id] = cfg
	}

	return result
}

func buildMulti(f *fragment) (models.InstanceConfig, error) {
	typ := f.params[models.ParamType]
	if typ == "" {
		return models.InstanceConfig{}, errors.Newf(errors.CodeInvalidRequest, "instance %s: missing %s_TYPE", f.id, f.prefix)
	}

	kind, err := models.ParsePlatformKind(typ)
	if err != nil {
		return models.InstanceConfig{}, errors.Newf(errors.CodeInvalidRequest, "instance %s: unknown TYPE %q", f.id, typ)
	}

	params := make(map[string]string, len(f.params))
	for k, v := range f.params {
		params[k] = v
	}
	for _, k := range []string{models.ParamUser, models.ParamPassword} {
		if v, ok := params[k]; ok {
			params[k] = unescape(v)
		}
	}

	return models.NewInstanceConfig(f.id, kind, params)
}

// unescape percent-decodes credentials written URL-encoded (BASIC%24user),
// keeping the raw value when it is not valid encoding.
func unescape(v string) string {
	if !strings.Contains(v, "%") {
		return v
	}
	if out, err := url.PathUnescape(v); err == nil {
		return out
	}
	return v
}

// parseLegacyURL maps a {KIND}_CONNECTION URL onto instance params. The kind
// comes from the variable name; the scheme is only checked for shape.
func parseLegacyURL(id string, kind models.PlatformKind, raw string) (models.InstanceConfig, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return models.InstanceConfig{}, errors.Newf(errors.CodeInvalidRequest, "instance %s: %s_CONNECTION is not a URL", id, strings.ToUpper(id))
	}

	scheme := u.Scheme
	if i := strings.IndexByte(scheme, '+'); i >= 0 {
		scheme = scheme[:i]
	}

	params := make(map[string]string)
	var password string
	if u.User != nil {
		password, _ = u.User.Password()
	}

	switch kind.Canonical() {
	case models.KindMaxCompute:
		if scheme != "maxcompute" && scheme != "odps" {
			return models.InstanceConfig{}, unexpectedScheme(id, u.Scheme)
		}
		params[models.ParamProject] = u.Hostname()
		if u.User != nil {
			params[models.ParamAccessID] = u.User.Username()
		}
		params[models.ParamAccessKey] = password
		params[models.ParamEndpoint] = u.Query().Get("endpoint")
	default:
		if !schemeMatches(kind, scheme) {
			return models.InstanceConfig{}, unexpectedScheme(id, u.Scheme)
		}
		params[models.ParamHost] = u.Hostname()
		params[models.ParamPort] = u.Port()
		if u.User != nil {
			params[models.ParamUser] = u.User.Username()
		}
		params[models.ParamPassword] = password
		params[models.ParamDB] = strings.TrimPrefix(u.Path, "/")
		params[models.ParamSSLMode] = u.Query().Get("sslmode")
	}

	cfg, err := models.NewInstanceConfig(id, kind, params)
	if err != nil {
		return models.InstanceConfig{}, err
	}
	cfg.Source = models.SourceLegacy
	return cfg, nil
}

func schemeMatches(kind models.PlatformKind, scheme string) bool {
	switch kind {
	case models.KindMySQL, models.KindPolarDB:
		return scheme == "mysql"
	case models.KindHologres:
		return scheme == "postgresql" || scheme == "postgres"
	case models.KindRedshift:
		return scheme == "redshift" || scheme == "postgresql" || scheme == "postgres"
	}
	return false
}

func unexpectedScheme(id, scheme string) error {
	return errors.Newf(errors.CodeInvalidRequest, "instance %s: unsupported URL scheme %q", id, scheme)
}
