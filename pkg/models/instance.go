package models

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/TFMV/dwgate/pkg/errors"
)

// ConfigSource records which environment form produced an instance.
type ConfigSource string

const (
	// SourceLegacy is the single {KIND}_CONNECTION URL form.
	SourceLegacy ConfigSource = "legacy"
	// SourceMulti is the {KIND}_{REGION}_{PROJECT}_{PARAM} form.
	SourceMulti ConfigSource = "multi"
)

// Parameter names recognised in the multi-instance environment form.
const (
	ParamType      = "TYPE"
	ParamHost      = "HOST"
	ParamPort      = "PORT"
	ParamUser      = "USER"
	ParamPassword  = "PASSWORD"
	ParamDB        = "DB"
	ParamDBName    = "DBNAME"
	ParamDatabase  = "DATABASE"
	ParamSSLMode   = "SSLMODE"
	ParamProject   = "PROJECT"
	ParamAccessID  = "ACCESSID"
	ParamAccessKey = "ACCESSKEY"
	ParamEndpoint  = "ENDPOINT"
	ParamRegion    = "REGION"
)

// KnownParams is the set of PARAM suffixes the loader accepts.
var KnownParams = map[string]bool{
	ParamType: true, ParamHost: true, ParamPort: true, ParamUser: true,
	ParamPassword: true, ParamDB: true, ParamDBName: true, ParamDatabase: true,
	ParamSSLMode: true, ParamProject: true, ParamAccessID: true,
	ParamAccessKey: true, ParamEndpoint: true, ParamRegion: true,
}

const redactedValue = "****"

// MaxComputeConfig holds connection settings for MAXCOMPUTE and DATAWORKS.
type MaxComputeConfig struct {
	Project   string `json:"project"`
	AccessID  string `json:"access_id"`
	AccessKey string `json:"access_key"`
	Endpoint  string `json:"endpoint"`
}

// PostgresConfig holds connection settings for HOLOGRES and REDSHIFT.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// MySQLConfig holds connection settings for MYSQL and POLARDB.
type MySQLConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// InstanceConfig describes one configured backend instance. Exactly one of
// the variant pointers is set, matching Kind.
type InstanceConfig struct {
	ID         string            `json:"id"`
	Kind       PlatformKind      `json:"kind"`
	Source     ConfigSource      `json:"source"`
	MaxCompute *MaxComputeConfig `json:"maxcompute,omitempty"`
	Postgres   *PostgresConfig   `json:"postgres,omitempty"`
	MySQL      *MySQLConfig      `json:"mysql,omitempty"`
}

// NewInstanceConfig validates params for kind and builds the matching variant.
// Param keys are the upper-case PARAM names; TYPE is not consulted here.
func NewInstanceConfig(id string, kind PlatformKind, params map[string]string) (InstanceConfig, error) {
	if id == "" {
		return InstanceConfig{}, errors.New(errors.CodeInvalidRequest, "instance id is required")
	}
	cfg := InstanceConfig{ID: id, Kind: kind, Source: SourceMulti}

	switch kind.Canonical() {
	case KindMaxCompute:
		if err := requireParams(id, params, ParamProject, ParamAccessID, ParamAccessKey, ParamEndpoint); err != nil {
			return InstanceConfig{}, err
		}
		cfg.MaxCompute = &MaxComputeConfig{
			Project:   params[ParamProject],
			AccessID:  params[ParamAccessID],
			AccessKey: params[ParamAccessKey],
			Endpoint:  params[ParamEndpoint],
		}
	case KindHologres, KindRedshift:
		host, port, user, password, db, err := serverParams(id, kind, params)
		if err != nil {
			return InstanceConfig{}, err
		}
		cfg.Postgres = &PostgresConfig{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Database: db,
			SSLMode:  params[ParamSSLMode],
		}
	case KindMySQL, KindPolarDB:
		host, port, user, password, db, err := serverParams(id, kind, params)
		if err != nil {
			return InstanceConfig{}, err
		}
		cfg.MySQL = &MySQLConfig{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Database: db,
		}
	default:
		return InstanceConfig{}, errors.UnknownPlatform(string(kind))
	}
	return cfg, nil
}

func serverParams(id string, kind PlatformKind, params map[string]string) (host string, port int, user, password, db string, err error) {
	db = firstNonEmpty(params, ParamDB, ParamDBName, ParamDatabase)
	dbParam := ParamDB
	if kind.Canonical() == KindHologres {
		dbParam = ParamDBName
	}

	var missing []string
	for _, p := range []string{ParamHost, ParamUser, ParamPassword} {
		if params[p] == "" {
			missing = append(missing, p)
		}
	}
	if db == "" {
		missing = append(missing, dbParam)
	}
	if len(missing) > 0 {
		return "", 0, "", "", "", missingParamsError(id, missing)
	}

	port = kind.DefaultPort()
	if raw := params[ParamPort]; raw != "" {
		port, err = strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, "", "", "", errors.Newf(errors.CodeInvalidRequest, "instance %s: invalid PORT %q", id, raw)
		}
	}
	return params[ParamHost], port, params[ParamUser], params[ParamPassword], db, nil
}

func requireParams(id string, params map[string]string, names ...string) error {
	var missing []string
	for _, n := range names {
		if params[n] == "" {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return missingParamsError(id, missing)
	}
	return nil
}

func missingParamsError(id string, missing []string) error {
	sort.Strings(missing)
	return errors.Newf(errors.CodeInvalidRequest, "instance %s: missing required parameters: %s", id, strings.Join(missing, ", ")).
		WithDetail("missing", missing)
}

func firstNonEmpty(params map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := params[k]; v != "" {
			return v
		}
	}
	return ""
}

// Redacted returns a copy with secrets masked, safe to log or display.
func (c InstanceConfig) Redacted() InstanceConfig {
	out := c
	if c.MaxCompute != nil {
		mc := *c.MaxCompute
		mc.AccessKey = redactedValue
		out.MaxCompute = &mc
	}
	if c.Postgres != nil {
		pg := *c.Postgres
		pg.Password = redactedValue
		out.Postgres = &pg
	}
	if c.MySQL != nil {
		my := *c.MySQL
		my.Password = redactedValue
		out.MySQL = &my
	}
	return out
}

// Target is a short, secret-free description of where the instance lives.
func (c InstanceConfig) Target() string {
	switch {
	case c.MaxCompute != nil:
		return fmt.Sprintf("%s (project %s)", c.MaxCompute.Endpoint, c.MaxCompute.Project)
	case c.Postgres != nil:
		return net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)) + "/" + c.Postgres.Database
	case c.MySQL != nil:
		return net.JoinHostPort(c.MySQL.Host, strconv.Itoa(c.MySQL.Port)) + "/" + c.MySQL.Database
	}
	return ""
}
