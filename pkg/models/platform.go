// Package models provides data structures used throughout the gateway.
package models

import (
	"strings"

	"github.com/TFMV/dwgate/pkg/errors"
)

// PlatformKind identifies a backend family.
type PlatformKind string

const (
	// KindMaxCompute is the columnar batch warehouse.
	KindMaxCompute PlatformKind = "MAXCOMPUTE"
	// KindDataWorks is an alias of KindMaxCompute used by DataWorks projects.
	KindDataWorks PlatformKind = "DATAWORKS"
	// KindHologres is the Postgres-compatible OLAP engine.
	KindHologres PlatformKind = "HOLOGRES"
	// KindMySQL is a MySQL transactional store.
	KindMySQL PlatformKind = "MYSQL"
	// KindPolarDB is a MySQL-compatible transactional store.
	KindPolarDB PlatformKind = "POLARDB"
	// KindRedshift is the cloud warehouse.
	KindRedshift PlatformKind = "REDSHIFT"
)

// AllKinds lists every canonical kind in catalog order.
var AllKinds = []PlatformKind{KindMaxCompute, KindHologres, KindMySQL, KindPolarDB, KindRedshift}

// ParsePlatformKind accepts any case, plus the HOLO shorthand for HOLOGRES.
func ParsePlatformKind(name string) (PlatformKind, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "MAXCOMPUTE":
		return KindMaxCompute, nil
	case "DATAWORKS":
		return KindDataWorks, nil
	case "HOLOGRES", "HOLO":
		return KindHologres, nil
	case "MYSQL":
		return KindMySQL, nil
	case "POLARDB":
		return KindPolarDB, nil
	case "REDSHIFT":
		return KindRedshift, nil
	}
	return "", errors.UnknownPlatform(name)
}

// Canonical folds aliases onto the kind that owns the driver and catalog entry.
func (k PlatformKind) Canonical() PlatformKind {
	if k == KindDataWorks {
		return KindMaxCompute
	}
	return k
}

// String implements fmt.Stringer.
func (k PlatformKind) String() string {
	return string(k)
}

// DefaultPort returns the port used when none is configured. Zero means the
// kind is reached through an endpoint URL instead.
func (k PlatformKind) DefaultPort() int {
	switch k.Canonical() {
	case KindHologres:
		return 80
	case KindRedshift:
		return 5439
	case KindMySQL, KindPolarDB:
		return 3306
	}
	return 0
}

// IsMySQLFamily reports whether the kind speaks the MySQL wire protocol.
func (k PlatformKind) IsMySQLFamily() bool {
	return k == KindMySQL || k == KindPolarDB
}

// IsPostgresFamily reports whether the kind speaks the Postgres wire protocol.
func (k PlatformKind) IsPostgresFamily() bool {
	return k == KindHologres || k == KindRedshift
}
