// Package db selects the concrete store driver from the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/herald/internal/profile"
	"github.com/hrygo/herald/store"
	"github.com/hrygo/herald/store/db/postgres"
	"github.com/hrygo/herald/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	}
	return nil, errors.Errorf("unknown db driver %q", profile.Driver)
}
