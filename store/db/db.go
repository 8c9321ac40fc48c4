package db

import (
	"github.com/pkg/errors"

	"github.com/itregistry/regrelay/internal/profile"
	"github.com/itregistry/regrelay/store"
	"github.com/itregistry/regrelay/store/db/jsonfile"
	"github.com/itregistry/regrelay/store/db/sqlite"
)

// NewDriver creates a preference store driver based on the profile.
// jsonfile is the default and keeps the historical human-diffable file
// format; sqlite trades that for row-level writes at larger subscriber
// counts.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "jsonfile":
		driver, err := jsonfile.NewDB(profile.Data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create jsonfile driver")
		}
		return driver, nil
	case "sqlite":
		driver, err := sqlite.NewDB(profile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create sqlite driver")
		}
		return driver, nil
	default:
		return nil, errors.Errorf("unknown store driver: %q", profile.Driver)
	}
}
