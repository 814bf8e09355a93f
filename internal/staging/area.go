package staging

import (
	"errors"
	"fmt"
	"os"

	"github.com/atinyakov/BudgetKeeper/internal/dataset/sqldb"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/local"
)

// Area is one staging database: a fresh file in the staging directory and
// the SQLite dataset opened on it.
type Area struct {
	FS      *local.FS
	File    string
	Dataset *sqldb.Store
	path    string
}

// Open reserves a new staging file in dir. Nothing is written until the
// dataset is initialized or the file is written through FS.
func Open(dir string) (*Area, error) {
	fsys, err := local.New(dir)
	if err != nil {
		return nil, fmt.Errorf("open staging directory: %w", err)
	}
	name := Name()
	p, err := fsys.Abs(name)
	if err != nil {
		return nil, err
	}
	return &Area{FS: fsys, File: name, Dataset: sqldb.NewSQLite(p), path: p}, nil
}

// Path returns the OS path of the staging database.
func (a *Area) Path() string { return a.path }

// Discard closes the dataset and removes the staging file and its journal.
func (a *Area) Discard() error {
	errs := []error{a.Dataset.Close()}
	for _, p := range []string{a.path, a.path + JournalSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
