package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

const (
	// DataFile stores plugin data below the data folder.
	DataFile = "data.yml"
	// LegacyDataFile is renamed to DataFile when found on first load.
	LegacyDataFile = "data.db"
)

func (p *Plugin) loadData() (*yamlconfig.Config, error) {
	path := filepath.Join(p.opts.DataDir, DataFile)
	legacy := filepath.Join(p.opts.DataDir, LegacyDataFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if _, lerr := os.Stat(legacy); lerr == nil {
			if err := os.Rename(legacy, path); err != nil {
				return nil, fmt.Errorf("renaming %s: %w", LegacyDataFile, err)
			}
			p.logger.Info("renamed legacy data file",
				zap.String("from", LegacyDataFile),
				zap.String("to", DataFile),
			)
		}
	}
	cfg := yamlconfig.New(p.logger)
	if err := cfg.LoadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", DataFile, err)
	}
	return cfg, nil
}

func (p *Plugin) reloadData() error {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	return p.data.Reload()
}

// Data runs fn with exclusive access to data.yml. Changes are kept in memory
// until SaveData or Stop.
//
// Precondition: Start must have succeeded.
func (p *Plugin) Data(fn func(cfg *yamlconfig.Config) error) error {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	return fn(p.data)
}

// SaveData writes data.yml.
func (p *Plugin) SaveData() error {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	if p.data == nil {
		return nil
	}
	if err := p.data.Save(); err != nil {
		return fmt.Errorf("saving %s: %w", DataFile, err)
	}
	return nil
}
