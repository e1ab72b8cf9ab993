package cmd

import (
	"fmt"

	"github.com/nextlevelbuilder/linecord/internal/config"
	"github.com/nextlevelbuilder/linecord/internal/store/file"
)

// openStores reads the config without credential checks and opens the
// persisted stores under data.dir.
func openStores() (*config.Config, *file.Stores, error) {
	cfg, err := config.Read(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, file.NewFileStores(cfg.Data.Dir), nil
}
