package file

import (
	"path/filepath"
)

// Stores groups the file-backed stores of one data directory.
type Stores struct {
	Channels *ChannelFile
	Codes    *CodeFile
}

// NewFileStores creates the sync channel and binding code stores under dataDir.
func NewFileStores(dataDir string) *Stores {
	return &Stores{
		Channels: NewChannelFile(filepath.Join(dataDir, ChannelsFileName)),
		Codes:    NewCodeFile(filepath.Join(dataDir, CodesFileName)),
	}
}
