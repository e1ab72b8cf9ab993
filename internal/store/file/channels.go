package file

import (
	"sync"

	"github.com/nextlevelbuilder/linecord/internal/store"
)

// ChannelsFileName is the default file name of the sync channel document.
const ChannelsFileName = "sync_channels.json"

// ChannelFile stores sync channels as a JSON array.
type ChannelFile struct {
	path string
	mu   sync.Mutex
}

func NewChannelFile(path string) *ChannelFile {
	return &ChannelFile{path: path}
}

// Path returns the location of the backing file.
func (f *ChannelFile) Path() string { return f.path }

func (f *ChannelFile) LoadChannels() ([]store.SyncChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	channels := []store.SyncChannel{}
	if err := readDocument(f.path, &channels, []store.SyncChannel{}); err != nil {
		return nil, err
	}
	return channels, nil
}

func (f *ChannelFile) SaveChannels(channels []store.SyncChannel) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if channels == nil {
		channels = []store.SyncChannel{}
	}
	return writeDocument(f.path, channels)
}
