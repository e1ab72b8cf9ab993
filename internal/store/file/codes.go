package file

import (
	"sync"

	"github.com/nextlevelbuilder/linecord/internal/store"
)

// CodesFileName is the default file name of the pending binding code document.
const CodesFileName = "binding_codes.json"

// CodeFile stores pending binding codes as a JSON object keyed by code.
type CodeFile struct {
	path string
	mu   sync.Mutex
}

func NewCodeFile(path string) *CodeFile {
	return &CodeFile{path: path}
}

// Path returns the location of the backing file.
func (f *CodeFile) Path() string { return f.path }

func (f *CodeFile) LoadCodes() (map[string]store.BindingCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	codes := map[string]store.BindingCode{}
	if err := readDocument(f.path, &codes, map[string]store.BindingCode{}); err != nil {
		return nil, err
	}
	for code, bc := range codes {
		bc.Code = code
		codes[code] = bc
	}
	return codes, nil
}

func (f *CodeFile) SaveCodes(codes map[string]store.BindingCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if codes == nil {
		codes = map[string]store.BindingCode{}
	}
	return writeDocument(f.path, codes)
}
