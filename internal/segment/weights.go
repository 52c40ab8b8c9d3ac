package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

const weightsFormat = "lakegrowth-convnet"

const weightsVersion = 1

type weightsFile struct {
	Format  string    `msgpack:"format"`
	Version int       `msgpack:"version"`
	In      int       `msgpack:"in"`
	Hidden  int       `msgpack:"hidden"`
	Params  []float64 `msgpack:"params"`
}

// Save writes the network's weights to path, creating parent directories.
func Save(n *ConvNet, path string) error {
	data, err := msgpack.Marshal(&weightsFile{
		Format:  weightsFormat,
		Version: weightsVersion,
		In:      n.In,
		Hidden:  n.Hidden,
		Params:  n.Params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}
	return nil
}

// Load reads a weights file written by Save.
func Load(path string) (*ConvNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	var wf weightsFile
	if err := msgpack.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode weights %s: %w", path, err)
	}
	if wf.Format != weightsFormat {
		return nil, fmt.Errorf("%s is not a model weights file (format %q)", path, wf.Format)
	}
	if wf.Version != weightsVersion {
		return nil, fmt.Errorf("unsupported weights version %d", wf.Version)
	}
	if wf.In <= 0 || wf.Hidden <= 0 || len(wf.Params) != paramCount(wf.In, wf.Hidden) {
		return nil, fmt.Errorf("%w: weights for %d->%d hold %d parameters", ErrShape, wf.In, wf.Hidden, len(wf.Params))
	}
	return &ConvNet{In: wf.In, Hidden: wf.Hidden, Params: wf.Params}, nil
}
