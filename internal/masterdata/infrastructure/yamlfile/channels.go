// Package yamlfile stores the monitored channel list as a YAML document.
package yamlfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
)

// File is the on-disk layout of a channel list.
type File struct {
	Channels []masterdata.MonitorChannel `yaml:"channels"`
}

// Read decodes the raw channels of path without validating them.
// A missing file yields an empty list.
func Read(path string) ([]masterdata.MonitorChannel, error) {
	if path == "" {
		return nil, errors.New("channels file: empty path")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a channel list document. Unknown keys are rejected.
func Decode(data []byte) ([]masterdata.MonitorChannel, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("channels file: %w", err)
	}
	return file.Channels, nil
}

// Load reads path and builds the validated channel set.
func Load(path string) (*masterdata.ChannelSet, error) {
	channels, err := Read(path)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("channels file %s: no channels", path)
	}
	set, err := masterdata.NewChannelSet(channels)
	if err != nil {
		return nil, fmt.Errorf("channels file %s: %w", path, err)
	}
	return set, nil
}

// Write replaces path atomically with channels.
func Write(path string, channels []masterdata.MonitorChannel) error {
	if path == "" {
		return errors.New("channels file: empty path")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(File{Channels: channels}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}
