package masterdata

import (
	"errors"
	"fmt"
)

// ErrDuplicateChannel is returned when two channels share a name.
var ErrDuplicateChannel = errors.New("channel set: duplicate name")

// ChannelSet is the immutable, ordered list of monitored channels.
type ChannelSet struct {
	channels []MonitorChannel
	byName   map[string]int
	byAsset  map[string]int
}

// NewChannelSet validates channels and builds the lookup indexes.
func NewChannelSet(channels []MonitorChannel) (*ChannelSet, error) {
	set := &ChannelSet{
		channels: make([]MonitorChannel, 0, len(channels)),
		byName:   make(map[string]int, len(channels)),
		byAsset:  make(map[string]int, len(channels)),
	}
	for _, raw := range channels {
		channel := raw.WithDefaults()
		if err := channel.Validate(); err != nil {
			return nil, err
		}
		if _, ok := set.byName[channel.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateChannel, channel.Name)
		}
		idx := len(set.channels)
		set.channels = append(set.channels, channel)
		set.byName[channel.Name] = idx
		if _, ok := set.byAsset[channel.AssetID]; !ok {
			set.byAsset[channel.AssetID] = idx
		}
	}
	return set, nil
}

// All returns a copy of the channels in configuration order.
func (s *ChannelSet) All() []MonitorChannel {
	if s == nil {
		return nil
	}
	out := make([]MonitorChannel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Len returns the number of channels.
func (s *ChannelSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.channels)
}

// ByName finds a channel by its unique name.
func (s *ChannelSet) ByName(name string) (MonitorChannel, bool) {
	if s == nil {
		return MonitorChannel{}, false
	}
	idx, ok := s.byName[name]
	if !ok {
		return MonitorChannel{}, false
	}
	return s.channels[idx], true
}

// ByAsset returns the first channel, in configuration order, bound to assetID.
func (s *ChannelSet) ByAsset(assetID string) (MonitorChannel, bool) {
	if s == nil {
		return MonitorChannel{}, false
	}
	idx, ok := s.byAsset[assetID]
	if !ok {
		return MonitorChannel{}, false
	}
	return s.channels[idx], true
}
