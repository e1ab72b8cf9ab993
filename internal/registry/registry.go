// Package registry keeps the in-memory view of confirmed LINE group to
// Discord channel bindings, indexed by sub number, group and channel.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/linecord/internal/store"
)

var (
	// ErrAlreadyBound is returned by Add when the group or the channel already
	// participates in a binding.
	ErrAlreadyBound = errors.New("already bound")
	// ErrNotLoaded is returned by mutations before LoadAll succeeded.
	ErrNotLoaded = errors.New("registry not loaded")
)

// Binding is the input to Add. SubNum and FolderName are assigned by the registry.
type Binding struct {
	LineGroupID           string
	LineGroupName         string
	DiscordChannelID      int64
	DiscordChannelName    string
	DiscordChannelWebhook string
}

// index is an immutable snapshot. A new one is built for every change and
// swapped in atomically, so readers never observe a partial update.
type index struct {
	byNum     map[int]store.SyncChannel
	byGroup   map[string]int
	byChannel map[int64]int
}

func buildIndex(channels []store.SyncChannel) *index {
	idx := &index{
		byNum:     make(map[int]store.SyncChannel, len(channels)),
		byGroup:   make(map[string]int, len(channels)),
		byChannel: make(map[int64]int, len(channels)),
	}
	for _, c := range channels {
		idx.byNum[c.SubNum] = c
		idx.byGroup[c.LineGroupID] = c.SubNum
		idx.byChannel[c.DiscordChannelID] = c.SubNum
	}
	return idx
}

func (idx *index) list() []store.SyncChannel {
	out := make([]store.SyncChannel, 0, len(idx.byNum))
	for _, c := range idx.byNum {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubNum < out[j].SubNum })
	return out
}

// Registry serves lookups from memory and writes every change through to the
// channel store. Mutations are serialized; reads are lock-free.
type Registry struct {
	store store.ChannelStore

	mu    sync.Mutex // serializes load-modify-save
	cur   atomic.Pointer[index]
	ready atomic.Bool
}

func New(cs store.ChannelStore) *Registry {
	r := &Registry{store: cs}
	r.cur.Store(buildIndex(nil))
	return r
}

// LoadAll reads the persisted bindings and builds all indexes.
// Must succeed before the relay accepts traffic.
func (r *Registry) LoadAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels, err := r.store.LoadChannels()
	if err != nil {
		return fmt.Errorf("load sync channels: %w", err)
	}
	warnInvalid(channels)
	r.cur.Store(buildIndex(channels))
	r.ready.Store(true)
	slog.Info("registry loaded", "bindings", len(channels))
	return nil
}

// warnInvalid logs persisted records that lookups cannot serve. They stay
// indexed so a later removal still finds them.
func warnInvalid(channels []store.SyncChannel) {
	for _, c := range channels {
		if err := c.Validate(); err != nil {
			slog.Warn("registry: invalid binding on disk", "error", err)
		}
	}
}

// Reload re-reads the store after an external edit. On failure the current
// indexes stay in place.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels, err := r.store.LoadChannels()
	if err != nil {
		slog.Warn("registry reload failed, keeping current bindings", "error", err)
		return err
	}
	warnInvalid(channels)
	r.cur.Store(buildIndex(channels))
	slog.Info("registry reloaded", "bindings", len(channels))
	return nil
}

// Ready reports whether LoadAll has completed.
func (r *Registry) Ready() bool { return r.ready.Load() }

// LookupByGroup returns the binding of a LINE group.
func (r *Registry) LookupByGroup(groupID string) (store.SyncChannel, bool) {
	idx := r.cur.Load()
	n, ok := idx.byGroup[groupID]
	if !ok {
		return store.SyncChannel{}, false
	}
	c, ok := idx.byNum[n]
	return c, ok
}

// LookupByChannel returns the binding of a Discord channel.
func (r *Registry) LookupByChannel(channelID int64) (store.SyncChannel, bool) {
	idx := r.cur.Load()
	n, ok := idx.byChannel[channelID]
	if !ok {
		return store.SyncChannel{}, false
	}
	c, ok := idx.byNum[n]
	return c, ok
}

// Lookup returns a binding by sub number.
func (r *Registry) Lookup(subNum int) (store.SyncChannel, bool) {
	c, ok := r.cur.Load().byNum[subNum]
	return c, ok
}

// WebhookByGroup returns the Discord webhook URL bound to a LINE group.
func (r *Registry) WebhookByGroup(groupID string) (string, bool) {
	c, ok := r.LookupByGroup(groupID)
	if !ok {
		return "", false
	}
	return c.DiscordChannelWebhook, true
}

// All returns every binding ordered by sub number.
func (r *Registry) All() []store.SyncChannel {
	return r.cur.Load().list()
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return len(r.cur.Load().byNum)
}

// Add persists a new binding with the next sub number and indexes it.
// When the save fails, nothing changes in memory.
func (r *Registry) Add(b Binding) (store.SyncChannel, error) {
	if !r.Ready() {
		return store.SyncChannel{}, ErrNotLoaded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channels := r.cur.Load().list()
	maxNum := 0
	for _, c := range channels {
		if c.LineGroupID == b.LineGroupID {
			return store.SyncChannel{}, fmt.Errorf("%w: line group %s", ErrAlreadyBound, b.LineGroupID)
		}
		if c.DiscordChannelID == b.DiscordChannelID {
			return store.SyncChannel{}, fmt.Errorf("%w: discord channel %d", ErrAlreadyBound, b.DiscordChannelID)
		}
		if c.SubNum > maxNum {
			maxNum = c.SubNum
		}
	}

	sc := store.SyncChannel{
		SubNum:                maxNum + 1,
		FolderName:            store.FolderNameFor(b.LineGroupName, b.DiscordChannelName),
		LineGroupID:           b.LineGroupID,
		LineGroupName:         b.LineGroupName,
		DiscordChannelID:      b.DiscordChannelID,
		DiscordChannelName:    b.DiscordChannelName,
		DiscordChannelWebhook: b.DiscordChannelWebhook,
	}
	if err := sc.Validate(); err != nil {
		return store.SyncChannel{}, err
	}
	next := append(channels, sc)

	if err := r.store.SaveChannels(next); err != nil {
		return store.SyncChannel{}, fmt.Errorf("save sync channels: %w", err)
	}
	r.cur.Store(buildIndex(next))

	slog.Info("binding added",
		"sub_num", sc.SubNum,
		"line_group_id", sc.LineGroupID,
		"discord_channel_id", sc.DiscordChannelID,
	)
	return sc, nil
}

// RemoveByGroup drops the binding of a LINE group from every index.
func (r *Registry) RemoveByGroup(groupID string) (store.SyncChannel, bool, error) {
	return r.remove(func(c store.SyncChannel) bool { return c.LineGroupID == groupID })
}

// RemoveByChannel drops the binding of a Discord channel from every index.
func (r *Registry) RemoveByChannel(channelID int64) (store.SyncChannel, bool, error) {
	return r.remove(func(c store.SyncChannel) bool { return c.DiscordChannelID == channelID })
}

// remove applies the removal in memory even when the save fails; the save
// error is logged and returned so the caller can report it.
func (r *Registry) remove(match func(store.SyncChannel) bool) (store.SyncChannel, bool, error) {
	if !r.Ready() {
		return store.SyncChannel{}, false, ErrNotLoaded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	channels := r.cur.Load().list()
	var (
		removed store.SyncChannel
		found   bool
	)
	next := channels[:0:0]
	for _, c := range channels {
		if !found && match(c) {
			removed, found = c, true
			continue
		}
		next = append(next, c)
	}
	if !found {
		return store.SyncChannel{}, false, nil
	}

	r.cur.Store(buildIndex(next))
	slog.Info("binding removed",
		"sub_num", removed.SubNum,
		"line_group_id", removed.LineGroupID,
		"discord_channel_id", removed.DiscordChannelID,
	)

	if err := r.store.SaveChannels(next); err != nil {
		slog.Error("persist binding removal failed", "sub_num", removed.SubNum, "error", err)
		return removed, true, fmt.Errorf("save sync channels: %w", err)
	}
	return removed, true, nil
}
