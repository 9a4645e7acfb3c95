package config

import (
	"slices"

	"feedmirror/internal/types"
)

const (
	LayoutItems    = "items"
	LayoutSections = "sections"
	LayoutSingle   = "single"
)

var Layouts = []string{LayoutItems, LayoutSections, LayoutSingle}

// CollectionNames is the fixed catalogue of remote collections, in job
// order.
var CollectionNames = []string{"association", "news", "statuts", "staff", "activities", "events"}

func IsKnownCollection(name string) bool {
	return slices.Contains(CollectionNames, name)
}

func CollectionPath(name string) string {
	return "/api/v1/" + name + ".php"
}

func DefaultLayout(name string) string {
	switch name {
	case "news":
		return LayoutItems
	case "association":
		return LayoutSections
	default:
		return LayoutSingle
	}
}

// Collection returns the settings of a collection and whether it is
// enabled with at least one channel.
func (c *Config) Collection(name string) (CollectionConfig, bool) {
	col, ok := c.Collections[name]
	if !ok || !col.Enabled || len(col.Channels) == 0 {
		return col, false
	}
	return col, true
}

func (c *Config) EnabledCollections() []string {
	var names []string
	for _, name := range CollectionNames {
		if _, ok := c.Collection(name); ok {
			names = append(names, name)
		}
	}
	return names
}

// Jobs lists every configured (collection, channel) pair, collections in
// catalogue order and channels in configured order.
func (c *Config) Jobs() []types.Scope {
	var jobs []types.Scope
	for _, name := range c.EnabledCollections() {
		col := c.Collections[name]
		for _, ch := range col.Channels {
			jobs = append(jobs, types.Scope{Collection: name, ChannelID: ch})
		}
	}
	return jobs
}

// IsConfigured reports whether scope is still a job of this config.
func (c *Config) IsConfigured(scope types.Scope) bool {
	col, ok := c.Collection(scope.Collection)
	if !ok {
		return false
	}
	return slices.Contains(col.Channels, scope.ChannelID)
}

func (c *Config) ChannelIDs() []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, job := range c.Jobs() {
		if _, ok := seen[job.ChannelID]; ok {
			continue
		}
		seen[job.ChannelID] = struct{}{}
		ids = append(ids, job.ChannelID)
	}
	return ids
}
