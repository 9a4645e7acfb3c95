package reconcile

import (
	"feedmirror/internal/payload"
	"feedmirror/internal/render"
)

// SingleKey is the fixed key of the one overview message of a scope.
const SingleKey = "payload"

// Entry is one desired message: its identity and its rendered form.
type Entry struct {
	Key     string
	Message render.Message
}

// ItemEntries renders one entry per object item, in feed order. Non-object
// items are skipped and do not consume an index.
func ItemEntries(v payload.Value) []Entry {
	items, _ := payload.Items(v)
	entries := make([]Entry, 0, len(items))
	index := 0
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		index++
		entries = append(entries, Entry{
			Key:     ItemKey(item, index),
			Message: render.Item(item, index),
		})
	}
	return entries
}

// SectionEntries renders one entry per attribute group, keyed by the group
// name.
func SectionEntries(collection string, v payload.Value) []Entry {
	sections := payload.Sections(v)
	entries := make([]Entry, 0, len(sections))
	for _, s := range sections {
		entries = append(entries, Entry{
			Key:     s.Key,
			Message: render.Section(collection, s.Key, s.Value),
		})
	}
	return entries
}

func SingleEntry(collection string, v payload.Value) []Entry {
	return []Entry{{Key: SingleKey, Message: render.Overview(collection, v)}}
}
