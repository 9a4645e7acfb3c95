// Package jsonfile keeps all mappings in a single JSON document. For each
// collection two top-level keys hold channel -> item key -> message id and
// channel -> item key -> signature.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"feedmirror/internal/config"
	"feedmirror/internal/storage"
	"feedmirror/internal/types"
)

const (
	messagesSuffix   = "_messages"
	signaturesSuffix = "_signatures"

	budgetKey = "_feed_budget"
	leasesKey = "_scope_leases"
)

func init() {
	storage.RegisterFactory("json", New)
}

type channelTable map[string]map[string]string

type Store struct {
	doc *Document
}

type feedBudget struct {
	LastRequestAt int64 `json:"last_request_at"`
}

type scopeLease struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at"`
}

// collection -> channel -> lease
type leaseTable map[string]map[string]scopeLease

func New(ctx context.Context, cfg config.StorageConfig) (storage.StateStore, error) {
	return Open(cfg.Path), nil
}

func Open(path string) *Store {
	return &Store{doc: NewDocument(path)}
}

func (s *Store) tables(collection string) (messages, signatures channelTable, err error) {
	doc, err := s.doc.Load()
	if err != nil {
		return nil, nil, err
	}
	return decodeTable(doc[collection+messagesSuffix]), decodeTable(doc[collection+signaturesSuffix]), nil
}

// decodeTable tolerates malformed sections by treating them as empty.
func decodeTable(raw json.RawMessage) channelTable {
	table := channelTable{}
	if len(raw) == 0 {
		return table
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return table
	}
	for channel, inner := range generic {
		var entries map[string]string
		if err := json.Unmarshal(inner, &entries); err != nil {
			continue
		}
		table[channel] = entries
	}
	return table
}

func (s *Store) LoadMapping(ctx context.Context, scope types.Scope) (types.Mapping, error) {
	messages, signatures, err := s.tables(scope.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping %s: %w", scope, err)
	}
	return types.JoinMapping(messages[scope.ChannelID], signatures[scope.ChannelID]), nil
}

func (s *Store) SaveMapping(ctx context.Context, scope types.Scope, mapping types.Mapping) error {
	return s.write(ctx, scope, mapping)
}

func (s *Store) DeleteMapping(ctx context.Context, scope types.Scope) error {
	return s.write(ctx, scope, nil)
}

func (s *Store) write(ctx context.Context, scope types.Scope, mapping types.Mapping) error {
	err := s.doc.Modify(ctx, func(doc map[string]json.RawMessage) (bool, error) {
		messages := decodeTable(doc[scope.Collection+messagesSuffix])
		signatures := decodeTable(doc[scope.Collection+signaturesSuffix])

		if len(mapping) == 0 {
			delete(messages, scope.ChannelID)
			delete(signatures, scope.ChannelID)
		} else {
			messages[scope.ChannelID], signatures[scope.ChannelID] = mapping.Split()
		}

		for suffix, table := range map[string]channelTable{messagesSuffix: messages, signaturesSuffix: signatures} {
			raw, err := json.Marshal(table)
			if err != nil {
				return false, fmt.Errorf("failed to encode mapping: %w", err)
			}
			doc[scope.Collection+suffix] = raw
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", scope, err)
	}
	return nil
}

func (s *Store) ListScopes(ctx context.Context) ([]types.Scope, error) {
	doc, err := s.doc.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}

	var scopes []types.Scope
	for key, raw := range doc {
		collection, ok := strings.CutSuffix(key, messagesSuffix)
		if !ok {
			continue
		}
		for channel, entries := range decodeTable(raw) {
			if len(entries) == 0 {
				continue
			}
			scopes = append(scopes, types.Scope{Collection: collection, ChannelID: channel})
		}
	}

	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].Collection != scopes[j].Collection {
			return scopes[i].Collection < scopes[j].Collection
		}
		return scopes[i].ChannelID < scopes[j].ChannelID
	})
	return scopes, nil
}

func (s *Store) ReserveRequest(ctx context.Context, now time.Time, cooldown time.Duration) (time.Duration, error) {
	var remaining time.Duration
	err := s.doc.Modify(ctx, func(doc map[string]json.RawMessage) (bool, error) {
		var budget feedBudget
		if raw := doc[budgetKey]; len(raw) > 0 {
			// a malformed budget is reset by this reservation
			_ = json.Unmarshal(raw, &budget)
		}
		elapsed := time.Duration(now.UnixMilli()-budget.LastRequestAt) * time.Millisecond
		if budget.LastRequestAt != 0 && elapsed < cooldown {
			remaining = min(cooldown-elapsed, cooldown)
			return false, nil
		}
		raw, err := json.Marshal(feedBudget{LastRequestAt: now.UnixMilli()})
		if err != nil {
			return false, err
		}
		doc[budgetKey] = raw
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve feed request: %w", err)
	}
	return remaining, nil
}

func (s *Store) TryLockScope(ctx context.Context, scope types.Scope, owner string, now time.Time, ttl time.Duration) (bool, error) {
	var taken bool
	err := s.modifyLeases(ctx, func(leases leaseTable) bool {
		current, held := leases[scope.Collection][scope.ChannelID]
		if held && current.Owner != owner && current.ExpiresAt > now.UnixMilli() {
			return false
		}
		if leases[scope.Collection] == nil {
			leases[scope.Collection] = map[string]scopeLease{}
		}
		leases[scope.Collection][scope.ChannelID] = scopeLease{Owner: owner, ExpiresAt: now.Add(ttl).UnixMilli()}
		taken = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("failed to take lease %s: %w", scope, err)
	}
	return taken, nil
}

func (s *Store) UnlockScope(ctx context.Context, scope types.Scope, owner string) error {
	err := s.modifyLeases(ctx, func(leases leaseTable) bool {
		if current, held := leases[scope.Collection][scope.ChannelID]; !held || current.Owner != owner {
			return false
		}
		delete(leases[scope.Collection], scope.ChannelID)
		if len(leases[scope.Collection]) == 0 {
			delete(leases, scope.Collection)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", scope, err)
	}
	return nil
}

func (s *Store) modifyLeases(ctx context.Context, fn func(leases leaseTable) bool) error {
	return s.doc.Modify(ctx, func(doc map[string]json.RawMessage) (bool, error) {
		leases := leaseTable{}
		if raw := doc[leasesKey]; len(raw) > 0 {
			_ = json.Unmarshal(raw, &leases)
		}
		if !fn(leases) {
			return false, nil
		}
		if len(leases) == 0 {
			delete(doc, leasesKey)
			return true, nil
		}
		raw, err := json.Marshal(leases)
		if err != nil {
			return false, err
		}
		doc[leasesKey] = raw
		return true, nil
	})
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}
