package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"

	"agent-lounge/internal/model"
)

// Key layout:
//
//	msg:<room>:<%019d timestamp>:<id>  -> message JSON
//	msgid:<id>                         -> the full message key above
//	agent:<id>                         -> agent JSON
//	room:<name>                        -> room JSON
//
// The zero-padded timestamp makes a prefix scan return messages in
// chronological order; the id suffix disambiguates same-millisecond writes.
type Badger struct {
	db    *badger.DB
	index *bluge.Writer
	log   *slog.Logger
}

func OpenBadger(dir string, log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "badger")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	index, err := bluge.OpenWriter(bluge.DefaultConfig(filepath.Join(dir, "index")))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open bluge writer: %w", err)
	}

	return &Badger{db: db, index: index, log: log}, nil
}

func (b *Badger) Durable() bool { return true }

func (b *Badger) Close() error {
	indexErr := b.index.Close()
	if err := b.db.Close(); err != nil {
		return err
	}
	return indexErr
}

func messageKey(msg model.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", msg.Room, msg.Timestamp, msg.ID))
}

func roomPrefix(room string) []byte {
	return []byte("msg:" + room + ":")
}

func (b *Badger) SaveMessage(_ context.Context, msg model.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := messageKey(msg)

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, payload); err != nil {
			return err
		}
		return txn.Set([]byte("msgid:"+msg.ID), key)
	})
	if err != nil {
		return err
	}
	return b.indexMessage(msg)
}

func (b *Badger) LoadMessages(ctx context.Context, room string, limit int, before string) (Page, error) {
	if room == "" {
		return b.loadAllRoomsPage(ctx, limit, before)
	}

	var seekKey []byte
	if before == "" {
		// Past the last possible key in the room's range.
		seekKey = append(roomPrefix(room), 0xff)
	} else {
		key, err := b.resolveMessageKey(before)
		if err != nil {
			return Page{}, err
		}
		seekKey = key
	}

	var page Page
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekKey)
		if before != "" && it.ValidForPrefix(prefix) {
			it.Next() // skip the cursor message itself
		}

		var collected []model.Message
		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(collected) == limit {
				page.HasMore = true
				break
			}
			var msg model.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			collected = append(collected, msg)
		}

		// Reverse scan yields newest-first; pages read oldest-first.
		for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
			collected[i], collected[j] = collected[j], collected[i]
		}
		page.Messages = collected
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	if len(page.Messages) > 0 {
		page.OldestID = page.Messages[0].ID
	}
	return page, nil
}

// loadAllRoomsPage serves the cross-room case by merging every room's
// history. Message volume is modest; this stays a full scan plus sort.
func (b *Badger) loadAllRoomsPage(_ context.Context, limit int, before string) (Page, error) {
	var all []model.Message
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg model.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			all = append(all, msg)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp == all[j].Timestamp {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp < all[j].Timestamp
	})

	end := len(all)
	if before != "" {
		end = 0
		for i, msg := range all {
			if msg.ID == before {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	page := Page{Messages: all[start:end], HasMore: start > 0}
	if len(page.Messages) > 0 {
		page.OldestID = page.Messages[0].ID
	}
	return page, nil
}

func (b *Badger) resolveMessageKey(id string) ([]byte, error) {
	var key []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("msgid:" + id))
		if err != nil {
			return err
		}
		key, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return key, err
}

func (b *Badger) CountMessages(_ context.Context, room string) (int, error) {
	prefix := []byte("msg:")
	if room != "" {
		prefix = roomPrefix(room)
	}

	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (b *Badger) SaveAgent(_ context.Context, agent model.Agent) error {
	return b.setJSON("agent:"+agent.ID, agent)
}

func (b *Badger) LoadAllAgents(_ context.Context) ([]model.Agent, error) {
	var agents []model.Agent
	err := b.scanJSON("agent:", func(val []byte) error {
		var agent model.Agent
		if err := json.Unmarshal(val, &agent); err != nil {
			return err
		}
		agents = append(agents, agent)
		return nil
	})
	return agents, err
}

func (b *Badger) UpdateAgentStatus(_ context.Context, id string, status model.AgentStatus, passedAt int64) error {
	return b.mutateAgent(id, func(agent *model.Agent) {
		agent.Status = status
		agent.PassedAt = passedAt
	})
}

func (b *Badger) UpdateAgentProfile(_ context.Context, id string, bio, color, emoji string) error {
	return b.mutateAgent(id, func(agent *model.Agent) {
		agent.Bio = bio
		agent.Color = color
		agent.Emoji = emoji
	})
}

func (b *Badger) DeleteAgent(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("agent:" + id))
	})
}

func (b *Badger) SaveRoom(_ context.Context, room model.Room) error {
	return b.setJSON("room:"+room.Name, room)
}

func (b *Badger) LoadAllRooms(_ context.Context) ([]model.Room, error) {
	var rooms []model.Room
	err := b.scanJSON("room:", func(val []byte) error {
		var room model.Room
		if err := json.Unmarshal(val, &room); err != nil {
			return err
		}
		rooms = append(rooms, room)
		return nil
	})
	return rooms, err
}

func (b *Badger) UpdateRoom(_ context.Context, name, description, prompt string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := []byte("room:" + name)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var room model.Room
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &room)
		}); err != nil {
			return err
		}
		room.Description = description
		room.Prompt = prompt

		payload, err := json.Marshal(room)
		if err != nil {
			return err
		}
		return txn.Set(key, payload)
	})
}

func (b *Badger) DeleteRoom(_ context.Context, name string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("room:" + name))
	})
}

func (b *Badger) setJSON(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), payload)
	})
}

func (b *Badger) scanJSON(prefix string, visit func([]byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) mutateAgent(id string, mutate func(*model.Agent)) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := []byte("agent:" + id)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var agent model.Agent
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &agent)
		}); err != nil {
			return err
		}
		mutate(&agent)

		payload, err := json.Marshal(agent)
		if err != nil {
			return err
		}
		return txn.Set(key, payload)
	})
}
