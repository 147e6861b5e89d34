package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"

	"agent-lounge/internal/model"
)

func (b *Badger) indexMessage(msg model.Message) error {
	doc := bluge.NewDocument(msg.ID).
		AddField(bluge.NewKeywordField("room", msg.Room)).
		AddField(bluge.NewTextField("content", msg.Content)).
		AddField(bluge.NewNumericField("timestamp", float64(msg.Timestamp)))
	return b.index.Update(doc.ID(), doc)
}

// SearchMessages runs a full-text match against message content, optionally
// scoped to one room. Hits come back oldest-first like history pages.
func (b *Badger) SearchMessages(ctx context.Context, query, room string, limit int) ([]model.Message, error) {
	reader, err := b.index.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content"))
	if room != "" {
		q.AddMust(bluge.NewTermQuery(room).SetField("room"))
	}

	iter, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []string
	for {
		match, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	messages := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := b.loadMessageByID(id)
		if errors.Is(err, ErrNotFound) {
			// Index entry outlived the record; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp == messages[j].Timestamp {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

func (b *Badger) loadMessageByID(id string) (model.Message, error) {
	key, err := b.resolveMessageKey(id)
	if err != nil {
		return model.Message{}, err
	}

	var msg model.Message
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		})
	})
	return msg, err
}
