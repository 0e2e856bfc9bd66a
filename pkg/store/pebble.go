// Package store is the local replica of the replicated document store.
// Documents are JSON-encoded maps grouped into named collections; live
// queries and sync subscriptions are registered against collections.
//
// Replication itself is out of scope: in a deployment the same capability
// set is served by the sync engine, and everything above this package is
// written against the capability, not the engine.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/telemetry"
)

var db *pebble.DB

// ErrNotFound is returned when a document is absent from the local replica.
var ErrNotFound = errors.New("store: document not found")

// ConflictPolicy selects upsert behavior when the document id already exists.
type ConflictPolicy int

const (
	// ConflictUpdate overwrites the existing document.
	ConflictUpdate ConflictPolicy = iota
	// ConflictIgnore keeps the existing document untouched.
	ConflictIgnore
)

// Filter selects documents. A nil Filter matches everything.
type Filter func(models.Doc) bool

// Less orders documents. A nil Less keeps key order (document id).
type Less func(a, b models.Doc) bool

// Open opens (or creates) the Pebble database at the given path and keeps a
// package-level handle.
func Open(path string) error {
	var err error
	logger.Info("opening_store", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return err
	}
	return nil
}

// Close closes the opened database if present.
func Close() error {
	cancelAllObservers()
	cancelAllSubscriptions()
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("store_closed")
	return nil
}

// Ready reports whether the store is opened and usable.
func Ready() bool { return db != nil }

func docKey(collection, id string) []byte {
	return []byte("doc:" + collection + ":" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte("doc:" + collection + ":")
}

// Get returns the document with the given id, or ErrNotFound.
func Get(collection, id string) (models.Doc, error) {
	if db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	v, closer, err := db.Get(docKey(collection, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	var d models.Doc
	if err := json.Unmarshal(v, &d); err != nil {
		return nil, fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	return d, nil
}

// Upsert writes the document into the collection under its "_id" key. With
// ConflictIgnore an existing document is left untouched; with ConflictUpdate
// it is overwritten.
func Upsert(collection string, doc models.Doc, policy ConflictPolicy) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	id, _ := doc[models.DBIDKey].(string)
	if id == "" {
		return fmt.Errorf("document missing %q", models.DBIDKey)
	}
	key := docKey(collection, id)
	if policy == ConflictIgnore {
		_, closer, err := db.Get(key)
		if err == nil {
			closer.Close()
			return nil
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return err
		}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("upsert_failed", "collection", collection, "id", id, "error", err)
		return err
	}
	notifyCollection(collection)
	return nil
}

// Remove hard-deletes the document. Removing an absent document is a no-op.
func Remove(collection, id string) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	if err := db.Delete(docKey(collection, id), pebble.Sync); err != nil {
		return err
	}
	notifyCollection(collection)
	return nil
}

// Evict deletes matching documents from the local replica without leaving a
// tombstone, and returns the number of documents removed.
func Evict(collection string, match Filter) (int, error) {
	docs, err := Query(collection, match, nil)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	batch := db.NewBatch()
	for _, d := range docs {
		id, _ := d[models.DBIDKey].(string)
		if err := batch.Delete(docKey(collection, id), nil); err != nil {
			batch.Close()
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	telemetry.DocsEvicted.Add(float64(len(docs)))
	logger.Info("evicted", "collection", collection, "count", len(docs))
	notifyCollection(collection)
	return len(docs), nil
}

// DropCollection removes every document in the collection.
func DropCollection(collection string) error {
	if db == nil {
		return fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := collectionPrefix(collection)
	if err := db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		return err
	}
	logger.Info("collection_dropped", "collection", collection)
	notifyCollection(collection)
	return nil
}

// Query returns a snapshot of matching documents, ordered by less when
// provided, otherwise by document id.
func Query(collection string, match Filter, less Less) ([]models.Doc, error) {
	if db == nil {
		return nil, fmt.Errorf("store not opened; call store.Open first")
	}
	prefix := collectionPrefix(collection)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Doc
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var d models.Doc
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			logger.Warn("corrupt_document_skipped", "collection", collection, "key", string(iter.Key()))
			continue
		}
		if match == nil || match(d) {
			out = append(out, d)
		}
	}
	if less != nil {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out, nil
}

func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
