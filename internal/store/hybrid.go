package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"metaphorspace/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
)

const DefaultPageTTL = 24 * time.Hour

// HybridStore combines Redis (page listings, story metadata) and Badger
// (preferences, compressed story bodies).
type HybridStore struct {
	rdb     *redis.Client
	db      *badger.DB
	pageTTL time.Duration
}

type Option func(*HybridStore)

// WithPageTTL sets how long cached pages and story metadata live in Redis.
func WithPageTTL(ttl time.Duration) Option {
	return func(s *HybridStore) {
		s.pageTTL = ttl
	}
}

// NewHybridStore initializes databases.
// Pass badgerPath="" to run in "Redis-Only" mode: preferences then live in
// Redis and story bodies cannot be cached.
func NewHybridStore(redisAddr string, badgerPath string, opts ...Option) (*HybridStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *badger.DB
	var err error

	if badgerPath != "" {
		bopts := badger.DefaultOptions(badgerPath)
		bopts.Logger = nil
		db, err = badger.Open(bopts)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to open badger: %w", err)
		}
	}

	s := &HybridStore{rdb: rdb, db: db, pageTTL: DefaultPageTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close cleans up connections
func (s *HybridStore) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func prefKey(key string) string {
	return "pref:" + key
}

func pageKey(page, perPage int) string {
	return fmt.Sprintf("page:%d:%d", perPage, page)
}

func storyKey(id int) string {
	return fmt.Sprintf("story:%d", id)
}

func contentKey(id int) []byte {
	return []byte(fmt.Sprintf("content:%d", id))
}

// Get reads a preference value.
func (s *HybridStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.db == nil {
		val, err := s.rdb.Get(ctx, prefKey(key)).Bytes()
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return val, err
	}

	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefKey(key)))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

// Set writes a preference value. Preferences never expire.
func (s *HybridStore) Set(ctx context.Context, key string, value []byte) error {
	if s.db == nil {
		return s.rdb.Set(ctx, prefKey(key), value, 0).Err()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefKey(key)), value)
	})
}

// SavePage records the ids of a page in Redis, each story's metadata next to
// it, and the story bodies gzip-compressed in Badger.
func (s *HybridStore) SavePage(ctx context.Context, page, perPage int, stories []model.Story) error {
	key := pageKey(page, perPage)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for _, st := range stories {
		meta := st
		meta.Content = ""

		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key, strconv.Itoa(st.ID))
		pipe.Set(ctx, storyKey(st.ID), data, s.pageTTL)
	}
	pipe.Expire(ctx, key, s.pageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	var bodies []model.Story
	for _, st := range stories {
		if st.Content != "" {
			bodies = append(bodies, st)
		}
	}
	if len(bodies) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("cannot save content: badgerdb is not initialized")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, st := range bodies {
			compressed, err := compress(st.Content)
			if err != nil {
				return err
			}
			e := badger.NewEntry(contentKey(st.ID), compressed).WithTTL(s.pageTTL)
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPage rebuilds a cached page. Stories whose metadata has expired are
// skipped; ErrNotFound means the page itself is not cached.
func (s *HybridStore) LoadPage(ctx context.Context, page, perPage int) ([]model.Story, error) {
	ids, err := s.rdb.LRange(ctx, pageKey(page, perPage), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	stories := make([]model.Story, 0, len(ids))
	for _, idStr := range ids {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		val, err := s.rdb.Get(ctx, storyKey(id)).Bytes()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, err
		}

		var st model.Story
		if err := json.Unmarshal(val, &st); err != nil {
			continue
		}

		if s.db != nil {
			content, err := s.content(id)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return nil, err
			}
			st.Content = content
		}
		stories = append(stories, st)
	}

	return stories, nil
}

func (s *HybridStore) content(id int) (string, error) {
	var content string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			content, err = decompress(val)
			return err
		})
	})
	return content, err
}

// CollectGarbage reclaims space in Badger's value log. A run with nothing to
// rewrite is not an error.
func (s *HybridStore) CollectGarbage() error {
	if s.db == nil {
		return nil
	}
	err := s.db.RunValueLogGC(0.7)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

func compress(s string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := io.WriteString(zw, s); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) (string, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
