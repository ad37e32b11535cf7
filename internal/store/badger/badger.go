// Package badger 使用嵌入式 BadgerDB 持久化全部集合，相似度检索为前缀扫描 + 余弦计算。
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	"github.com/zhouzirui/z-tone/backend/internal/model/chat"
	"github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/model/user"
	"github.com/zhouzirui/z-tone/backend/internal/store"
)

const (
	prefixTone     = "tone/"
	prefixMsgEmb   = "msgemb/"
	prefixAnalysis = "analysis/"
	prefixUser     = "user/"
	prefixPhone    = "phone/"
	prefixMessage  = "message/"
)

// Config 描述 Badger 存储。
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
	// GCInterval <= 0 disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// Store implements store.Store on a Badger database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

var _ store.Store = (*Store)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, goerr.New("badger path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, goerr.Wrap(err, "failed to create badger directory", goerr.V("path", cfg.Path))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open badger", goerr.V("path", cfg.Path))
	}

	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, ratio)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return goerr.New("badger database is closed")
	}
	return nil
}

func (s *Store) InsertToneEmbedding(ctx context.Context, e *tone.Embedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefixTone+e.UserID+"/"+e.ID, e)
	})
}

func (s *Store) SearchToneEmbeddings(ctx context.Context, f store.Filter, vector []float32, limit int) ([]tone.Scored, error) {
	if len(vector) == 0 {
		return nil, goerr.Wrap(store.ErrInvalidVector, "empty query vector")
	}
	if limit <= 0 {
		return nil, nil
	}

	var out []tone.Scored
	err := s.scanToneEmbeddings(ctx, f, func(e tone.Embedding) {
		if len(e.ToneVector) != len(vector) {
			return
		}
		out = append(out, tone.Scored{Embedding: e, Similarity: embedding.Similarity(vector, e.ToneVector)})
	})
	if err != nil {
		return nil, err
	}
	return store.TopK(out, limit), nil
}

func (s *Store) ListToneEmbeddings(ctx context.Context, f store.Filter, limit int) ([]tone.Embedding, error) {
	var out []tone.Embedding
	if err := s.scanToneEmbeddings(ctx, f, func(e tone.Embedding) { out = append(out, e) }); err != nil {
		return nil, err
	}
	store.SortEmbeddings(out)
	return store.Limit(out, limit), nil
}

func (s *Store) scanToneEmbeddings(ctx context.Context, f store.Filter, fn func(tone.Embedding)) error {
	prefix := prefixTone
	if f.UserID != "" {
		prefix += f.UserID + "/"
	}
	return s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefix, func(val []byte) error {
			var e tone.Embedding
			if err := json.Unmarshal(val, &e); err != nil {
				return goerr.Wrap(err, "corrupt tone embedding")
			}
			if f.Match(&e) {
				fn(e)
			}
			return nil
		})
	})
}

func (s *Store) InsertMessageEmbedding(ctx context.Context, e *tone.MessageEmbedding) error {
	if e.ID == "" {
		e.ID = store.NewID()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefixMsgEmb+e.ID, e)
	})
}

func (s *Store) InsertAnalysis(ctx context.Context, r *tone.AnalysisRecord) error {
	if r.ID == "" {
		r.ID = store.NewID()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefixAnalysis+r.UserID+"/"+r.ID, r)
	})
}

func (s *Store) ListAnalyses(ctx context.Context, userID string, limit int) ([]tone.AnalysisRecord, error) {
	var out []tone.AnalysisRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefixAnalysis+userID+"/", func(val []byte) error {
			var r tone.AnalysisRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return goerr.Wrap(err, "corrupt analysis record")
			}
			// 前缀扫描会命中以 userID 开头的其他用户
			if r.UserID != userID {
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	store.SortAnalyses(out)
	return store.Limit(out, limit), nil
}

func (s *Store) CreateUser(ctx context.Context, p *user.Profile) error {
	if p.ID == "" {
		p.ID = store.NewID()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if exists(txn, prefixUser+p.ID) {
			return goerr.Wrap(store.ErrAlreadyExists, "user id taken", goerr.V("user_id", p.ID))
		}
		if p.PhoneNumber != "" {
			if exists(txn, prefixPhone+p.PhoneNumber) {
				return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
			}
			if err := txn.Set([]byte(prefixPhone+p.PhoneNumber), []byte(p.ID)); err != nil {
				return err
			}
		}
		return putJSON(txn, prefixUser+p.ID, p)
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.Profile, error) {
	var p user.Profile
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixUser+id, &p)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("user_id", id))
	}
	return &p, nil
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (*user.Profile, error) {
	var p user.Profile
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixPhone + phone))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixUser+string(id), &p)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user by phone", goerr.V("phone", phone))
	}
	return &p, nil
}

func (s *Store) UpdateUser(ctx context.Context, p *user.Profile) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var old user.Profile
		if err := getJSON(txn, prefixUser+p.ID, &old); err != nil {
			return goerr.Wrap(err, "failed to load user", goerr.V("user_id", p.ID))
		}
		if old.PhoneNumber != p.PhoneNumber {
			if p.PhoneNumber != "" {
				if owner, err := txn.Get([]byte(prefixPhone + p.PhoneNumber)); err == nil {
					id, _ := owner.ValueCopy(nil)
					if string(id) != p.ID {
						return goerr.Wrap(store.ErrAlreadyExists, "phone number taken", goerr.V("phone", p.PhoneNumber))
					}
				}
				if err := txn.Set([]byte(prefixPhone+p.PhoneNumber), []byte(p.ID)); err != nil {
					return err
				}
			}
			if old.PhoneNumber != "" {
				if err := txn.Delete([]byte(prefixPhone + old.PhoneNumber)); err != nil {
					return err
				}
			}
		}
		return putJSON(txn, prefixUser+p.ID, p)
	})
}

func (s *Store) SaveMessage(ctx context.Context, m *chat.Message) error {
	if m.ID == "" {
		m.ID = store.NewID()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefixMessage+m.UserID+"/"+m.ID, m)
	})
}

func (s *Store) History(ctx context.Context, userID, conversationID string, limit int) ([]chat.Message, error) {
	var out []chat.Message
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefixMessage+userID+"/", func(val []byte) error {
			var m chat.Message
			if err := json.Unmarshal(val, &m); err != nil {
				return goerr.Wrap(err, "corrupt chat message")
			}
			if m.UserID != userID {
				return nil
			}
			if conversationID == "" || m.ConversationID == conversationID {
				out = append(out, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	store.SortMessages(out)
	return store.Limit(out, limit), nil
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func putJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return goerr.Wrap(err, "failed to encode record", goerr.V("key", key))
	}
	return txn.Set([]byte(key), raw)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func exists(txn *badger.Txn, key string) bool {
	_, err := txn.Get([]byte(key))
	return err == nil
}

func scanPrefix(ctx context.Context, txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
