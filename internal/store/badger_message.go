package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"echochat/internal/models"
)

const (
	seqKey    = "seq:chat_messages"
	seqLease  = 100
	msgPrefix = "msg:"
	pmPrefix  = "pm:"
)

// BadgerMessageStore 用 badger 存消息。
// 每条消息写 msg:{id}，私聊另写 pm:{pair}:{ts}{id}，ts 与 id 为定长大端编码，
// 前缀扫描天然按时间升序。
type BadgerMessageStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	ownsDB bool
}

// OpenBadgerMessageStore 打开 path 下的 badger 库，Close 时一并关闭
func OpenBadgerMessageStore(path string) (*BadgerMessageStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, err
	}
	s, err := NewBadgerMessageStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

func NewBadgerMessageStore(db *badger.DB) (*BadgerMessageStore, error) {
	seq, err := db.GetSequence([]byte(seqKey), seqLease)
	if err != nil {
		return nil, err
	}
	return &BadgerMessageStore{db: db, seq: seq}, nil
}

func (s *BadgerMessageStore) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.ChatMessage{}, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return models.ChatMessage{}, err
	}
	// Sequence 从 0 开始，持久化 ID 从 1 开始
	msg.ID = int64(n) + 1
	msg.Timestamp = msg.Timestamp.UTC()
	b, err := json.Marshal(msg)
	if err != nil {
		return models.ChatMessage{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.ID), b); err != nil {
			return err
		}
		if msg.Type == models.MessageTypePrivate {
			return txn.Set(privateKey(msg), b)
		}
		return nil
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (s *BadgerMessageStore) QueryPrivateHistory(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(pmPrefix + pairKey(a, b) + ":")
	var msgs []models.ChatMessage
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// 倒序从最新的一条开始取
		seek := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, pmSuffixLen)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(msgs) == limit {
				break
			}
			var m models.ChatMessage
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &m)
			}); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (s *BadgerMessageStore) Close() error {
	err := s.seq.Release()
	if s.ownsDB {
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", msgPrefix, id))
}

// pm 键的后缀：8 字节秒 + 4 字节纳秒 + 8 字节 id
const pmSuffixLen = 8 + 4 + 8

func privateKey(m models.ChatMessage) []byte {
	key := []byte(pmPrefix + pairKey(m.Sender, m.RecipientName()) + ":")
	return append(key, sortableTime(m.Timestamp, m.ID)...)
}

// sortableTime 按字节序比较即按时间先后比较。
// 秒数翻转符号位，1970 年之前的时间排在之后的前面。
func sortableTime(t time.Time, id int64) []byte {
	b := make([]byte, 0, pmSuffixLen)
	b = binary.BigEndian.AppendUint64(b, uint64(t.Unix())^(1<<63))
	b = binary.BigEndian.AppendUint32(b, uint32(t.Nanosecond()))
	return binary.BigEndian.AppendUint64(b, uint64(id))
}

// pairKey 与方向无关；带长度前缀，用户名里含 ':' 也不会串前缀
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s:%d:%s", len(a), a, len(b), b)
}
