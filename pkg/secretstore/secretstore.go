// Package secretstore 用 Badger 加密存储 Backpack API 私钥。
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// WalletPrefix 钱包私钥的 key 前缀，完整 key 为 wallet/<公钥>
const WalletPrefix = "wallet/"

var (
	ErrNotOpened = errors.New("secretstore: not opened")
	ErrEmptyKey  = errors.New("secretstore: key is empty")
	ErrBadKey    = errors.New("secretstore: key must be base64(32 bytes) or hex(32 bytes)")
)

// Store Badger 封装；加密由 Badger 的 value log 和 key registry 完成
type Store struct {
	db *badger.DB
}

// OpenOptions 打开参数
type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；为空时不加密
	ReadOnly      bool
}

// Open 打开（或创建）存储目录
func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求开启 index cache
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: open %s: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

// Close 关闭
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check(key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotOpened
	}
	k := []byte(strings.TrimSpace(key))
	if len(k) == 0 {
		return nil, ErrEmptyKey
	}
	return k, nil
}

// GetString 不存在时 found=false
func (s *Store) GetString(key string) (val string, found bool, err error) {
	k, err := s.check(key)
	if err != nil {
		return "", false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return val, found, nil
}

// SetString 写入或覆盖
func (s *Store) SetString(key, val string) error {
	k, err := s.check(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(val))
	})
}

// Delete 删除，不存在时不报错
func (s *Store) Delete(key string) error {
	k, err := s.check(key)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// List 返回前缀下全部键值，按 key 排序
func (s *Store) List(prefix string) (map[string]string, []string, error) {
	if s == nil || s.db == nil {
		return nil, nil, ErrNotOpened
	}
	out := map[string]string{}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			k := string(item.KeyCopy(nil))
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[k] = string(v)
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(keys)
	return out, keys, nil
}

// PutWallet 保存私钥，key 为 wallet/<公钥>
func (s *Store) PutWallet(publicKey, secret string) error {
	return s.SetString(WalletPrefix+publicKey, secret)
}

// Wallets 按公钥顺序返回全部私钥
func (s *Store) Wallets() ([]string, error) {
	kv, keys, err := s.List(WalletPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(kv[k]); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// ParseKey 解析 32 字节加密密钥（hex，可带 0x，或 base64）；输入为空时返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// 64 位 hex 也是合法 base64，先按 hex 解析
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("%w: decoded length %d", ErrBadKey, len(b))
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, ErrBadKey
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: decoded length %d", ErrBadKey, len(b))
	}
	return b, nil
}
