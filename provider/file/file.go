// Package file keeps durable-tier records as one file per key in a local directory.
// It is the simplest tier that survives a process restart on a single host.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	pr "github.com/unkn0wn-root/imgcache/provider"
)

const (
	ext       = ".entry"
	hashedExt = ".hentry"

	// Longest encoded name kept as is. Longer keys would overflow the 255-byte
	// name limit of common filesystems, so they are stored under their SHA-256
	// with the key written ahead of the value.
	maxNameLen = 200
)

// file names are reversible so Keys can list without an index
var enc = base64.RawURLEncoding

var errKeyHeader = errors.New("file provider: bad key header")

type Provider struct {
	dir string
}

var _ pr.Provider = (*Provider)(nil)

// New creates dir if needed.
func New(dir string) (*Provider, error) {
	if dir == "" {
		return nil, errors.New("file provider: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file provider: create %s: %w", dir, err)
	}
	return &Provider{dir: dir}, nil
}

// path returns where key lives and whether the file carries a key header.
func (p *Provider) path(key string) (string, bool) {
	name := enc.EncodeToString([]byte(key))
	if len(name) <= maxNameLen {
		return filepath.Join(p.dir, name+ext), false
	}
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(p.dir, hex.EncodeToString(sum[:])+hashedExt), true
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, hashed := p.path(key)
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !hashed {
		return b, true, nil
	}
	stored, value, err := splitKeyHeader(b)
	if err != nil {
		return nil, false, err
	}
	if stored != key {
		return nil, false, nil
	}
	return value, true, nil
}

// Set writes to a temp file and renames it so readers never observe a partial record.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	path, hashed := p.path(key)
	tmp, err := os.CreateTemp(p.dir, ".tmp-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	if hashed {
		value = append(keyHeader(key), value...)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	path, _ := p.path(key)
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *Provider) Keys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() {
			continue
		}
		var k string
		switch {
		case strings.HasSuffix(name, hashedExt):
			k, err = readKey(filepath.Join(p.dir, name))
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errKeyHeader) {
				continue // removed meanwhile, or not ours
			}
			if err != nil {
				return nil, err
			}
		case strings.HasSuffix(name, ext):
			raw, err := enc.DecodeString(strings.TrimSuffix(name, ext))
			if err != nil {
				continue // not ours
			}
			k = string(raw)
		default:
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// keyHeader is keyLen(u32 be) | key.
func keyHeader(key string) []byte {
	b := make([]byte, 4, 4+len(key))
	binary.BigEndian.PutUint32(b, uint32(len(key)))
	return append(b, key...)
}

func splitKeyHeader(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errKeyHeader
	}
	n := binary.BigEndian.Uint32(b[:4])
	if uint64(len(b)-4) < uint64(n) {
		return "", nil, errKeyHeader
	}
	return string(b[4 : 4+n]), b[4+n:], nil
}

func readKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var hdr [4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return "", errKeyHeader
	}
	key := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(f, key); err != nil {
		return "", errKeyHeader
	}
	return string(key), nil
}

func (p *Provider) Close(context.Context) error { return nil }
