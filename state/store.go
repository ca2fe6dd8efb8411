package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	PositionsKey = "positions"
	TradeLogsKey = "trade_logs"
)

// Store persists values as <dir>/<key>.json.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid state key %q", key)
	}
	return nil
}

// Save writes v atomically: a crash leaves either the old file or the new
// one, never a partial write.
func (s *Store) Save(key string, v any) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(s.Path(key), data, 0o600); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load decodes the stored value into v. A missing key leaves v untouched,
// so callers pass their empty default.
func (s *Store) Load(key string, v any) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// LoadBook reads positions and trade logs, empty on first run.
func (s *Store) LoadBook() (*Book, error) {
	b := NewBook()
	if err := s.Load(PositionsKey, &b.Positions); err != nil {
		return nil, err
	}
	if err := s.Load(TradeLogsKey, &b.TradeLogs); err != nil {
		return nil, err
	}
	if b.Positions == nil {
		b.Positions = make(Positions)
	}
	if b.TradeLogs == nil {
		b.TradeLogs = make(TradeLogs)
	}
	return b, nil
}

// SaveBook writes the stores whose updated flag is set and clears the flag
// on success.
func (s *Store) SaveBook(b *Book) error {
	if b.positionsUpdated {
		if err := s.Save(PositionsKey, b.Positions); err != nil {
			return err
		}
		b.positionsUpdated = false
	}
	if b.logsUpdated {
		if err := s.Save(TradeLogsKey, b.TradeLogs); err != nil {
			return err
		}
		b.logsUpdated = false
	}
	return nil
}

// Files lists the state files present on disk.
func (s *Store) Files() ([]string, error) {
	var out []string
	for _, key := range []string{PositionsKey, TradeLogsKey} {
		p := s.Path(key)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err = f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(dir)
}

// syncDir flushes the rename to disk.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
