package artifact

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const (
	FileName      = "risk_gru.json"
	ChecksumExt   = ".b2sum"
	checksumBytes = 32
)

var (
	ErrNotFound = errors.New("artifact: model not found")
	ErrChecksum = errors.New("artifact: checksum mismatch")
)

// Store — версионированное хранилище артефактов: <root>/<version>/risk_gru.json.
type Store struct {
	root   string
	pinned string
	logger *zap.Logger

	mu     sync.RWMutex
	active string
}

func NewStore(root, pinnedVersion string, logger *zap.Logger) *Store {
	return &Store{root: root, pinned: pinnedVersion, logger: logger.Named("artifacts")}
}

// Resolve возвращает путь к файлу модели: закрепленная версия либо максимальная по имени каталога.
func (s *Store) Resolve() (string, error) {
	if s.pinned != "" {
		path := filepath.Join(s.root, s.pinned, FileName)
		if !Exists(path) {
			return "", fmt.Errorf("%w: version %q", ErrNotFound, s.pinned)
		}
		s.setActive(path)
		return path, nil
	}

	versions, err := s.Versions()
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: no versions under %s", ErrNotFound, s.root)
	}
	path := filepath.Join(s.root, versions[len(versions)-1], FileName)
	s.setActive(path)
	return path, nil
}

// Versions — каталоги с файлом модели, по возрастанию имени.
func (s *Store) Versions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: list %s: %w", s.root, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if Exists(filepath.Join(s.root, e.Name(), FileName)) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Active — последний разрешенный путь, пустая строка до первого Resolve.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) setActive(path string) {
	s.mu.Lock()
	prev := s.active
	s.active = path
	s.mu.Unlock()
	if prev != path {
		s.logger.Info("active model artifact", zap.String("path", path))
	}
}

// Verify сверяет BLAKE2b-256 с файлом-спутником. Без спутника проверка пропускается.
func Verify(path string) error {
	want, err := os.ReadFile(path + ChecksumExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("artifact: read checksum: %w", err)
	}
	fields := strings.Fields(string(want))
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty checksum file", ErrChecksum)
	}

	got, err := Sum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(fields[0], got) {
		return fmt.Errorf("%w: %s", ErrChecksum, filepath.Base(path))
	}
	return nil
}

// Sum — hex BLAKE2b-256 файла.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("artifact: open: %w", err)
	}
	defer f.Close()

	h, err := blake2b.New(checksumBytes, nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("artifact: hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists — true только для обычного файла.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// Watch следит за корнем хранилища и переразрешает версию на каждое изменение.
// onChange получает новый путь. Возвращается после ctx.Done().
func (s *Store) Watch(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("artifact: watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.root); err != nil {
		return fmt.Errorf("artifact: watch %s: %w", s.root, err)
	}
	// Внутрь версий тоже смотрим: файл модели обычно появляется после каталога.
	if versions, err := s.Versions(); err == nil {
		for _, v := range versions {
			_ = watcher.Add(filepath.Join(s.root, v))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			path, err := s.Resolve()
			if err != nil {
				s.logger.Warn("artifact re-resolve failed", zap.String("event", event.String()), zap.Error(err))
				continue
			}
			if onChange != nil {
				onChange(path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}
