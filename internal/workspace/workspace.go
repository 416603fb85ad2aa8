// Package workspace hands out per-request scratch space for archive
// processing. A workspace lives on disk or in memory depending on the
// manager's mode and is removed completely by Release.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"tush00nka/unzipbot/internal/archive"
	"tush00nka/unzipbot/internal/model"
)

type Mode string

const (
	ModeDisk   Mode = "disk"
	ModeMemory Mode = "memory"
)

const (
	downloadDir = "download"
	extractDir  = "extracted"
)

var (
	ErrInUse           = errors.New("workspace already in use")
	ErrReleased        = errors.New("workspace released")
	ErrNoDownload      = errors.New("nothing downloaded into workspace")
	ErrUnsupportedMode = errors.New("unsupported workspace mode")
)

type Key struct {
	ChatID    int64
	RequestID int
}

func KeyFor(req model.ArchiveRequest) Key {
	return Key{ChatID: req.ChatID, RequestID: req.RequestID}
}

func (k Key) String() string {
	return fmt.Sprintf("%d_%d", k.ChatID, k.RequestID)
}

// keyDirPattern matches directory names produced by Key.String.
var keyDirPattern = regexp.MustCompile(`^-?[0-9]+_-?[0-9]+$`)

// Manager owns the process wide workspace root and the set of keys that are
// currently in use.
type Manager struct {
	mode   Mode
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	active map[Key]*Workspace
}

func NewManager(mode Mode, root string, logger *slog.Logger) (*Manager, error) {
	switch mode {
	case ModeDisk:
		if root == "" {
			return nil, errors.New("workspace root is required in disk mode")
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace root: %w", err)
		}
	case ModeMemory:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}

	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		mode:   mode,
		root:   root,
		logger: logger.With("module", "workspace"),
		active: make(map[Key]*Workspace),
	}
	if mode == ModeDisk {
		if err := m.sweep(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// sweep removes workspaces left behind by a previous process. Nothing is
// active yet, so every key directory under root is stale.
func (m *Manager) sweep() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("read workspace root: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() || !keyDirPattern.MatchString(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			return fmt.Errorf("remove stale workspace %s: %w", e.Name(), err)
		}
		m.logger.Warn("stale workspace removed", "key", e.Name())
	}
	return nil
}

func (m *Manager) Mode() Mode {
	return m.mode
}

// Acquire reserves the workspace for key. It fails with ErrInUse only if the
// key is held by this manager. A directory for a key nobody holds is a
// leftover and gets wiped.
func (m *Manager) Acquire(key Key) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrInUse, key)
	}

	ws := &Workspace{key: key, mode: m.mode, manager: m}
	if m.mode == ModeDisk {
		ws.dir = filepath.Join(m.root, key.String())
		err := os.Mkdir(ws.dir, 0o755)
		if errors.Is(err, os.ErrExist) {
			m.logger.Warn("reclaiming leftover workspace", "key", key.String())
			if rmErr := os.RemoveAll(ws.dir); rmErr != nil {
				return nil, fmt.Errorf("remove leftover workspace %s: %w", key, rmErr)
			}
			err = os.Mkdir(ws.dir, 0o755)
		}
		if err != nil {
			return nil, fmt.Errorf("create workspace %s: %w", key, err)
		}
		if err := os.Mkdir(filepath.Join(ws.dir, extractDir), 0o755); err != nil {
			os.RemoveAll(ws.dir)
			return nil, fmt.Errorf("create extraction dir %s: %w", key, err)
		}
	}

	m.active[key] = ws
	m.logger.Debug("workspace acquired", "key", key.String(), "mode", m.mode)
	return ws, nil
}

// Exists reports whether anything is still held for key, either in the
// registry or on disk.
func (m *Manager) Exists(key Key) bool {
	m.mu.Lock()
	_, ok := m.active[key]
	m.mu.Unlock()
	if ok {
		return true
	}

	if m.mode == ModeDisk {
		if _, err := os.Stat(filepath.Join(m.root, key.String())); err == nil {
			return true
		}
	}
	return false
}

func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) release(ws *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if ws.dir != "" {
		if rmErr := os.RemoveAll(ws.dir); rmErr != nil {
			err = fmt.Errorf("remove workspace %s: %w", ws.key, rmErr)
		}
	}
	if err == nil {
		delete(m.active, ws.key)
	}
	return err
}

// Workspace is the scratch space of exactly one in-flight request.
type Workspace struct {
	key     Key
	mode    Mode
	dir     string
	manager *Manager

	mu           sync.Mutex
	downloadPath string
	buf          []byte
	downloaded   bool
	released     bool
}

func (w *Workspace) Key() Key {
	return w.key
}

// Dir is empty in memory mode.
func (w *Workspace) Dir() string {
	return w.dir
}

// Download fills the download slot using fetch and returns the number of
// bytes written.
func (w *Workspace) Download(ctx context.Context, name string, fetch func(ctx context.Context, dst io.Writer) (int64, error)) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return 0, ErrReleased
	}

	if w.mode == ModeMemory {
		var buf bytes.Buffer
		n, err := fetch(ctx, &buf)
		if err != nil {
			return n, err
		}
		w.buf = buf.Bytes()
		w.downloaded = true
		return n, nil
	}

	dir := filepath.Join(w.dir, downloadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "archive"
	}
	target := filepath.Join(dir, base)

	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create download file: %w", err)
	}

	n, err := fetch(ctx, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close download file: %w", closeErr)
	}
	if err != nil {
		return n, err
	}

	w.downloadPath = target
	w.downloaded = true
	return n, nil
}

// OpenDownload exposes the downloaded bytes for random access. The returned
// closer must be called before Release on platforms that lock open files.
func (w *Workspace) OpenDownload() (io.ReaderAt, int64, io.Closer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil, 0, nil, ErrReleased
	}
	if !w.downloaded {
		return nil, 0, nil, ErrNoDownload
	}

	if w.mode == ModeMemory {
		return bytes.NewReader(w.buf), int64(len(w.buf)), nopCloser{}, nil
	}

	f, err := os.Open(w.downloadPath)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open download: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, fmt.Errorf("stat download: %w", err)
	}
	return f, info.Size(), f, nil
}

// Stage turns an opened archive into the entries the relay loop reads from.
// Disk mode extracts everything into the extraction slot first; memory mode
// serves entries straight from the archive index.
func (w *Workspace) Stage(ctx context.Context, r archive.Reader) (archive.Entries, error) {
	if w.mode == ModeMemory {
		return r, nil
	}

	dir := filepath.Join(w.dir, extractDir)
	if err := archive.Extract(ctx, r, dir); err != nil {
		return nil, err
	}
	return archive.OpenDir(dir)
}

// Release drops every byte held by the workspace. It is safe to call more
// than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return nil
	}
	w.buf = nil
	w.downloaded = false
	w.mu.Unlock()

	if err := w.manager.release(w); err != nil {
		w.manager.logger.Error("workspace cleanup failed", "key", w.key.String(), "error", err)
		return err
	}

	w.mu.Lock()
	w.released = true
	w.mu.Unlock()

	w.manager.logger.Debug("workspace released", "key", w.key.String())
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
