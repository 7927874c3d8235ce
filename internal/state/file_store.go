package state

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FileStore persists watchdog state as key=value lines on disk.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore returns a line-oriented state store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Load reads state from disk. Missing or corrupt files return a fresh unknown
// state with a warning, never an error.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Str("path", s.path).Msg("state file missing, starting fresh")
			return State{Mode: ModeUnknown}, nil
		}
		return State{}, err
	}
	defer file.Close()

	loaded := State{Mode: ModeUnknown}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "mode":
			loaded.Mode = parseMode(value)
		case "ssid":
			loaded.ActiveSSID = value
		case "last_probe":
			if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
				loaded.LastProbe = epoch
			}
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("state file unreadable, starting fresh")
		return State{Mode: ModeUnknown}, nil
	}

	if !loaded.Valid() {
		s.logger.Warn().Str("path", s.path).Str("mode", string(loaded.Mode)).
			Str("ssid", loaded.ActiveSSID).Msg("state file inconsistent, starting fresh")
		return State{Mode: ModeUnknown}, nil
	}
	return loaded, nil
}

// Save writes state to disk atomically.
func (s *FileStore) Save(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	content := fmt.Sprintf("mode=%s\nssid=%s\nlast_probe=%d\n",
		state.Mode, state.ActiveSSID, state.LastProbe)
	if _, err := tempFile.WriteString(content); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return nil
}
