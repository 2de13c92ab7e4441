package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dijon/internal/models"
)

const fileName = "conversations.json"

type fileDocument struct {
	Conversations map[string][]models.Message `json:"conversations"`
}

// File persists all conversations as a single JSON document keyed by user
// id. Every append rewrites the whole document, which is only acceptable at
// small scale; the rewrite goes through a temp file and rename so a crash
// mid-write never truncates existing history.
type File struct {
	path string

	mu   sync.Mutex
	data fileDocument
}

func NewFile(dataDir string) (*File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	f := &File{
		path: filepath.Join(dataDir, fileName),
		data: fileDocument{Conversations: make(map[string][]models.Message)},
	}

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if f.data.Conversations == nil {
		f.data.Conversations = make(map[string][]models.Message)
	}
	return f, nil
}

func (f *File) History(_ context.Context, userID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs := f.data.Conversations[userID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *File) Append(_ context.Context, userID string, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data.Conversations[userID] = append(f.data.Conversations[userID], msg)
	if err := f.flushLocked(); err != nil {
		// Roll the in-memory copy back so memory and disk stay in sync.
		msgs := f.data.Conversations[userID]
		f.data.Conversations[userID] = msgs[:len(msgs)-1]
		return err
	}
	return nil
}

func (f *File) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data.Conversations[userID]; !ok {
		return nil
	}
	f.data.Conversations[userID] = []models.Message{}
	return f.flushLocked()
}

func (f *File) Close() error {
	return nil
}

func (f *File) flushLocked() error {
	raw, err := json.Marshal(f.data)
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
