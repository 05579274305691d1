// Package memory persists conversation logs and turns saved logs back into
// context for a new conversation.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/room4-2/ada/logger"
)

const indexKey = "memory_logs"

const uploadNotice = "System Notification: The user has uploaded a long-term memory file. " +
	"Please load the following context into your understanding. " +
	"The format is a text log of previous conversations:\n\n%s"

// Entry is one line of a conversation log.
type Entry struct {
	Sender string
	Text   string
}

// Store writes conversation logs to a directory and optionally indexes them
// in Redis.
type Store struct {
	dir   string
	redis *redis.Client
	now   func() time.Time
}

// NewStore creates a store writing to dir. rdb may be nil.
func NewStore(dir string, rdb *redis.Client) *Store {
	return &Store{dir: dir, redis: rdb, now: time.Now}
}

// Save writes entries as "Sender: text" blocks and returns the file path.
// The filename is reduced to its base name and gets a .txt suffix; an empty
// name defaults to memory_YYYYMMDD_HHMMSS.txt.
func (s *Store) Save(ctx context.Context, entries []Entry, filename string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create memory directory: %w", err)
	}

	name := s.sanitize(filename)
	path := filepath.Join(s.dir, name)

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s: %s\n\n", e.Sender, e.Text)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to save memory: %w", err)
	}

	if s.redis != nil {
		err := s.redis.ZAdd(ctx, indexKey, redis.Z{Score: float64(s.now().Unix()), Member: name}).Err()
		if err != nil {
			logger.Warn("⚠️ Failed to index memory log", "file", name, "error", err)
		}
	}

	logger.Info("💾 Conversation saved", "file", path, "messages", len(entries))
	return path, nil
}

// List returns saved log names, newest first. Without Redis it lists the
// directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if s.redis != nil {
		return s.redis.ZRevRange(ctx, indexKey, 0, -1).Result()
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for i := len(files) - 1; i >= 0; i-- {
		if !files[i].IsDir() && strings.HasSuffix(files[i].Name(), ".txt") {
			names = append(names, files[i].Name())
		}
	}
	return names, nil
}

// Load reads a saved log by name.
func (s *Store) Load(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return "", fmt.Errorf("failed to load memory: %w", err)
	}
	return string(data), nil
}

func (s *Store) sanitize(filename string) string {
	name := strings.TrimSpace(filename)
	if name != "" {
		name = filepath.Base(filepath.Clean("/" + name))
	}
	if name == "" || name == "/" || name == "." {
		name = fmt.Sprintf("memory_%s", s.now().Format("20060102_150405"))
	}
	if !strings.HasSuffix(name, ".txt") {
		name += ".txt"
	}
	return name
}

// UploadMessage wraps uploaded memory text as a system notification for the
// live conversation.
func UploadMessage(memoryText string) string {
	return fmt.Sprintf(uploadNotice, memoryText)
}
