package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/phrazzld/mailroom/internal/domain"
	"gopkg.in/yaml.v3"
)

// fileItem is one entry of a YAML mailbox.
type fileItem struct {
	domain.Item `yaml:",inline"`
	Read        bool `yaml:"read"`
}

type mailbox struct {
	Items []fileItem `yaml:"items"`
}

// FileSource serves items from a YAML mailbox file. Read flags are kept in
// memory; the file is never written.
type FileSource struct {
	mu     sync.Mutex
	items  []domain.Item
	read   map[string]bool
	logger *slog.Logger
}

// LoadFile reads a YAML mailbox of the form
//
//	items:
//	  - id: msg-1
//	    from: alice@example.com
//	    subject: Lunch?
//	    date: 2024-05-01T12:00:00Z
//	    body: Are you free on Friday?
//	    needs_reply: true
//
// HTML bodies are converted to Markdown. Invalid entries are skipped with a
// warning; duplicate ids keep the first entry.
func LoadFile(path string, logger *slog.Logger) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mailbox: %w", err)
	}
	return Parse(data, logger)
}

// Parse is LoadFile for in-memory YAML.
func Parse(data []byte, logger *slog.Logger) (*FileSource, error) {
	var mb mailbox
	if err := yaml.Unmarshal(data, &mb); err != nil {
		return nil, fmt.Errorf("parsing mailbox: %w", err)
	}

	logger = logger.With("component", "file_source")
	s := &FileSource{read: make(map[string]bool), logger: logger}
	seen := make(map[string]bool, len(mb.Items))
	for _, fi := range mb.Items {
		item, err := Normalize(fi.Item)
		if err != nil {
			logger.Warn("skipping invalid mailbox entry", "item_id", fi.ID, "error", err)
			continue
		}
		if seen[item.ID] {
			logger.Warn("skipping duplicate mailbox entry", "item_id", item.ID)
			continue
		}
		seen[item.ID] = true
		s.items = append(s.items, item)
		if fi.Read {
			s.read[item.ID] = true
		}
	}
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].Date.Before(s.items[j].Date)
	})
	return s, nil
}

// ListUnprocessed implements Source.
func (s *FileSource) ListUnprocessed(ctx context.Context) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Item
	for _, item := range s.items {
		if !s.read[item.ID] {
			out = append(out, item)
		}
	}
	return out, nil
}

// MarkRead implements Source.
func (s *FileSource) MarkRead(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.read[id] = true
	}
	return nil
}

// Search implements Source.
func (s *FileSource) Search(ctx context.Context, query string) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Item
	for _, item := range s.items {
		if q == "" ||
			strings.Contains(strings.ToLower(item.From), q) ||
			strings.Contains(strings.ToLower(item.Subject), q) ||
			strings.Contains(strings.ToLower(item.Body), q) {
			out = append(out, item)
		}
	}
	return out, nil
}

var _ Source = (*FileSource)(nil)
