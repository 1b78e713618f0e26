package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is what the CLI remembers between runs: who is acting and which
// conversation commands fall back to.
type Context struct {
	UserID         string    `yaml:"user,omitempty" json:"user_id,omitempty"`
	Username       string    `yaml:"username,omitempty" json:"username,omitempty"`
	ConversationID string    `yaml:"conversation,omitempty" json:"conversation_id,omitempty"`
	UpdatedAt      time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// IsEmpty reports whether neither a user nor a conversation is selected.
func (c *Context) IsEmpty() bool {
	return c.UserID == "" && c.ConversationID == ""
}

// SetUser changes the acting user and forgets the selected conversation,
// which belonged to the previous user.
func (c *Context) SetUser(id, username string) {
	c.UserID, c.Username = id, username
	c.ConversationID = ""
	c.touch()
}

// SetConversation selects a conversation.
func (c *Context) SetConversation(id string) {
	c.ConversationID = id
	c.touch()
}

func (c *Context) touch() {
	c.UpdatedAt = time.Now()
}

func (c *Context) String() string {
	var parts []string
	if c.UserID != "" {
		who := c.Username
		if who == "" {
			who = c.UserID
		}
		parts = append(parts, "user:"+who)
	}
	if id := c.ConversationID; id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "conversation:"+id)
	}
	if len(parts) == 0 {
		return "(no context set)"
	}
	return strings.Join(parts, " ")
}

// ContextStore reads and writes a Context as YAML.
type ContextStore struct {
	mu   sync.Mutex
	path string
}

// NewContextStore returns a store at path, or at
// ~/.config/stanza/context.yaml when path is empty.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".config", "stanza", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the file backing the store.
func (s *ContextStore) Path() string {
	return s.path
}

// Load returns the saved context, or an empty one when nothing is saved.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := &Context{}
	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return saved, nil
	case err != nil:
		return nil, fmt.Errorf("read context %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(raw, saved); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", s.path, err)
	}
	return saved, nil
}

// Save replaces the saved context. The file is written beside the target and
// renamed over it so a crash never leaves half a file.
func (s *ContextStore) Save(saved *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := yaml.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".context-*.yaml")
	if err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write context: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return nil
}

// Clear deletes the saved context. Clearing twice is not an error.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove context %s: %w", s.path, err)
	}
	return nil
}
