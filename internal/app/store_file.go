package app

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore is the JSON-on-disk store.
//
// Layout:
//
//	<root>/session/<sessionID>.json
//	<root>/project/<projectID>.json
type FileStore struct {
	Root string
}

func DefaultStorageRoot() string {
	// Prefer XDG data dir (Linux/macOS). If unavailable, fall back to ~/.local/share.
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "chat-desk", "storage")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "chat-desk", "storage")
	}
	return filepath.Join(os.TempDir(), "chat-desk", "storage")
}

func NewFileStore(root string) *FileStore {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	return &FileStore{Root: root}
}

func (s *FileStore) sessionDir() string { return filepath.Join(s.Root, "session") }
func (s *FileStore) projectDir() string { return filepath.Join(s.Root, "project") }

func (s *FileStore) LoadSessions() ([]ChatSession, error) {
	var out []ChatSession
	if err := loadDir(s.sessionDir(), func(data []byte) error {
		var sess ChatSession
		if err := json.Unmarshal(data, &sess); err != nil {
			return err
		}
		out = append(out, sess)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) SaveSession(sess *ChatSession) error {
	return writeJSON(filepath.Join(s.sessionDir(), sess.ID+".json"), sess)
}

func (s *FileStore) DeleteSession(id string) error {
	return removeFile(filepath.Join(s.sessionDir(), id+".json"))
}

func (s *FileStore) LoadProjects() ([]Project, error) {
	var out []Project
	if err := loadDir(s.projectDir(), func(data []byte) error {
		var project Project
		if err := json.Unmarshal(data, &project); err != nil {
			return err
		}
		out = append(out, project)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) SaveProject(p *Project) error {
	return writeJSON(filepath.Join(s.projectDir(), p.ID+".json"), p)
}

func (s *FileStore) DeleteProject(id string) error {
	return removeFile(filepath.Join(s.projectDir(), id+".json"))
}

func loadDir(dir string, apply func([]byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if err := apply(data); err != nil {
			// Skip corrupt documents rather than refusing to start.
			continue
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
