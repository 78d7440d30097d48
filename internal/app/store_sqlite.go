package app

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions and projects in a single SQLite database.
// Message lists and project bodies are stored as JSON documents alongside
// the columns used for listing, so the schema stays stable as the message
// shape grows.
type SQLiteStore struct {
	Root   string
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	st := &SQLiteStore{
		Root:   root,
		dbPath: filepath.Join(root, "chat-desk.db"),
	}
	// Initialize eagerly so callers fail fast.
	if err := st.init(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) init() error {
	s.once.Do(func() {
		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.err = err
			return
		}
		// Keep sqlite responsive under contention.
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

		schema := []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				thread_id TEXT NOT NULL,
				project_id TEXT,
				title TEXT,
				doc TEXT NOT NULL,
				created_at_ns INTEGER NOT NULL,
				updated_at_ns INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at_ns);`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, updated_at_ns);`,
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				doc TEXT NOT NULL,
				created_at_ns INTEGER NOT NULL,
				updated_at_ns INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at_ns);`,
		}
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				s.err = err
				return
			}
		}

		s.db = db
	})
	return s.err
}

func (s *SQLiteStore) LoadSessions() ([]ChatSession, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT doc FROM sessions ORDER BY created_at_ns ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSession
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sess ChatSession
		if err := json.Unmarshal([]byte(doc), &sess); err != nil {
			continue // skip corrupt documents
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveSession(sess *ChatSession) error {
	if err := s.init(); err != nil {
		return err
	}
	doc, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO sessions (id, thread_id, project_id, title, doc, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			project_id = excluded.project_id,
			title = excluded.title,
			doc = excluded.doc,
			updated_at_ns = excluded.updated_at_ns`,
		sess.ID, sess.ThreadID, sess.ProjectID, sess.Title, string(doc),
		sess.CreatedAt.UnixNano(), time.Now().UnixNano())
	return err
}

func (s *SQLiteStore) DeleteSession(id string) error {
	if err := s.init(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) LoadProjects() ([]Project, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT doc FROM projects ORDER BY created_at_ns ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var project Project
		if err := json.Unmarshal([]byte(doc), &project); err != nil {
			continue
		}
		out = append(out, project)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveProject(p *Project) error {
	if err := s.init(); err != nil {
		return err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO projects (id, name, doc, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			doc = excluded.doc,
			updated_at_ns = excluded.updated_at_ns`,
		p.ID, p.Name, string(doc), p.CreatedAt.UnixNano(), time.Now().UnixNano())
	return err
}

func (s *SQLiteStore) DeleteProject(id string) error {
	if err := s.init(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
