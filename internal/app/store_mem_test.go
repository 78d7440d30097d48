package app

import "sync"

// memStore is the in-memory Store used across package tests, with
// injectable failures and call counters.
type memStore struct {
	mu sync.Mutex

	sessions map[string]ChatSession
	projects map[string]Project

	saveSessionErr   error
	deleteSessionErr error
	saveProjectErr   error
	deleteProjectErr error

	saveSessionCalls   int
	deleteSessionCalls int
	saveProjectCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]ChatSession),
		projects: make(map[string]Project),
	}
}

func (s *memStore) LoadSessions() ([]ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *memStore) SaveSession(sess *ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveSessionCalls++
	if s.saveSessionErr != nil {
		return s.saveSessionErr
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *memStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionCalls++
	if s.deleteSessionErr != nil {
		return s.deleteSessionErr
	}
	delete(s.sessions, id)
	return nil
}

func (s *memStore) LoadProjects() ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) SaveProject(p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveProjectCalls++
	if s.saveProjectErr != nil {
		return s.saveProjectErr
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *memStore) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteProjectErr != nil {
		return s.deleteProjectErr
	}
	delete(s.projects, id)
	return nil
}
