package app

// Store persists sessions and projects. Implementations must treat the
// session's message list as part of the session document and preserve
// message order.
//
// DeleteSession on an unknown id is not an error; stores report only real
// I/O failures so callers can keep local and durable state in step.
type Store interface {
	LoadSessions() ([]ChatSession, error)
	SaveSession(sess *ChatSession) error
	DeleteSession(id string) error

	LoadProjects() ([]Project, error)
	SaveProject(p *Project) error
	DeleteProject(id string) error
}
