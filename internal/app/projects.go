package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProjectManager groups chats under named projects with reference file
// attachments. Destructive operations persist before committing locally,
// the same discipline the session manager follows.
type ProjectManager struct {
	mu        sync.Mutex
	store     Store
	notifier  Notifier
	log       *zap.Logger
	projects  []*Project
	currentID string
}

func NewProjectManager(store Store, notifier Notifier, log *zap.Logger) *ProjectManager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProjectManager{store: store, notifier: notifier, log: log}
}

func (m *ProjectManager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n != nil {
		m.notifier = n
	}
}

func (m *ProjectManager) Load() error {
	loaded, err := m.store.LoadProjects()
	if err != nil {
		m.notifier.Notify("Failed to load projects")
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = m.projects[:0]
	for i := range loaded {
		p := loaded[i]
		m.projects = append(m.projects, &p)
	}
	return nil
}

func (m *ProjectManager) CreateProject(name, description string) *Project {
	now := time.Now()
	project := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Attachments: []ProjectAttachment{},
		ChatIDs:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.projects = append(m.projects, project)
	m.currentID = project.ID
	m.mu.Unlock()

	if err := m.store.SaveProject(project); err != nil {
		m.log.Warn("failed to save project", zap.String("project", project.ID), zap.Error(err))
	}
	m.notifier.Notify(fmt.Sprintf("Project %q created", name))
	out := *project
	return &out
}

func (m *ProjectManager) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(id)
	if idx < 0 {
		return nil
	}
	if err := m.store.DeleteProject(id); err != nil {
		m.notifier.Notify("Failed to delete project")
		return err
	}
	m.projects = append(m.projects[:idx], m.projects[idx+1:]...)
	if m.currentID == id {
		m.currentID = ""
	}
	m.notifier.Notify("Project deleted")
	return nil
}

// RenameProject persists the rename before committing it locally.
func (m *ProjectManager) RenameProject(id, newName string) error {
	newName = strings.TrimSpace(newName)

	m.mu.Lock()
	defer m.mu.Unlock()
	project := m.findLocked(id)
	if project == nil || newName == "" || newName == project.Name {
		return nil
	}
	updated := *project
	updated.Name = newName
	updated.UpdatedAt = time.Now()
	if err := m.store.SaveProject(&updated); err != nil {
		m.notifier.Notify("Failed to rename project")
		return err
	}
	project.Name = newName
	project.UpdatedAt = updated.UpdatedAt
	m.notifier.Notify("Project renamed")
	return nil
}

func (m *ProjectManager) SelectProject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findLocked(id) != nil {
		m.currentID = id
	}
}

func (m *ProjectManager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// AttachFile records a reference file on the project.
func (m *ProjectManager) AttachFile(projectID, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		m.notifier.Notify("Failed to attach file")
		return err
	}

	attachment := ProjectAttachment{
		ID:         uuid.NewString(),
		Name:       filepath.Base(path),
		Path:       path,
		Mime:       DetectMime(path),
		Size:       info.Size(),
		UploadedAt: time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	project := m.findLocked(projectID)
	if project == nil {
		return fmt.Errorf("unknown project %q", projectID)
	}
	project.Attachments = append(project.Attachments, attachment)
	project.UpdatedAt = time.Now()
	m.saveLocked(project)
	m.notifier.Notify(fmt.Sprintf("File %q attached to project", attachment.Name))
	return nil
}

func (m *ProjectManager) RemoveFile(projectID, attachmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project := m.findLocked(projectID)
	if project == nil {
		return fmt.Errorf("unknown project %q", projectID)
	}
	for i, att := range project.Attachments {
		if att.ID == attachmentID {
			project.Attachments = append(project.Attachments[:i], project.Attachments[i+1:]...)
			project.UpdatedAt = time.Now()
			m.saveLocked(project)
			m.notifier.Notify("File removed from project")
			return nil
		}
	}
	return nil
}

func (m *ProjectManager) AddChat(projectID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project := m.findLocked(projectID)
	if project == nil || contains(project.ChatIDs, chatID) {
		return
	}
	project.ChatIDs = append(project.ChatIDs, chatID)
	project.UpdatedAt = time.Now()
	m.saveLocked(project)
}

func (m *ProjectManager) RemoveChat(projectID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project := m.findLocked(projectID)
	if project == nil {
		return
	}
	for i, id := range project.ChatIDs {
		if id == chatID {
			project.ChatIDs = append(project.ChatIDs[:i], project.ChatIDs[i+1:]...)
			project.UpdatedAt = time.Now()
			m.saveLocked(project)
			return
		}
	}
}

// MoveChat reassigns a chat between projects. fromProjectID may be empty
// when the chat was unfiled.
func (m *ProjectManager) MoveChat(chatID, fromProjectID, toProjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from := m.findLocked(fromProjectID); from != nil {
		for i, id := range from.ChatIDs {
			if id == chatID {
				from.ChatIDs = append(from.ChatIDs[:i], from.ChatIDs[i+1:]...)
				from.UpdatedAt = time.Now()
				m.saveLocked(from)
				break
			}
		}
	}
	if to := m.findLocked(toProjectID); to != nil && !contains(to.ChatIDs, chatID) {
		to.ChatIDs = append(to.ChatIDs, chatID)
		to.UpdatedAt = time.Now()
		m.saveLocked(to)
	}
}

func (m *ProjectManager) Projects() []Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out
}

func (m *ProjectManager) saveLocked(project *Project) {
	snapshot := *project
	if err := m.store.SaveProject(&snapshot); err != nil {
		m.log.Warn("failed to save project", zap.String("project", project.ID), zap.Error(err))
	}
}

func (m *ProjectManager) findLocked(id string) *Project {
	if id == "" {
		return nil
	}
	for _, p := range m.projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *ProjectManager) indexLocked(id string) int {
	for i, p := range m.projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}
