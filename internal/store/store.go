// Package store persists per-project session state: the chat log and the
// file archive. Storage is a local SQLite database; every save is a full
// overwrite of the project's rows, and unreadable state is treated as absent
// so a corrupt database never blocks session entry.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"devroom/internal/chat"
	"devroom/internal/filetree"
	"devroom/internal/logger"
)

// ErrNotFound is returned by Load when a project has no persisted session.
var ErrNotFound = errors.New("no persisted session")

// Event kinds as stored in the chat_events table.
const (
	kindHuman  = "human"
	kindAI     = "ai"
	kindSystem = "system"
)

// PersistedSession is the durable record for one project.
type PersistedSession struct {
	ChatLog []chat.Event
	Archive filetree.Tree
}

// Store wraps the SQLite database holding all projects' session records.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (or creates) the session database at path and migrates the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	s := &Store{db: db, log: logger.Global().WithPrefix("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_events (
		project_id   TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		sender_id    TEXT NOT NULL DEFAULT '',
		sender_email TEXT NOT NULL DEFAULT '',
		sender_name  TEXT NOT NULL DEFAULT '',
		body         TEXT NOT NULL,
		PRIMARY KEY (project_id, seq)
	);

	CREATE TABLE IF NOT EXISTS archive_files (
		project_id TEXT NOT NULL,
		path       TEXT NOT NULL,
		contents   TEXT NOT NULL,
		PRIMARY KEY (project_id, path)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Load reads the persisted session for a project. Rows that fail to decode
// are skipped rather than failing the load; a project with no rows at all
// yields ErrNotFound.
func (s *Store) Load(projectID string) (*PersistedSession, error) {
	session := &PersistedSession{Archive: make(filetree.Tree)}

	rows, err := s.db.Query(
		`SELECT kind, sender_id, sender_email, sender_name, body
		 FROM chat_events WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, senderID, senderEmail, senderName, body string
		if err := rows.Scan(&kind, &senderID, &senderEmail, &senderName, &body); err != nil {
			s.log.Warn("skipping unreadable chat row for project %s: %v", projectID, err)
			continue
		}

		sender := chat.UserRef{ID: senderID, Email: senderEmail, Name: senderName}
		switch kind {
		case kindHuman:
			session.ChatLog = append(session.ChatLog, chat.HumanMessage{Sender: sender, Text: body})
		case kindAI:
			session.ChatLog = append(session.ChatLog, chat.AIMessage{Sender: sender, RawPayload: body})
		case kindSystem:
			session.ChatLog = append(session.ChatLog, chat.SystemNotice{Text: body})
		default:
			s.log.Warn("skipping chat row with unknown kind %q for project %s", kind, projectID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat events: %w", err)
	}

	fileRows, err := s.db.Query(
		`SELECT path, contents FROM archive_files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer fileRows.Close()

	for fileRows.Next() {
		var path, contents string
		if err := fileRows.Scan(&path, &contents); err != nil {
			s.log.Warn("skipping unreadable archive row for project %s: %v", projectID, err)
			continue
		}
		session.Archive[path] = filetree.NewFragment(contents)
	}
	if err := fileRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	if len(session.ChatLog) == 0 && len(session.Archive) == 0 {
		return nil, ErrNotFound
	}
	return session, nil
}

// SaveChat overwrites the persisted chat log for a project.
func (s *Store) SaveChat(projectID string, events []chat.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chat_events WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear chat events: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO chat_events (project_id, seq, kind, sender_id, sender_email, sender_name, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for seq, event := range events {
		var kind, body string
		var sender chat.UserRef

		switch e := event.(type) {
		case chat.HumanMessage:
			kind, sender, body = kindHuman, e.Sender, e.Text
		case chat.AIMessage:
			kind, sender, body = kindAI, e.Sender, e.RawPayload
		case chat.SystemNotice:
			kind, body = kindSystem, e.Text
		default:
			s.log.Warn("not persisting unknown event type %T", event)
			continue
		}

		if _, err := stmt.Exec(projectID, seq, kind, sender.ID, sender.Email, sender.Name, body); err != nil {
			return fmt.Errorf("failed to insert chat event: %w", err)
		}
	}

	return tx.Commit()
}

// SaveArchive overwrites the persisted archive for a project.
func (s *Store) SaveArchive(projectID string, tree filetree.Tree) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM archive_files WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear archive: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO archive_files (project_id, path, contents) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for path, frag := range tree {
		if _, err := stmt.Exec(projectID, path, frag.Contents()); err != nil {
			return fmt.Errorf("failed to insert archive file: %w", err)
		}
	}

	return tx.Commit()
}

// ClearChat removes only the chat-log record of a project. The archive
// survives; a conversation reset does not delete files.
func (s *Store) ClearChat(projectID string) error {
	if _, err := s.db.Exec(`DELETE FROM chat_events WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to clear chat events: %w", err)
	}
	return nil
}

// ClearAll removes every project's chat-log and archive records. This is the
// logout teardown: process-wide, not scoped to one project.
func (s *Store) ClearAll() error {
	if _, err := s.db.Exec(`DELETE FROM chat_events`); err != nil {
		return fmt.Errorf("failed to clear chat events: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM archive_files`); err != nil {
		return fmt.Errorf("failed to clear archives: %w", err)
	}
	return nil
}
