package storex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrStudentNotFound      = errors.New("student not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// StudentStore is the persistence contract for student records.
type StudentStore interface {
	GetStudent(ctx context.Context, id string) (*StudentProfile, error)
	SearchStudentsByName(ctx context.Context, name string) ([]StudentProfile, error)
	ListStudents(ctx context.Context, limit int) ([]StudentProfile, error)
	ApplyProfileUpdate(ctx context.Context, id string, patch ProfilePatch) (*StudentProfile, error)
}

// ConversationStore is the persistence contract for chat history.
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, sessionID, teacherID string) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content, categoryUsed string) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

// EventStore is the persistence contract for the school calendar.
type EventStore interface {
	TodaysEvents(ctx context.Context, teacherID string) ([]SchoolEvent, error)
}

type Config struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

// OpenDB opens a bun handle over a Postgres connection.
func OpenDB(cfg Config) (*bun.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// PostgresStore implements the student, conversation, and event stores over
// one bun handle.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

var (
	_ StudentStore      = (*PostgresStore)(nil)
	_ ConversationStore = (*PostgresStore)(nil)
	_ EventStore        = (*PostgresStore)(nil)
)

func NewPostgresStore(db *bun.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, id string) (*StudentProfile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrStudentNotFound
	}
	profile := new(StudentProfile)
	err := s.db.NewSelect().Model(profile).Where("st.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id=%s", ErrStudentNotFound, id)
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) SearchStudentsByName(ctx context.Context, name string) ([]StudentProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var profiles []StudentProfile
	err := s.db.NewSelect().
		Model(&profiles).
		Where("st.name ILIKE ?", name+"%").
		Order("name ASC").
		Limit(5).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search students by name: %w", err)
	}
	return profiles, nil
}

func (s *PostgresStore) ListStudents(ctx context.Context, limit int) ([]StudentProfile, error) {
	if limit <= 0 {
		limit = 50
	}
	var profiles []StudentProfile
	err := s.db.NewSelect().
		Model(&profiles).
		Order("name ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return profiles, nil
}

func (s *PostgresStore) ApplyProfileUpdate(ctx context.Context, id string, patch ProfilePatch) (*StudentProfile, error) {
	profile, err := s.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return profile, nil
	}

	patch.Apply(profile, s.now())

	_, err = s.db.NewUpdate().
		Model(profile).
		Column("triggers", "successful_methods", "failed_methods", "notes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update student profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, sessionID, teacherID string) (*Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, errors.New("session id is empty")
	}

	conv := new(Conversation)
	err := s.db.NewSelect().Model(conv).Where("c.session_id = ?", sessionID).Scan(ctx)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	conv = &Conversation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TeacherID: strings.TrimSpace(teacherID),
		CreatedAt: s.now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(conv).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, role, content, categoryUsed string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrConversationNotFound
	}
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CategoryUsed:   categoryUsed,
		CreatedAt:      s.now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages ordered oldest to newest.
func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 6
	}
	var messages []Message
	err := s.db.NewSelect().
		Model(&messages).
		Where("m.conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *PostgresStore) TodaysEvents(ctx context.Context, teacherID string) ([]SchoolEvent, error) {
	var events []SchoolEvent
	q := s.db.NewSelect().
		Model(&events).
		Where("e.date::date = current_date").
		Order("start_time ASC")
	if teacherID = strings.TrimSpace(teacherID); teacherID != "" {
		q = q.Where("e.teacher_id = ?", teacherID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("todays events: %w", err)
	}
	return events, nil
}
