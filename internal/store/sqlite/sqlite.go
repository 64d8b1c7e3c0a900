package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/flowchat-server/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	user := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*store.User, error) {
	// column is one of a fixed set chosen by the callers above.
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE ` + column + ` = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// SearchUsers matches username or email case-insensitively, excluding one user.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*store.User, error) {
	pattern := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, password_hash, created_at
		FROM users
		WHERE id != ?
		  AND (username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\')
		ORDER BY username
		LIMIT ?
	`, excludeID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// ==== ChatStore implementation ====

// CreateChat persists a chat together with its participants.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := s.now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chats (id, is_group, group_name, group_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chat.ID, chat.IsGroup, chat.GroupName, chat.GroupAdmin, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for i, userID := range chat.Participants {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_participants (chat_id, user_id, position)
			VALUES (?, ?, ?)
		`, chat.ID, userID, i)
		if err != nil {
			return fmt.Errorf("insert participant %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat: %w", err)
	}
	return nil
}

const chatColumns = `c.id, c.is_group, c.group_name, c.group_admin, c.last_message_id, c.last_message_time, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*store.Chat, error) {
	var chat store.Chat
	var lastMessageTime sql.NullTime
	if err := row.Scan(
		&chat.ID,
		&chat.IsGroup,
		&chat.GroupName,
		&chat.GroupAdmin,
		&chat.LastMessageID,
		&lastMessageTime,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastMessageTime.Valid {
		t := lastMessageTime.Time
		chat.LastMessageTime = &t
	}
	return &chat, nil
}

// GetChat retrieves a chat with its participants.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)
	chat, err := scanChat(row)
	if err != nil {
		return nil, notFound("chat", err)
	}

	if chat.Participants, err = s.listParticipants(ctx, chat.ID); err != nil {
		return nil, err
	}
	return chat, nil
}

// FindDirectChat returns the one-to-one chat between two users.
func (s *SQLiteStore) FindDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id
		FROM chats c
		WHERE c.is_group = 0
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
		  AND EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = ?)
		  AND (SELECT COUNT(*) FROM chat_participants p WHERE p.chat_id = c.id) = 2
		LIMIT 1
	`, userA, userB).Scan(&id)
	if err != nil {
		return nil, notFound("direct chat", err)
	}
	return s.GetChat(ctx, id)
}

// ListChatsForUser lists every chat the user participates in, most recent activity first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID string) ([]*store.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_time, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []*store.Chat
	for rows.Next() {
		chat, scanErr := scanChat(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", scanErr)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before issuing the participant queries.
	rows.Close()

	for _, chat := range chats {
		if chat.Participants, err = s.listParticipants(ctx, chat.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY position, user_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

// UpdateLastMessage points the chat at its newest message.
func (s *SQLiteStore) UpdateLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE chats SET last_message_id = ?, last_message_time = ?, updated_at = ?
		WHERE id = ?
	`, messageID, at, s.now(), chatID)
	if err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
	}
	return nil
}

// DeleteChat removes a chat with its participants and messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("chat %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and assigns its ID and timestamps.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = msg.CreatedAt

	query := `
		INSERT INTO messages (id, chat_id, sender_id, content, type, file_url, reply_to, is_encrypted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.SenderID, msg.Content, string(msg.Type),
		msg.FileURL, msg.ReplyTo, msg.IsEncrypted, msg.CreatedAt, msg.UpdatedAt,
	)
	if isPrimaryKeyViolation(err) {
		return s.replayMessage(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// replayMessage accepts a second insert of a message that is already stored,
// as happens when a committed write is retried after a timeout.
func (s *SQLiteStore) replayMessage(ctx context.Context, msg *store.Message) error {
	existing, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load existing message: %w", err)
	}
	if existing.ChatID != msg.ChatID || existing.SenderID != msg.SenderID || existing.Content != msg.Content {
		return fmt.Errorf("message %s: %w", msg.ID, store.ErrConflict)
	}
	msg.CreatedAt = existing.CreatedAt
	msg.UpdatedAt = existing.UpdatedAt
	return nil
}

func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// MarkMessageDeleted flags a message as deleted for everyone and replaces its content.
func (s *SQLiteStore) MarkMessageDeleted(ctx context.Context, id, placeholder string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1, content = ?, file_url = '', updated_at = ?
		WHERE id = ?
	`, placeholder, at, id)
	if err != nil {
		return fmt.Errorf("mark message deleted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// HideMessage hides a message from one user's history. Returns false if it was already hidden.
func (s *SQLiteStore) HideMessage(ctx context.Context, messageID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_hidden (message_id, user_id) VALUES (?, ?)
	`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("hide message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

const messageColumns = `id, chat_id, sender_id, content, type, file_url, reply_to, is_encrypted, is_deleted, created_at, updated_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	var msgType string
	if err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Content,
		&msgType,
		&msg.FileURL,
		&msg.ReplyTo,
		&msg.IsEncrypted,
		&msg.IsDeleted,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	msg.Type = store.MessageType(msgType)
	return &msg, nil
}

// GetMessage retrieves a message with its delivery and read lists.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("message", err)
	}
	if err := s.loadReceipts(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) loadReceipts(ctx context.Context, msg *store.Message) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, delivered_at FROM message_deliveries WHERE message_id = ? ORDER BY delivered_at
	`, msg.ID)
	if err != nil {
		return fmt.Errorf("query deliveries: %w", err)
	}
	msg.DeliveredTo = nil
	for rows.Next() {
		var d store.Delivery
		if err := rows.Scan(&d.UserID, &d.DeliveredAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan delivery: %w", err)
		}
		msg.DeliveredTo = append(msg.DeliveredTo, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT user_id, read_at FROM message_reads WHERE message_id = ? ORDER BY read_at
	`, msg.ID)
	if err != nil {
		return fmt.Errorf("query reads: %w", err)
	}
	defer rows.Close()
	msg.ReadBy = nil
	for rows.Next() {
		var r store.Read
		if err := rows.Scan(&r.UserID, &r.ReadAt); err != nil {
			return fmt.Errorf("scan read: %w", err)
		}
		msg.ReadBy = append(msg.ReadBy, r)
	}
	return rows.Err()
}

// AddDelivery records a delivery mark. Returns false if the user was already marked.
func (s *SQLiteStore) AddDelivery(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	return s.insertReceipt(ctx, `
		INSERT OR IGNORE INTO message_deliveries (message_id, user_id, delivered_at)
		VALUES (?, ?, ?)
	`, messageID, userID, at)
}

// AddRead records a read receipt. Returns false if the user had already read the message.
func (s *SQLiteStore) AddRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	return s.insertReceipt(ctx, `
		INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
		VALUES (?, ?, ?)
	`, messageID, userID, at)
}

func (s *SQLiteStore) insertReceipt(ctx context.Context, query, messageID, userID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, messageID, userID, at)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListMessages returns up to limit messages of a chat older than before (if set),
// in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID, viewerID string, limit int, before *time.Time) ([]*store.Message, error) {
	const visible = `
		NOT EXISTS (SELECT 1 FROM message_hidden h WHERE h.message_id = messages.id AND h.user_id = ?)
	`
	var query string
	var args []any

	if before != nil {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ? AND created_at < ? AND ` + visible + `
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{chatID, *before, viewerID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ? AND ` + visible + `
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{chatID, viewerID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	for rows.Next() {
		msg, scanErr := scanMessage(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", scanErr)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, msg := range messages {
		if err := s.loadReceipts(ctx, msg); err != nil {
			return nil, err
		}
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// ==== FriendStore implementation ====

const friendColumns = `requester_id, recipient_id, status, created_at, updated_at`

func scanFriend(row rowScanner) (*store.Friend, error) {
	var f store.Friend
	var status string
	if err := row.Scan(&f.RequesterID, &f.RecipientID, &status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Status = store.FriendStatus(status)
	return &f, nil
}

// CreateFriendRequest stores a pending request from requesterID to recipientID.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, requesterID, recipientID string) (*store.Friend, error) {
	now := s.now()
	f := &store.Friend{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      store.FriendStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friends (requester_id, recipient_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.RequesterID, f.RecipientID, string(f.Status), f.CreatedAt, f.UpdatedAt)
	if isPrimaryKeyViolation(err) {
		return nil, fmt.Errorf("friend request: %w", store.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	return f, nil
}

// GetFriendship returns the record between two users in either direction.
func (s *SQLiteStore) GetFriendship(ctx context.Context, userA, userB string) (*store.Friend, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+friendColumns+`
		FROM friends
		WHERE (requester_id = ? AND recipient_id = ?) OR (requester_id = ? AND recipient_id = ?)
		LIMIT 1
	`, userA, userB, userB, userA)
	f, err := scanFriend(row)
	if err != nil {
		return nil, notFound("friendship", err)
	}
	return f, nil
}

// UpdateFriendStatus changes the status of the requesterID -> recipientID record.
func (s *SQLiteStore) UpdateFriendStatus(ctx context.Context, requesterID, recipientID string, status store.FriendStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE friends SET status = ?, updated_at = ?
		WHERE requester_id = ? AND recipient_id = ?
	`, string(status), s.now(), requesterID, recipientID)
	if err != nil {
		return fmt.Errorf("update friend status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("friendship: %w", store.ErrNotFound)
	}
	return nil
}

// DeleteFriendship removes the requesterID -> recipientID record.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, requesterID, recipientID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM friends WHERE requester_id = ? AND recipient_id = ?
	`, requesterID, recipientID); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

// ListFriendships lists records touching userID with the given status.
func (s *SQLiteStore) ListFriendships(ctx context.Context, userID string, status store.FriendStatus) ([]*store.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+friendColumns+`
		FROM friends
		WHERE (requester_id = ? OR recipient_id = ?) AND status = ?
		ORDER BY updated_at DESC
	`, userID, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// FriendIDs returns the ids of userID's accepted friends.
func (s *SQLiteStore) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	friends, err := s.ListFriendships(ctx, userID, store.FriendStatusAccepted)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.Other(userID))
	}
	return ids, nil
}

// ==== StatusStore implementation ====

const statusColumns = `id, user_id, content, type, media_url, background_color, text_color, font, created_at, expires_at`

func scanStatus(row rowScanner) (*store.Status, error) {
	var st store.Status
	var statusType string
	if err := row.Scan(
		&st.ID,
		&st.UserID,
		&st.Content,
		&statusType,
		&st.MediaURL,
		&st.BackgroundColor,
		&st.TextColor,
		&st.Font,
		&st.CreatedAt,
		&st.ExpiresAt,
	); err != nil {
		return nil, err
	}
	st.Type = store.StatusType(statusType)
	return &st, nil
}

// CreateStatus persists a status and assigns its ID.
func (s *SQLiteStore) CreateStatus(ctx context.Context, st *store.Status) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statuses (`+statusColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.ID, st.UserID, st.Content, string(st.Type), st.MediaURL,
		st.BackgroundColor, st.TextColor, st.Font, st.CreatedAt, st.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

// GetStatus retrieves a status with its views.
func (s *SQLiteStore) GetStatus(ctx context.Context, id string) (*store.Status, error) {
	st, err := scanStatus(s.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("status", err)
	}
	if err := s.loadViews(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) loadViews(ctx context.Context, st *store.Status) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, viewed_at FROM status_views WHERE status_id = ? ORDER BY viewed_at
	`, st.ID)
	if err != nil {
		return fmt.Errorf("query status views: %w", err)
	}
	defer rows.Close()

	st.Views = nil
	for rows.Next() {
		var v store.StatusView
		if err := rows.Scan(&v.UserID, &v.ViewedAt); err != nil {
			return fmt.Errorf("scan status view: %w", err)
		}
		st.Views = append(st.Views, v)
	}
	return rows.Err()
}

// ListStatuses returns the statuses of userIDs not yet expired at now, newest first.
func (s *SQLiteStore) ListStatuses(ctx context.Context, userIDs []string, now time.Time) ([]*store.Status, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(userIDs)+1)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, now)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statusColumns+`
		FROM statuses
		WHERE user_id IN (`+placeholders+`) AND expires_at > ?
		ORDER BY created_at DESC, rowid DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}

	var statuses []*store.Status
	for rows.Next() {
		st, scanErr := scanStatus(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status: %w", scanErr)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, st := range statuses {
		if err := s.loadViews(ctx, st); err != nil {
			return nil, err
		}
	}
	return statuses, nil
}

// AddStatusView records a view. Returns false if the user had already viewed it.
func (s *SQLiteStore) AddStatusView(ctx context.Context, statusID, userID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO status_views (status_id, user_id, viewed_at)
		VALUES (?, ?, ?)
	`, statusID, userID, at)
	if err != nil {
		return false, fmt.Errorf("insert status view: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// DeleteStatus removes a status and its views.
func (s *SQLiteStore) DeleteStatus(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM statuses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("status %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteExpiredStatuses removes statuses expired at now and reports how many.
func (s *SQLiteStore) DeleteExpiredStatuses(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM statuses WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired statuses: %w", err)
	}
	return result.RowsAffected()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
