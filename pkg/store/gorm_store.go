package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"messenger/pkg/domain"
)

const migrateLockID int64 = 58117411

const defaultSlowThreshold = time.Second

type GormStoreOptions struct {
	SlowThreshold time.Duration
}

type GormStoreOption func(*GormStoreOptions)

// WithSlowThreshold sets the duration above which queries are logged as slow.
func WithSlowThreshold(d time.Duration) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.SlowThreshold = d
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{SlowThreshold: defaultSlowThreshold}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = defaultSlowThreshold
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&IdentityModel{},
			&ChatModel{},
			&DirectChatModel{},
			&GroupChatModel{},
			&MembershipModel{},
			&MessageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'direct_chat_models'
					AND constraint_name = 'direct_chat_models_chat_id_fkey'
				) THEN
					ALTER TABLE direct_chat_models
					ADD CONSTRAINT direct_chat_models_chat_id_fkey
					FOREIGN KEY (chat_id) REFERENCES chat_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'direct_chat_models'
					AND constraint_name = 'direct_chat_models_distinct_members'
				) THEN
					ALTER TABLE direct_chat_models
					ADD CONSTRAINT direct_chat_models_distinct_members
					CHECK (member_a < member_b);
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'group_chat_models'
					AND constraint_name = 'group_chat_models_chat_id_fkey'
				) THEN
					ALTER TABLE group_chat_models
					ADD CONSTRAINT group_chat_models_chat_id_fkey
					FOREIGN KEY (chat_id) REFERENCES chat_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'membership_models'
					AND constraint_name = 'membership_models_group_id_fkey'
				) THEN
					ALTER TABLE membership_models
					ADD CONSTRAINT membership_models_group_id_fkey
					FOREIGN KEY (group_id) REFERENCES chat_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'membership_models'
					AND constraint_name = 'membership_models_user_id_fkey'
				) THEN
					ALTER TABLE membership_models
					ADD CONSTRAINT membership_models_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES identity_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_chat_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_chat_id_fkey
					FOREIGN KEY (chat_id) REFERENCES chat_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure chat constraints: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateIdentity inserts a new identity. A taken handle yields ErrConflict.
func (s *GormStore) CreateIdentity(ctx context.Context, identity domain.Identity) error {
	model := identityToModel(identity)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// UpdateIdentity overwrites the mutable profile fields of an identity.
func (s *GormStore) UpdateIdentity(ctx context.Context, identity domain.Identity) error {
	res := s.db.WithContext(ctx).Model(&IdentityModel{}).
		Where("id = ?", identity.ID).
		Updates(map[string]any{
			"handle":              identity.Handle,
			"display_name":        identity.DisplayName,
			"status_text":         identity.StatusText,
			"avatar_ref":          identity.AvatarRef,
			"allow_group_invites": identity.AllowGroupInvites,
			"handle_version":      identity.HandleVersion,
			"updated_at":          identity.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetIdentityByID returns an identity by ID.
func (s *GormStore) GetIdentityByID(ctx context.Context, id string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// GetIdentityByHandle looks up an identity by its normalized handle.
func (s *GormStore) GetIdentityByHandle(ctx context.Context, handle string) (domain.Identity, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).Where("handle = ?", handle).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Identity{}, false, nil
		}
		return domain.Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// GetIdentities returns the identities that exist among ids, in no particular order.
func (s *GormStore) GetIdentities(ctx context.Context, ids []string) ([]domain.Identity, error) {
	if len(ids) == 0 {
		return []domain.Identity{}, nil
	}
	var models []IdentityModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Identity, 0, len(models))
	for _, m := range models {
		res = append(res, identityFromModel(m))
	}
	return res, nil
}

// SearchIdentities matches handle or display name prefixes, case-insensitively.
func (s *GormStore) SearchIdentities(ctx context.Context, query, excludeID string, limit int) ([]domain.Identity, error) {
	if limit <= 0 {
		return []domain.Identity{}, nil
	}
	pattern := escapeLike(strings.ToLower(query)) + "%"
	var models []IdentityModel
	if err := s.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Where("(handle LIKE ? ESCAPE '\\' OR LOWER(display_name) LIKE ? ESCAPE '\\')", pattern, pattern).
		Order("handle ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Identity, 0, len(models))
	for _, m := range models {
		res = append(res, identityFromModel(m))
	}
	return res, nil
}

// GetPreferences returns the stored preference blob of a user.
func (s *GormStore) GetPreferences(ctx context.Context, userID string) (json.RawMessage, bool, error) {
	var model IdentityModel
	if err := s.db.WithContext(ctx).Select("id", "preferences").First(&model, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return json.RawMessage(model.Preferences), true, nil
}

// PutPreferences replaces the preference blob of a user.
func (s *GormStore) PutPreferences(ctx context.Context, userID string, blob json.RawMessage) error {
	res := s.db.WithContext(ctx).Model(&IdentityModel{}).
		Where("id = ?", userID).
		Update("preferences", datatypes.JSON(blob))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const chatColumns = `c.id, c.kind, c.last_message_preview, c.last_message_at, c.created_at,
	COALESCE(d.member_a, '') AS member_a, COALESCE(d.member_b, '') AS member_b,
	COALESCE(g.name, '') AS name, COALESCE(g.owner_id, '') AS owner_id, COALESCE(g.avatar_ref, '') AS avatar_ref`

type chatRow struct {
	ID                 string
	Kind               string
	LastMessagePreview string
	LastMessageAt      time.Time
	CreatedAt          time.Time
	MemberA            string
	MemberB            string
	Name               string
	OwnerID            string
	AvatarRef          string
}

func chatQuery(db *gorm.DB) *gorm.DB {
	return db.Table("chat_models AS c").
		Select(chatColumns).
		Joins("LEFT JOIN direct_chat_models d ON d.chat_id = c.id").
		Joins("LEFT JOIN group_chat_models g ON g.chat_id = c.id")
}

// FindDirectChat returns the direct chat between two users, if any.
func (s *GormStore) FindDirectChat(ctx context.Context, userA, userB string) (domain.Chat, bool, error) {
	pair := domain.NewDirectChat(userA, userB)
	var rows []chatRow
	if err := chatQuery(s.db.WithContext(ctx)).
		Where("d.member_a = ? AND d.member_b = ?", pair.MemberA, pair.MemberB).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return domain.Chat{}, false, err
	}
	if len(rows) == 0 {
		return domain.Chat{}, false, nil
	}
	return chatFromRow(rows[0]), true, nil
}

// CreateDirectChat inserts a direct chat. An existing chat for the same pair yields ErrConflict.
func (s *GormStore) CreateDirectChat(ctx context.Context, chat domain.Chat) error {
	if chat.Direct == nil {
		return fmt.Errorf("direct chat %s has no members", chat.ID)
	}
	pair := domain.NewDirectChat(chat.Direct.MemberA, chat.Direct.MemberB)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := chatToModel(chat)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		direct := DirectChatModel{ChatID: chat.ID, MemberA: pair.MemberA, MemberB: pair.MemberB}
		return tx.Create(&direct).Error
	})
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// CreateGroupChat inserts a group chat together with its memberships.
func (s *GormStore) CreateGroupChat(ctx context.Context, chat domain.Chat, members []domain.Membership) error {
	if chat.Group == nil {
		return fmt.Errorf("group chat %s has no metadata", chat.ID)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := chatToModel(chat)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		group := GroupChatModel{
			ChatID:    chat.ID,
			Name:      chat.Group.Name,
			OwnerID:   chat.Group.OwnerID,
			AvatarRef: chat.Group.AvatarRef,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		models := make([]MembershipModel, 0, len(members))
		for _, m := range members {
			models = append(models, MembershipModel{
				GroupID:    chat.ID,
				UserID:     m.UserID,
				JoinedAt:   m.JoinedAt,
				LastReadAt: m.LastReadAt,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&models, 200).Error
	})
}

// GetChat returns one chat by ID.
func (s *GormStore) GetChat(ctx context.Context, id string) (domain.Chat, bool, error) {
	var rows []chatRow
	if err := chatQuery(s.db.WithContext(ctx)).Where("c.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return domain.Chat{}, false, err
	}
	if len(rows) == 0 {
		return domain.Chat{}, false, nil
	}
	return chatFromRow(rows[0]), true, nil
}

// IsMember reports whether userID belongs to the group.
func (s *GormStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MembershipModel{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type groupRow struct {
	chatRow
	LastReadAt time.Time
}

type countRow struct {
	ChatID string
	Total  int
}

// ListChatEntries gathers every chat userID participates in, with peer identities,
// member counts and unread counts, from one consistent snapshot.
func (s *GormStore) ListChatEntries(ctx context.Context, userID string) ([]domain.ChatEntry, error) {
	var entries []domain.ChatEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var directs []chatRow
		if err := chatQuery(tx).
			Where("d.member_a = ? OR d.member_b = ?", userID, userID).
			Scan(&directs).Error; err != nil {
			return fmt.Errorf("list direct chats: %w", err)
		}
		var groups []groupRow
		if err := chatQuery(tx).
			Select(chatColumns+", m.last_read_at").
			Joins("JOIN membership_models m ON m.group_id = c.id AND m.user_id = ?", userID).
			Where("c.kind = ?", string(domain.ChatGroup)).
			Scan(&groups).Error; err != nil {
			return fmt.Errorf("list group chats: %w", err)
		}

		peerIDs := make([]string, 0, len(directs))
		directIDs := make([]string, 0, len(directs))
		for _, row := range directs {
			peerIDs = append(peerIDs, domain.DirectChat{MemberA: row.MemberA, MemberB: row.MemberB}.Peer(userID))
			directIDs = append(directIDs, row.ID)
		}
		peers := map[string]domain.Identity{}
		if len(peerIDs) > 0 {
			var models []IdentityModel
			if err := tx.Where("id IN ?", peerIDs).Find(&models).Error; err != nil {
				return fmt.Errorf("load peers: %w", err)
			}
			for _, m := range models {
				peers[m.ID] = identityFromModel(m)
			}
		}

		directUnread := map[string]int{}
		if len(directIDs) > 0 {
			var counts []countRow
			if err := tx.Model(&MessageModel{}).
				Select("chat_id, COUNT(*) AS total").
				Where("chat_id IN ? AND receiver_id = ? AND is_read = ?", directIDs, userID, false).
				Group("chat_id").
				Scan(&counts).Error; err != nil {
				return fmt.Errorf("count direct unread: %w", err)
			}
			for _, c := range counts {
				directUnread[c.ChatID] = c.Total
			}
		}

		memberCounts := map[string]int{}
		groupUnread := map[string]int{}
		if len(groups) > 0 {
			groupIDs := make([]string, 0, len(groups))
			for _, row := range groups {
				groupIDs = append(groupIDs, row.ID)
			}
			var counts []countRow
			if err := tx.Model(&MembershipModel{}).
				Select("group_id AS chat_id, COUNT(*) AS total").
				Where("group_id IN ?", groupIDs).
				Group("group_id").
				Scan(&counts).Error; err != nil {
				return fmt.Errorf("count members: %w", err)
			}
			for _, c := range counts {
				memberCounts[c.ChatID] = c.Total
			}
			counts = counts[:0]
			if err := tx.Table("message_models AS msg").
				Select("msg.chat_id, COUNT(*) AS total").
				Joins("JOIN membership_models m ON m.group_id = msg.chat_id AND m.user_id = ?", userID).
				Where("msg.chat_id IN ? AND msg.sender_id <> ? AND msg.sent_at > m.last_read_at", groupIDs, userID).
				Group("msg.chat_id").
				Scan(&counts).Error; err != nil {
				return fmt.Errorf("count group unread: %w", err)
			}
			for _, c := range counts {
				groupUnread[c.ChatID] = c.Total
			}
		}

		entries = make([]domain.ChatEntry, 0, len(directs)+len(groups))
		for _, row := range directs {
			chat := chatFromRow(row)
			entry := domain.ChatEntry{Chat: chat, MemberCount: 2, Unread: directUnread[chat.ID]}
			if peer, ok := peers[chat.Direct.Peer(userID)]; ok {
				entry.Peer = &peer
			}
			entries = append(entries, entry)
		}
		for _, row := range groups {
			chat := chatFromRow(row.chatRow)
			entries = append(entries, domain.ChatEntry{
				Chat:        chat,
				MemberCount: memberCounts[chat.ID],
				Unread:      groupUnread[chat.ID],
			})
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	sortChatEntries(entries)
	return entries, nil
}

// AppendMessage stores msg and refreshes the chat summary in one transaction.
// The chat row is locked so sent_at never goes backwards in commit order; the
// stored message (with its possibly adjusted SentAt) is returned.
func (s *GormStore) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat ChatModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&chat, "id = ?", msg.ChatID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !msg.SentAt.After(chat.LastMessageAt) {
			msg.SentAt = chat.LastMessageAt.Add(time.Microsecond)
		}
		model := messageToModel(msg)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ChatModel{}).
			Where("id = ?", msg.ChatID).
			Updates(map[string]any{
				"last_message_preview": msg.Preview(),
				"last_message_at":      msg.SentAt,
			}).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListMessages returns all messages of a chat in (sent_at, id) order.
func (s *GormStore) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sent_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

// MarkRead flags the given messages addressed to receiverID as read and
// returns how many changed.
func (s *GormStore) MarkRead(ctx context.Context, chatID, receiverID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("chat_id = ? AND receiver_id = ? AND is_read = ? AND id IN ?", chatID, receiverID, false, messageIDs).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// AdvanceReadCursor moves a member's group read cursor forward, never back.
func (s *GormStore) AdvanceReadCursor(ctx context.Context, groupID, userID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&MembershipModel{}).
		Where("group_id = ? AND user_id = ? AND last_read_at < ?", groupID, userID, at).
		Update("last_read_at", at).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func identityToModel(i domain.Identity) IdentityModel {
	return IdentityModel{
		ID:                i.ID,
		Handle:            i.Handle,
		DisplayName:       i.DisplayName,
		StatusText:        i.StatusText,
		AvatarRef:         i.AvatarRef,
		Preferences:       datatypes.JSON(i.Preferences),
		AllowGroupInvites: i.AllowGroupInvites,
		PasswordHash:      i.PasswordHash,
		HandleVersion:     i.HandleVersion,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
	}
}

func identityFromModel(m IdentityModel) domain.Identity {
	return domain.Identity{
		ID:                m.ID,
		Handle:            m.Handle,
		DisplayName:       m.DisplayName,
		StatusText:        m.StatusText,
		AvatarRef:         m.AvatarRef,
		Preferences:       json.RawMessage(m.Preferences),
		AllowGroupInvites: m.AllowGroupInvites,
		PasswordHash:      m.PasswordHash,
		HandleVersion:     m.HandleVersion,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{
		ID:                 c.ID,
		Kind:               string(c.Kind),
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt,
		CreatedAt:          c.CreatedAt,
	}
}

func chatFromRow(row chatRow) domain.Chat {
	chat := domain.Chat{
		ID:                 row.ID,
		Kind:               domain.ChatKind(row.Kind),
		LastMessagePreview: row.LastMessagePreview,
		LastMessageAt:      row.LastMessageAt,
		CreatedAt:          row.CreatedAt,
	}
	switch chat.Kind {
	case domain.ChatDirect:
		chat.Direct = &domain.DirectChat{MemberA: row.MemberA, MemberB: row.MemberB}
	case domain.ChatGroup:
		chat.Group = &domain.GroupChat{Name: row.Name, OwnerID: row.OwnerID, AvatarRef: row.AvatarRef}
	}
	return chat
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:            msg.ID,
		ChatID:        msg.ChatID,
		SenderID:      msg.SenderID,
		ReceiverID:    optionalString(msg.ReceiverID),
		Text:          optionalString(msg.Text),
		AttachmentRef: optionalString(msg.AttachmentRef),
		SentAt:        msg.SentAt,
		Read:          msg.Read,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:            m.ID,
		ChatID:        m.ChatID,
		SenderID:      m.SenderID,
		ReceiverID:    derefString(m.ReceiverID),
		Text:          derefString(m.Text),
		AttachmentRef: derefString(m.AttachmentRef),
		SentAt:        m.SentAt,
		Read:          m.Read,
	}
}

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
