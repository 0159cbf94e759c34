package preferences

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/storefront/pkg/migration"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound は訪問者の設定が保存されていないことを示す。
var ErrNotFound = errors.New("設定が見つかりません")

// Preferences は訪問者の表示設定。
type Preferences struct {
	// VisitorID は訪問者の一意識別子。
	VisitorID string
	// Notifications は通知を受け取るかどうか。
	Notifications bool
	// Newsletter はニュースレターを受け取るかどうか。
	Newsletter bool
	// DarkMode はダークモードで表示するかどうか。
	DarkMode bool
	// UpdatedAt は最終更新日時。保存されていない場合はゼロ値。
	UpdatedAt time.Time
}

// Defaults は設定を保存していない訪問者に適用するデフォルト値を返す。
func Defaults(visitorID string) Preferences {
	return Preferences{
		VisitorID:     visitorID,
		Notifications: true,
		Newsletter:    true,
		DarkMode:      false,
	}
}

// Migrate は設定テーブルのマイグレーションを適用する。
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		return fmt.Errorf("設定テーブルのマイグレーションに失敗: %w", err)
	}
	return nil
}

// Store は訪問者の設定をSQLiteに保存する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewStore は新しいStoreを生成する。テーブルは事前にMigrateで作成しておくこと。
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: time.Now,
	}
}

// Get は訪問者の設定を取得する。保存されていない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, visitorID string) (Preferences, error) {
	var (
		p         Preferences
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT visitor_id, notifications, newsletter, dark_mode, updated_at
		FROM visitor_preferences
		WHERE visitor_id = ?
	`, visitorID).Scan(&p.VisitorID, &p.Notifications, &p.Newsletter, &p.DarkMode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, ErrNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("設定の取得に失敗: %w", err)
	}

	p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Preferences{}, fmt.Errorf("更新日時の解析に失敗: %w", err)
	}
	return p, nil
}

// Save は訪問者の設定を保存する。既に保存されている場合は上書きする。
// 保存後の設定（更新日時を含む）を返す。
func (s *Store) Save(ctx context.Context, p Preferences) (Preferences, error) {
	if p.VisitorID == "" {
		return Preferences{}, errors.New("訪問者IDが指定されていません")
	}

	p.UpdatedAt = s.now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO visitor_preferences (visitor_id, notifications, newsletter, dark_mode, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (visitor_id) DO UPDATE SET
			notifications = excluded.notifications,
			newsletter = excluded.newsletter,
			dark_mode = excluded.dark_mode,
			updated_at = excluded.updated_at
	`, p.VisitorID, p.Notifications, p.Newsletter, p.DarkMode, p.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return Preferences{}, fmt.Errorf("設定の保存に失敗: %w", err)
	}
	return p, nil
}

// Delete は訪問者の設定を削除する。保存されていない場合も成功とする。
func (s *Store) Delete(ctx context.Context, visitorID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM visitor_preferences WHERE visitor_id = ?", visitorID); err != nil {
		return fmt.Errorf("設定の削除に失敗: %w", err)
	}
	return nil
}
