package preferences

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openTestDB はマイグレーション済みのインメモリデータベースを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("Migrate()でエラーが発生: %v", err)
	}
	return db
}

// newTestStore は時刻を固定したStoreを生成する。
func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()

	s := NewStore(openTestDB(t))
	s.now = func() time.Time { return now }
	return s
}

// TestDefaults はデフォルト値を検証する。
func TestDefaults(t *testing.T) {
	t.Parallel()

	want := Preferences{
		VisitorID:     "visitor-1",
		Notifications: true,
		Newsletter:    true,
		DarkMode:      false,
	}
	if diff := cmp.Diff(want, Defaults("visitor-1")); diff != "" {
		t.Errorf("Defaults()が一致しない (-want +got):\n%s", diff)
	}
}

// TestMigrate はマイグレーションを再実行しても失敗しないことを検証する。
func TestMigrate(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	if err := Migrate(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("2回目のMigrate()でエラーが発生: %v", err)
	}
}

// TestStore はStoreの保存、取得、削除を検証する。
func TestStore(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("保存されていない訪問者はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if _, err := s.Get(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get()のエラー = %v, want ErrNotFound", err)
		}
	})

	t.Run("保存した設定を取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		in := Preferences{VisitorID: "visitor-1", Notifications: false, Newsletter: true, DarkMode: true}

		saved, err := s.Save(ctx, in)
		if err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}
		if !saved.UpdatedAt.Equal(fixed) {
			t.Errorf("UpdatedAt = %v, want %v", saved.UpdatedAt, fixed)
		}

		got, err := s.Get(ctx, "visitor-1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		want := in
		want.UpdatedAt = fixed
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("取得した設定が一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("再保存で上書きされること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if _, err := s.Save(ctx, Preferences{VisitorID: "visitor-1", Notifications: true, Newsletter: true}); err != nil {
			t.Fatalf("1回目のSave()でエラーが発生: %v", err)
		}

		later := fixed.Add(time.Hour)
		s.now = func() time.Time { return later }
		if _, err := s.Save(ctx, Preferences{VisitorID: "visitor-1", DarkMode: true}); err != nil {
			t.Fatalf("2回目のSave()でエラーが発生: %v", err)
		}

		got, err := s.Get(ctx, "visitor-1")
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		want := Preferences{VisitorID: "visitor-1", DarkMode: true, UpdatedAt: later}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("取得した設定が一致しない (-want +got):\n%s", diff)
		}
	})

	t.Run("訪問者ごとに独立して保存されること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if _, err := s.Save(ctx, Preferences{VisitorID: "a", DarkMode: true}); err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}
		if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
			t.Errorf("別の訪問者のGet()のエラー = %v, want ErrNotFound", err)
		}
	})

	t.Run("削除後はErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if _, err := s.Save(ctx, Defaults("visitor-1")); err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}
		if err := s.Delete(ctx, "visitor-1"); err != nil {
			t.Fatalf("Delete()でエラーが発生: %v", err)
		}
		if _, err := s.Get(ctx, "visitor-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get()のエラー = %v, want ErrNotFound", err)
		}
	})

	t.Run("保存されていない訪問者の削除も成功すること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if err := s.Delete(ctx, "nobody"); err != nil {
			t.Errorf("Delete()でエラーが発生: %v", err)
		}
	})

	t.Run("訪問者IDが空の場合は保存できないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t, fixed)
		if _, err := s.Save(ctx, Preferences{}); err == nil {
			t.Fatal("訪問者IDが空の場合はエラーを返すべき")
		}
	})
}
