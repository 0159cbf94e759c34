package preferences

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/pkg/middleware"
	"go.uber.org/zap"
)

// SaveCounter は設定の保存回数を数える。
type SaveCounter interface {
	IncPreferencesSaved()
}

// Handler は訪問者設定のHTTPハンドラ群。
// 訪問者IDはmiddleware.VisitorSessionが設定したものを使う。
type Handler struct {
	// store は設定の保存先。
	store *Store
	// counter は保存回数のカウンタ。
	counter SaveCounter
	// logger はエラー出力用のロガー。
	logger *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(store *Store, counter SaveCounter, logger *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		counter: counter,
		logger:  logger,
	}
}

// RegisterRoutes は設定のルーティングを登録する。
func (h *Handler) RegisterRoutes(rg gin.IRoutes) {
	// 設定取得
	rg.GET("/preferences", h.handleGet())
	// 設定更新（部分更新）
	rg.PUT("/preferences", h.handleUpdate())
	// 設定をデフォルトに戻す
	rg.DELETE("/preferences", h.handleReset())
}

// updatePreferencesRequest は設定更新リクエストのJSON構造。
// 省略した項目は現在の値を維持する。
type updatePreferencesRequest struct {
	// Notifications は通知を受け取るかどうか。
	Notifications *bool `json:"notifications"`
	// Newsletter はニュースレターを受け取るかどうか。
	Newsletter *bool `json:"newsletter"`
	// DarkMode はダークモードで表示するかどうか。
	DarkMode *bool `json:"dark_mode"`
}

// preferencesResponse は設定のJSONレスポンス構造。
type preferencesResponse struct {
	// Notifications は通知を受け取るかどうか。
	Notifications bool `json:"notifications"`
	// Newsletter はニュースレターを受け取るかどうか。
	Newsletter bool `json:"newsletter"`
	// DarkMode はダークモードで表示するかどうか。
	DarkMode bool `json:"dark_mode"`
	// Stored は保存済みの設定かどうか。falseの場合はデフォルト値。
	Stored bool `json:"stored"`
	// UpdatedAt は最終更新日時。保存されていない場合は省略する。
	UpdatedAt string `json:"updated_at,omitempty"`
}

// toResponse は設定をJSONレスポンスに変換する。
func toResponse(p Preferences, stored bool) preferencesResponse {
	resp := preferencesResponse{
		Notifications: p.Notifications,
		Newsletter:    p.Newsletter,
		DarkMode:      p.DarkMode,
		Stored:        stored,
	}
	if stored {
		resp.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}

// handleGet は設定取得を処理するハンドラを返す。
// 保存されていない場合はデフォルト値を返す。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := middleware.GetVisitorID(c)
		if visitorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "訪問者IDが取得できません"})
			return
		}

		p, err := h.store.Get(c.Request.Context(), visitorID)
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusOK, toResponse(Defaults(visitorID), false))
			return
		}
		if err != nil {
			h.logger.Error("設定取得エラー", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "設定の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, toResponse(p, true))
	}
}

// handleUpdate は設定更新を処理するハンドラを返す。
// リクエストで指定した項目のみ更新し、それ以外は現在の値（未保存ならデフォルト値）を維持する。
func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := middleware.GetVisitorID(c)
		if visitorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "訪問者IDが取得できません"})
			return
		}

		var req updatePreferencesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		ctx := c.Request.Context()
		current, err := h.store.Get(ctx, visitorID)
		if errors.Is(err, ErrNotFound) {
			current = Defaults(visitorID)
		} else if err != nil {
			h.logger.Error("設定取得エラー", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "設定の取得に失敗しました"})
			return
		}

		if req.Notifications != nil {
			current.Notifications = *req.Notifications
		}
		if req.Newsletter != nil {
			current.Newsletter = *req.Newsletter
		}
		if req.DarkMode != nil {
			current.DarkMode = *req.DarkMode
		}

		saved, err := h.store.Save(ctx, current)
		if err != nil {
			h.logger.Error("設定保存エラー", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "設定の保存に失敗しました"})
			return
		}
		h.counter.IncPreferencesSaved()

		c.JSON(http.StatusOK, toResponse(saved, true))
	}
}

// handleReset は設定をデフォルトに戻すハンドラを返す。
// 保存されていない場合も成功として扱う。
func (h *Handler) handleReset() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID := middleware.GetVisitorID(c)
		if visitorID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "訪問者IDが取得できません"})
			return
		}

		if err := h.store.Delete(c.Request.Context(), visitorID); err != nil {
			h.logger.Error("設定削除エラー", zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "設定の削除に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, toResponse(Defaults(visitorID), false))
	}
}
