// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/level"
	"github.com/kyiku/tangram-back/internal/model"
	"github.com/kyiku/tangram-back/internal/record"
	"github.com/kyiku/tangram-back/internal/session"
	"github.com/kyiku/tangram-back/internal/worker"
)

// Cookie names.
const (
	SessionCookie = "session_id"
	PlayerCookie  = "player_id"
)

// requestTimeout bounds a single check, snap or win request.
const requestTimeout = 15 * time.Second

// SessionStoreInterface defines the interface for session storage.
type SessionStoreInterface interface {
	Create(playerID string, lvl *model.Level) (*session.Session, string)
	Get(sessionID string) (*session.Session, bool)
}

// LevelCatalog defines the interface for the level catalog.
type LevelCatalog interface {
	Get(id int) (*model.Level, bool)
	First() (*model.Level, bool)
	List() []level.Summary
	Len() int
	Adjacent(id int) (prev, next int)
	UsingFallback() bool
}

// RecordBookInterface returns a player's records.
type RecordBookInterface interface {
	Book(playerID string) *record.Book
}

// OverlayUploader stores overlay snapshots.
type OverlayUploader interface {
	UploadOverlay(res coverage.Result) (string, error)
}

// WorkerInterface runs engine requests.
type WorkerInterface interface {
	Do(ctx context.Context, req worker.Request) (worker.Response, error)
	Status() string
}

// playerID returns the caller's player id, issuing a new one in a cookie
// when there is none.
func playerID(c echo.Context) string {
	if cookie, err := c.Cookie(PlayerCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.New().String()
	c.SetCookie(&http.Cookie{
		Name:     PlayerCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func setSessionCookie(c echo.Context, sessionID string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
