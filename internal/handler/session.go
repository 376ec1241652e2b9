package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/model"
	"github.com/kyiku/tangram-back/internal/response"
	"github.com/kyiku/tangram-back/internal/session"
	"github.com/kyiku/tangram-back/internal/snap"
)

// SessionHandler serves the puzzle session API.
type SessionHandler struct {
	store    SessionStoreInterface
	catalog  LevelCatalog
	hinter   session.Hinter
	uploader OverlayUploader
	logger   *log.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store SessionStoreInterface, catalog LevelCatalog, logger *log.Logger) *SessionHandler {
	if logger == nil {
		logger = log.New("handler")
	}
	return &SessionHandler{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// SetHinter sets the hint generator. Without one the level's own hint is used.
func (h *SessionHandler) SetHinter(hinter session.Hinter) {
	h.hinter = hinter
}

// SetUploader sets the overlay snapshot store. Without one overlays are
// returned as PNG directly.
func (h *SessionHandler) SetUploader(u OverlayUploader) {
	h.uploader = u
}

// CreateRequest represents the session creation request.
type CreateRequest struct {
	LevelID int `json:"level_id"`
}

// MoveRequest represents a drag step.
type MoveRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// RotateRequest represents a rotation. A zero angle rotates by the
// gesture's step: 90 degrees for a double click, 45 otherwise.
type RotateRequest struct {
	Angle  float64 `json:"angle"`
	Double bool    `json:"double"`
}

// CheckRequest represents a coverage check.
type CheckRequest struct {
	Strict bool `json:"strict"`
}

// SnapRequest represents a snap run. Missing options take the server defaults.
type SnapRequest struct {
	Options snap.Options `json:"options"`
}

// Create handles POST /api/session.
func (h *SessionHandler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}

	lvl, ok := h.catalog.First()
	if req.LevelID != 0 {
		lvl, ok = h.catalog.Get(req.LevelID)
	}
	if !ok {
		return response.Error(c, http.StatusNotFound, "レベルが見つかりません")
	}

	sess, sessionID := h.store.Create(playerID(c), lvl)
	setSessionCookie(c, sessionID)

	prev, next := h.catalog.Adjacent(lvl.LevelID)
	return response.Success(c, map[string]interface{}{
		"session_id": sessionID,
		"state":      sess.State(),
		"prev":       prev,
		"next":       next,
	})
}

// State handles GET /api/session.
func (h *SessionHandler) State(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	return response.Success(c, map[string]interface{}{
		"state": sess.State(),
	})
}

// Drag handles POST /api/session/pieces/:index/drag.
func (h *SessionHandler) Drag(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	index, err := pieceIndex(c)
	if err != nil {
		return h.fail(c, sess, err)
	}
	if err := sess.BeginDrag(index); err != nil {
		return h.fail(c, sess, err)
	}
	return response.Success(c, map[string]interface{}{
		"version": sess.Version(),
	})
}

// Move handles POST /api/session/pieces/:index/move.
func (h *SessionHandler) Move(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	index, err := pieceIndex(c)
	if err != nil {
		return h.fail(c, sess, err)
	}
	var req MoveRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}

	moved, err := sess.Move(index, req.DX, req.DY)
	if err != nil {
		return h.fail(c, sess, err)
	}
	st := sess.State()
	return response.Success(c, map[string]interface{}{
		"moved":   moved,
		"piece":   st.Pieces[index],
		"markers": st.Markers,
		"message": st.Message,
		"version": st.Version,
	})
}

// Release handles POST /api/session/pieces/:index/release.
func (h *SessionHandler) Release(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	index, err := pieceIndex(c)
	if err != nil {
		return h.fail(c, sess, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	verdict, err := sess.Release(ctx, index)
	if err != nil {
		return h.fail(c, sess, err)
	}
	overlay, _ := sess.Overlay()
	return response.Success(c, map[string]interface{}{
		"verdict": verdict,
		"overlay": overlay,
		"version": sess.Version(),
	})
}

// Rotate handles POST /api/session/pieces/:index/rotate.
func (h *SessionHandler) Rotate(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	index, err := pieceIndex(c)
	if err != nil {
		return h.fail(c, sess, err)
	}
	var req RotateRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}

	angle := req.Angle
	if angle == 0 && req.Double {
		angle = model.RotateStepDouble
	}
	if err := sess.Rotate(index, angle); err != nil {
		return h.fail(c, sess, err)
	}
	st := sess.State()
	return response.Success(c, map[string]interface{}{
		"piece":   st.Pieces[index],
		"version": st.Version,
	})
}

// Check handles POST /api/session/check.
func (h *SessionHandler) Check(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := sess.Check(ctx, req.Strict)
	if err != nil {
		return h.fail(c, sess, err)
	}
	return response.Success(c, map[string]interface{}{
		"uncovered": res.Uncovered,
		"overlap":   res.Overlap,
		"width":     res.Width,
		"height":    res.Height,
		"overlay":   res.Overlay,
		"version":   sess.Version(),
	})
}

// Snap handles POST /api/session/snap.
func (h *SessionHandler) Snap(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	var req SnapRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := sess.Snap(ctx, req.Options)
	if err != nil {
		return h.fail(c, sess, err)
	}
	return response.Success(c, map[string]interface{}{
		"improved":    res.Improved,
		"state":       res.State,
		"evaluations": res.Evaluations,
		"pieces":      sess.State().Pieces,
		"version":     sess.Version(),
	})
}

// Win handles POST /api/session/win.
func (h *SessionHandler) Win(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := sess.Win(ctx)
	if err != nil {
		return h.fail(c, sess, err)
	}
	prev, next := h.catalog.Adjacent(sess.LevelID())
	return response.Success(c, map[string]interface{}{
		"result": res,
		"prev":   prev,
		"next":   next,
	})
}

// Pause handles POST /api/session/pause.
func (h *SessionHandler) Pause(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	paused := sess.Pause()
	return response.Success(c, map[string]interface{}{
		"paused":  paused,
		"elapsed": sess.State().Elapsed,
	})
}

// Reset handles POST /api/session/reset.
func (h *SessionHandler) Reset(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	sess.Reset()
	return response.Success(c, map[string]interface{}{
		"state": sess.State(),
	})
}

// Hint handles POST /api/session/hint. The stopwatch is paused while the
// hint is shown.
func (h *SessionHandler) Hint(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}
	hint, err := sess.Hint(h.hinter)
	if err != nil {
		h.logger.Warnf("failed to generate hint: %v", err)
		return response.Error(c, http.StatusServiceUnavailable, "ヒントを取得できませんでした")
	}
	return response.Success(c, map[string]interface{}{
		"hint":   hint,
		"paused": sess.State().Paused,
	})
}

// Overlay handles POST /api/session/overlay. The latest overlay, or a
// fresh lenient one, is uploaded and its URL returned. Without an uploader
// the PNG itself is the response.
func (h *SessionHandler) Overlay(c echo.Context) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	res, ok := sess.Overlay()
	if !ok {
		ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
		defer cancel()
		if res, err = sess.Check(ctx, false); err != nil {
			return h.fail(c, sess, err)
		}
	}
	if res.Overlay == nil {
		return response.Error(c, http.StatusNotFound, "オーバーレイがありません")
	}

	if h.uploader == nil {
		var buf bytes.Buffer
		if err := res.EncodePNG(&buf); err != nil {
			return h.fail(c, sess, err)
		}
		return c.Blob(http.StatusOK, "image/png", buf.Bytes())
	}

	url, err := h.uploader.UploadOverlay(res)
	if err != nil {
		h.logger.Errorf("failed to upload overlay: %v", err)
		return response.Error(c, http.StatusInternalServerError, "オーバーレイの保存に失敗しました")
	}
	return response.Success(c, map[string]interface{}{
		"url": url,
	})
}

// session returns the caller's session. When it returns nil the error
// response has already been written and err is its write result.
func (h *SessionHandler) session(c echo.Context) (*session.Session, error) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie == nil || cookie.Value == "" {
		return nil, response.ErrorWithCode(c, http.StatusUnauthorized, "SESSION_NOT_FOUND", "セッションが見つかりません")
	}
	sess, ok := h.store.Get(cookie.Value)
	if !ok {
		return nil, response.ErrorWithCode(c, http.StatusUnauthorized, "INVALID_SESSION", "無効なセッションです")
	}
	return sess, nil
}

func pieceIndex(c echo.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return 0, session.ErrPieceIndex
	}
	return index, nil
}

// fail maps a session error to its response.
func (h *SessionHandler) fail(c echo.Context, sess *session.Session, err error) error {
	switch {
	case errors.Is(err, session.ErrStale):
		return response.Stale(c, sess.Version())
	case errors.Is(err, session.ErrPieceIndex):
		return response.ErrorWithCode(c, http.StatusBadRequest, "PIECE_INDEX", "ピースの番号が不正です")
	case errors.Is(err, session.ErrPaused):
		return response.ErrorWithCode(c, http.StatusConflict, "PAUSED", "一時停止中はピースを動かせません")
	case errors.Is(err, context.DeadlineExceeded):
		return response.Error(c, http.StatusGatewayTimeout, "計算がタイムアウトしました")
	default:
		h.logger.Errorf("session %s: %v", sess.ID, err)
		return response.Error(c, http.StatusInternalServerError, "処理に失敗しました")
	}
}
