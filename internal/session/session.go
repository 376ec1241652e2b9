// Package session holds the per-player puzzle state and serialises every
// interaction with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/ai"
	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/judge"
	"github.com/kyiku/tangram-back/internal/level"
	"github.com/kyiku/tangram-back/internal/model"
	"github.com/kyiku/tangram-back/internal/snap"
	"github.com/kyiku/tangram-back/internal/stopwatch"
	"github.com/kyiku/tangram-back/internal/worker"
)

var (
	// ErrStale is returned when the pieces changed while a check or snap
	// was in flight. The result was discarded.
	ErrStale = errors.New("result is stale")
	// ErrPieceIndex is returned for an index outside the piece list.
	ErrPieceIndex = errors.New("piece index out of range")
	// ErrPaused is returned for piece edits while the stopwatch is paused.
	ErrPaused = errors.New("session is paused")
)

// Hinter generates hint text for an arrangement.
type Hinter interface {
	GenerateHint(req ai.HintRequest) (string, error)
}

// Recorder persists attempts and wins.
type Recorder interface {
	AddAttempt(playerID string, levelID int) (int, error)
	AddWin(playerID string, levelID, seconds int) (bool, error)
}

// Config carries the collaborators shared by all sessions.
type Config struct {
	Width   int
	Height  int
	Judge   *judge.Judge
	Snap    snap.Options
	Client  *worker.Client
	Records Recorder
	Now     func() time.Time // nil uses the wall clock
	Logger  *log.Logger
}

// State is a snapshot of a session.
type State struct {
	SessionID    string            `json:"session_id"`
	LevelID      int               `json:"level_id"`
	LevelName    string            `json:"level_name"`
	Silhouette   geometry.Polygon  `json:"silhouette"`
	Pieces       []*model.Piece    `json:"pieces"`
	Version      uint64            `json:"version"`
	Elapsed      string            `json:"elapsed"`
	Seconds      int               `json:"seconds"`
	Paused       bool              `json:"paused"`
	Running      bool              `json:"running"`
	Solved       bool              `json:"solved"`
	Verdict      *judge.Verdict    `json:"verdict,omitempty"`
	Markers      []geometry.Marker `json:"markers,omitempty"`
	Message      string            `json:"message,omitempty"`
	WorkerStatus string            `json:"worker_status"`
	Overlay      *coverage.Result  `json:"overlay,omitempty"`
}

// WinResult is the outcome of a win check.
type WinResult struct {
	Verdict judge.Verdict `json:"verdict"`
	Seconds int           `json:"seconds,omitempty"`
	Time    string        `json:"time,omitempty"`
	NewBest bool          `json:"new_best,omitempty"`
}

// Session is one player's view of one level.
type Session struct {
	ID       string
	PlayerID string

	cfg     Config
	version worker.Version
	watch   *stopwatch.Stopwatch

	mu        sync.Mutex
	level     *model.Level
	pieces    []*model.Piece
	overlay   *coverage.Result
	verdict   *judge.Verdict
	markers   []geometry.Marker
	message   string
	attempted bool
	won       bool
}

// New creates a session for lvl. The level is copied, its pieces are laid
// out in a row and the stopwatch starts.
func New(id, playerID string, lvl *model.Level, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = log.New("session")
	}
	watch := stopwatch.New()
	if cfg.Now != nil {
		watch = stopwatch.NewWithClock(cfg.Now)
	}
	s := &Session{
		ID:       id,
		PlayerID: playerID,
		cfg:      cfg,
		watch:    watch,
		level:    lvl.Clone(),
	}
	s.reset()
	return s
}

// reset must be called with mu held or before the session is shared.
func (s *Session) reset() {
	s.pieces = s.level.NewPieces()
	level.ArrangeInRow(s.pieces, s.cfg.Width, s.cfg.Height)
	s.version.Bump()
	s.overlay = nil
	s.verdict = nil
	s.markers = nil
	s.message = ""
	s.attempted = false
	s.won = false
	s.watch.Start()
}

// LevelID returns the id of the level being played.
func (s *Session) LevelID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level.LevelID
}

// Version returns the current state version.
func (s *Session) Version() uint64 {
	return s.version.Current()
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	pieces := make([]*model.Piece, len(s.pieces))
	for i, p := range s.pieces {
		cp := *p
		cp.Points = p.Points.Clone()
		pieces[i] = &cp
	}
	seconds := s.watch.Seconds()
	st := State{
		SessionID:    s.ID,
		LevelID:      s.level.LevelID,
		LevelName:    s.level.Name,
		Silhouette:   s.level.Silhouette.Clone(),
		Pieces:       pieces,
		Version:      s.version.Current(),
		Elapsed:      stopwatch.FormatTime(seconds),
		Seconds:      seconds,
		Paused:       s.watch.Paused(),
		Running:      s.watch.Running(),
		Solved:       s.won,
		Markers:      append([]geometry.Marker(nil), s.markers...),
		Message:      s.message,
		WorkerStatus: s.workerStatus(),
		Overlay:      s.overlay,
	}
	if s.verdict != nil {
		v := *s.verdict
		st.Verdict = &v
	}
	return st
}

func (s *Session) workerStatus() string {
	if s.cfg.Client == nil {
		return worker.StatusUnavailable
	}
	return s.cfg.Client.Status()
}

func (s *Session) piece(index int) (*model.Piece, error) {
	if index < 0 || index >= len(s.pieces) {
		return nil, fmt.Errorf("%w: %d", ErrPieceIndex, index)
	}
	return s.pieces[index], nil
}

// editable returns the piece at index when edits are allowed. mu must be held.
func (s *Session) editable(index int) (*model.Piece, error) {
	p, err := s.piece(index)
	if err != nil {
		return nil, err
	}
	if s.watch.Paused() {
		return nil, ErrPaused
	}
	return p, nil
}

// touch marks the level as attempted and reports whether this was the
// first interaction. mu must be held; the caller records after unlocking.
func (s *Session) touch() bool {
	if s.attempted {
		return false
	}
	s.attempted = true
	return true
}

// recordAttempt must be called without mu held: the record store may
// reach its backend.
func (s *Session) recordAttempt(levelID int) {
	if s.cfg.Records == nil {
		return
	}
	if _, err := s.cfg.Records.AddAttempt(s.PlayerID, levelID); err != nil {
		s.cfg.Logger.Warnf("failed to record attempt for level %d: %v", levelID, err)
	}
}

// BeginDrag marks a piece as grabbed.
func (s *Session) BeginDrag(index int) error {
	s.mu.Lock()
	p, err := s.editable(index)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.version.Bump()
	p.Dragging = true
	first, levelID := s.touch(), s.level.LevelID
	s.mu.Unlock()

	if first {
		s.recordAttempt(levelID)
	}
	return nil
}

// Move drags a piece by (dx, dy). It reports false when the move was
// refused because the piece would overlap another one. Outside markers are
// refreshed either way.
func (s *Session) Move(index int, dx, dy float64) (bool, error) {
	s.mu.Lock()
	p, err := s.editable(index)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.version.Bump()
	first, levelID := s.touch(), s.level.LevelID
	moved := p.Move(dx, dy, s.pieces)

	s.markers = s.cfg.Judge.Markers(model.Shapes(s.pieces), s.level.Silhouette)
	s.message = judge.MarkerMessage(s.markers)
	s.mu.Unlock()

	if first {
		s.recordAttempt(levelID)
	}
	return moved, nil
}

// Rotate turns a piece about its centre. A zero angle applies the default
// context-menu step.
func (s *Session) Rotate(index int, deg float64) error {
	s.mu.Lock()
	p, err := s.editable(index)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if deg == 0 {
		deg = model.RotateStepContext
	}
	s.version.Bump()
	first, levelID := s.touch(), s.level.LevelID
	p.Rotate(deg)
	s.mu.Unlock()

	if first {
		s.recordAttempt(levelID)
	}
	return nil
}

// snapshot captures the version and copies of the geometry for a dispatch.
func (s *Session) snapshot() (uint64, []geometry.Polygon, geometry.Polygon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version.Current(), model.Shapes(s.pieces), s.level.Silhouette.Clone()
}

// Release drops a dragged piece and refreshes the live feedback: a lenient
// check for the overlay, then a strict one to detect an exact solution.
func (s *Session) Release(ctx context.Context, index int) (judge.Verdict, error) {
	s.mu.Lock()
	p, err := s.piece(index)
	if err != nil {
		s.mu.Unlock()
		return judge.Verdict{}, err
	}
	p.Dragging = false
	s.mu.Unlock()

	v, shapes, sil := s.snapshot()
	lenient, err := s.cfg.Client.Check(ctx, s.cfg.Width, s.cfg.Height, shapes, sil, false)
	if err != nil {
		return judge.Verdict{}, err
	}
	if !s.version.IsCurrent(v) {
		return judge.Verdict{}, ErrStale
	}
	strict, err := s.cfg.Client.Check(ctx, s.cfg.Width, s.cfg.Height, shapes, sil, true)
	if err != nil {
		return judge.Verdict{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.version.IsCurrent(v) {
		return judge.Verdict{}, ErrStale
	}
	markers := s.cfg.Judge.Markers(shapes, sil)
	verdict := s.cfg.Judge.Feedback(lenient, strict, markers)
	s.overlay = &lenient
	s.markers = verdict.Markers
	s.verdict = &verdict
	s.message = verdict.Message
	return verdict, nil
}

// Check runs a coverage check on the current arrangement and keeps its
// overlay.
func (s *Session) Check(ctx context.Context, strict bool) (coverage.Result, error) {
	v, shapes, sil := s.snapshot()
	res, err := s.cfg.Client.Check(ctx, s.cfg.Width, s.cfg.Height, shapes, sil, strict)
	if err != nil {
		return coverage.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.version.IsCurrent(v) {
		return coverage.Result{}, ErrStale
	}
	s.overlay = &res
	return res, nil
}

// CheckAsync is Check without waiting. done, when non-nil, is called once
// with the outcome, possibly before CheckAsync returns.
func (s *Session) CheckAsync(strict bool, done func(coverage.Result, error)) {
	v, shapes, sil := s.snapshot()
	req := worker.NewCheckRequest(s.cfg.Width, s.cfg.Height, shapes, sil, strict)
	s.cfg.Client.Go(req, func(resp worker.Response) {
		res, err := s.applyCheck(v, resp)
		if err != nil && !errors.Is(err, ErrStale) {
			s.cfg.Logger.Warnf("async check for session %s failed: %v", s.ID, err)
		}
		if done != nil {
			done(res, err)
		}
	})
}

func (s *Session) applyCheck(v uint64, resp worker.Response) (coverage.Result, error) {
	if resp.Failed() {
		return coverage.Result{}, fmt.Errorf("failed to check coverage: %s", resp.Error)
	}
	res := resp.Coverage()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.version.IsCurrent(v) {
		return coverage.Result{}, ErrStale
	}
	s.overlay = &res
	return res, nil
}

// Snap runs the optimizer on copies of the pieces and applies the result
// when it improved the arrangement and nothing moved meanwhile. Zero
// options take the session defaults.
func (s *Session) Snap(ctx context.Context, opts snap.Options) (snap.Result, error) {
	if opts == (snap.Options{}) {
		opts = s.cfg.Snap
	}
	v, shapes, sil := s.snapshot()
	res, err := s.cfg.Client.Snap(ctx, s.cfg.Width, s.cfg.Height, shapes, sil, opts)
	if err != nil {
		return snap.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.version.IsCurrent(v) {
		return snap.Result{}, ErrStale
	}
	if res.Improved && len(res.Pieces) == len(s.pieces) {
		for i, poly := range res.Pieces {
			s.pieces[i].Points = poly.Clone()
		}
		s.version.Bump()
		s.overlay = nil
		s.markers = nil
	}
	return res, nil
}

// Win runs the full win check. On success the stopwatch stops and the
// time is recorded once.
func (s *Session) Win(ctx context.Context) (WinResult, error) {
	v, shapes, sil := s.snapshot()

	var verdict judge.Verdict
	switch markers := s.cfg.Judge.Markers(shapes, sil); {
	case len(sil) == 0:
		verdict = s.cfg.Judge.Evaluate(shapes, sil)
	case len(markers) > 0:
		verdict = judge.Outside(markers, s.cfg.Judge.Tolerance)
	default:
		res, err := s.cfg.Client.Check(ctx, s.cfg.Width, s.cfg.Height, shapes, sil, true)
		if err != nil {
			return WinResult{}, err
		}
		verdict = s.cfg.Judge.Grade(res)
	}

	s.mu.Lock()
	if !s.version.IsCurrent(v) {
		s.mu.Unlock()
		return WinResult{}, ErrStale
	}
	s.verdict = &verdict
	s.markers = verdict.Markers
	s.message = verdict.Message

	out := WinResult{Verdict: verdict}
	if !verdict.Solved {
		s.mu.Unlock()
		return out, nil
	}

	out.Seconds = s.watch.Stop()
	out.Time = stopwatch.FormatTime(out.Seconds)
	first := !s.won
	s.won = true
	levelID := s.level.LevelID
	s.mu.Unlock()

	if first && s.cfg.Records != nil {
		newBest, err := s.cfg.Records.AddWin(s.PlayerID, levelID, out.Seconds)
		if err != nil {
			s.cfg.Logger.Warnf("failed to record win for level %d: %v", levelID, err)
		}
		out.NewBest = newBest
	}
	return out, nil
}

// Pause toggles the stopwatch and returns whether it is now paused.
func (s *Session) Pause() bool {
	return s.watch.TogglePause()
}

// Reset restores the level's pieces to their starting row and restarts
// the stopwatch.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Hint pauses the stopwatch and asks h for a hint about the current
// arrangement.
func (s *Session) Hint(h Hinter) (string, error) {
	if !s.watch.Paused() {
		s.watch.TogglePause()
	}

	s.mu.Lock()
	req := ai.HintRequest{
		LevelName:  s.level.Name,
		PieceCount: len(s.pieces),
	}
	if s.verdict != nil {
		req.Verdict = *s.verdict
	} else {
		req.Verdict = judge.Verdict{Status: judge.StatusInProgress, Markers: s.markers}
	}
	levelHint := s.level.Hint
	s.mu.Unlock()

	if h == nil {
		if levelHint != "" {
			return levelHint, nil
		}
		return ai.FallbackHint(req.Verdict), nil
	}
	return h.GenerateHint(req)
}

// Overlay returns the most recent coverage result, if any.
func (s *Session) Overlay() (coverage.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return coverage.Result{}, false
	}
	return *s.overlay, true
}
