package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/tangram-back/internal/ai"
	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/judge"
	"github.com/kyiku/tangram-back/internal/model"
	"github.com/kyiku/tangram-back/internal/record"
	"github.com/kyiku/tangram-back/internal/snap"
	"github.com/kyiku/tangram-back/internal/storage"
	"github.com/kyiku/tangram-back/internal/testutil"
	"github.com/kyiku/tangram-back/internal/worker"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig returns an 800x600 configuration computing synchronously
// unless client is given.
func testConfig(t *testing.T, client *worker.Client) Config {
	t.Helper()
	if client == nil {
		client = worker.NewClient(worker.NewEngine(), nil, nil)
	}
	return Config{
		Width:   800,
		Height:  600,
		Judge:   judge.New(800, 600, 0),
		Snap:    snap.DefaultOptions(),
		Client:  client,
		Records: record.NewStore(nil, storage.RecordKey, nil),
	}
}

func newTestSession(t *testing.T) (*Session, *fakeClock, *record.Store) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := testConfig(t, nil)
	cfg.Now = clock.Now
	return New("sid", "player", testutil.TestLevel(7), cfg), clock, cfg.Records.(*record.Store)
}

// placeSolved moves every piece back onto its position in the level
// definition, which tiles the silhouette.
func placeSolved(t *testing.T, s *Session) {
	t.Helper()
	lvl := testutil.TestLevel(7)
	for i, def := range lvl.Pieces {
		cur := s.State().Pieces[i].Points[0]
		moved, err := s.Move(i, def.Points[0].X-cur.X, def.Points[0].Y-cur.Y)
		require.NoError(t, err)
		require.True(t, moved, "piece %d", i)
	}
}

func TestNew_ArrangesPiecesInRow(t *testing.T) {
	s, _, _ := newTestSession(t)

	st := s.State()
	require.Len(t, st.Pieces, 2)
	for _, p := range st.Pieces {
		for _, pt := range p.Points {
			assert.GreaterOrEqual(t, pt.Y, 400.0, "ピースは下段に並べられるべき")
		}
	}
	assert.Equal(t, "00:00", st.Elapsed)
	assert.True(t, st.Running)
	assert.Equal(t, worker.StatusUnavailable, st.WorkerStatus)
	assert.Equal(t, 7, st.LevelID)
	assert.Equal(t, "Test Square", st.LevelName)
}

func TestSession_BeginDragCountsOneAttempt(t *testing.T) {
	s, _, records := newTestSession(t)
	before := s.Version()

	require.NoError(t, s.BeginDrag(0))
	require.NoError(t, s.BeginDrag(1))

	assert.Greater(t, s.Version(), before)
	assert.True(t, s.State().Pieces[1].Dragging)
	assert.Equal(t, 1, records.Book("player").Get(7).Attempts)
}

func TestSession_PieceIndex(t *testing.T) {
	s, _, _ := newTestSession(t)

	tests := []struct {
		name string
		call func() error
	}{
		{name: "異常系: ドラッグ開始", call: func() error { return s.BeginDrag(5) }},
		{name: "異常系: 移動", call: func() error { _, err := s.Move(-1, 1, 1); return err }},
		{name: "異常系: 回転", call: func() error { return s.Rotate(2, 90) }},
		{name: "異常系: リリース", call: func() error { _, err := s.Release(context.Background(), 9); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrPieceIndex)
		})
	}
}

func TestSession_Move(t *testing.T) {
	tests := []struct {
		name      string
		dx, dy    float64
		wantMoved bool
	}{
		{name: "正常系: 空いている場所へ移動", dx: 0, dy: -200, wantMoved: true},
		{name: "異常系: 隣のピースに重なる移動は拒否", dx: 190, dy: 80, wantMoved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestSession(t)
			before := s.State().Pieces[0].Points.Clone()
			version := s.Version()

			moved, err := s.Move(0, tt.dx, tt.dy)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMoved, moved)
			assert.Greater(t, s.Version(), version)
			after := s.State().Pieces[0].Points
			if tt.wantMoved {
				assert.InDelta(t, before[0].Y+tt.dy, after[0].Y, 1e-9)
			} else {
				assert.Equal(t, before, after)
			}
		})
	}
}

func TestSession_MoveRefreshesMarkers(t *testing.T) {
	s, _, _ := newTestSession(t)

	_, err := s.Move(0, 1, 0)
	require.NoError(t, err)
	st := s.State()
	assert.NotEmpty(t, st.Markers)
	assert.Contains(t, st.Message, "シルエットの外")

	placeSolved(t, s)
	st = s.State()
	assert.Empty(t, st.Markers)
	assert.Empty(t, st.Message)
}

func TestSession_RotateDefaultsToContextStep(t *testing.T) {
	s, _, _ := newTestSession(t)
	version := s.Version()
	before := s.State().Pieces[0].Points.Clone()

	require.NoError(t, s.Rotate(0, 0))

	after := s.State().Pieces[0].Points
	assert.Greater(t, s.Version(), version)
	assert.NotEqual(t, before, after)

	// 45度をさらに7回で一周する
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Rotate(0, 0))
	}
	final := s.State().Pieces[0].Points
	for i := range before {
		assert.InDelta(t, before[i].X, final[i].X, 1e-6)
		assert.InDelta(t, before[i].Y, final[i].Y, 1e-6)
	}
}

func TestSession_Release(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.BeginDrag(0))

	v, err := s.Release(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, judge.StatusInProgress, v.Status)
	assert.Greater(t, v.Uncovered, 0)
	assert.NotEmpty(t, v.Markers)
	st := s.State()
	assert.False(t, st.Pieces[0].Dragging)
	require.NotNil(t, st.Verdict)
	overlay, ok := s.Overlay()
	require.True(t, ok)
	assert.Len(t, overlay.Overlay, 800*600*4)
}

func TestSession_Win(t *testing.T) {
	t.Run("異常系: はみ出しているときは未クリア", func(t *testing.T) {
		s, _, records := newTestSession(t)

		res, err := s.Win(context.Background())
		require.NoError(t, err)

		assert.Equal(t, judge.StatusOutside, res.Verdict.Status)
		assert.False(t, res.Verdict.Solved)
		assert.Zero(t, res.Seconds)
		assert.True(t, s.State().Running)
		assert.False(t, records.Book("player").Get(7).Completed)
	})

	t.Run("正常系: 完成で時間を記録", func(t *testing.T) {
		s, clock, records := newTestSession(t)
		placeSolved(t, s)
		clock.Advance(75 * time.Second)

		res, err := s.Win(context.Background())
		require.NoError(t, err)

		assert.True(t, res.Verdict.Solved)
		assert.Equal(t, 75, res.Seconds)
		assert.Equal(t, "01:15", res.Time)
		assert.True(t, res.NewBest)
		rec := records.Book("player").Get(7)
		assert.True(t, rec.Completed)
		assert.True(t, rec.HasBest)
		assert.Equal(t, 75, rec.BestTime)
		assert.Equal(t, 1, rec.Attempts)

		st := s.State()
		assert.True(t, st.Solved)
		assert.False(t, st.Running)

		// 二度目の判定では記録を更新しない
		clock.Advance(time.Minute)
		again, err := s.Win(context.Background())
		require.NoError(t, err)
		assert.True(t, again.Verdict.Solved)
		assert.Equal(t, 75, again.Seconds)
		assert.False(t, again.NewBest)
	})
}

func TestSession_ReleaseCoveringButOutside(t *testing.T) {
	lvl := &model.Level{
		LevelID:    9,
		Name:       "Big Square",
		Silhouette: testutil.Square(100, 100, 100),
		Pieces:     []model.PieceDef{{Points: testutil.Square(50, 50, 200), Color: "#e74c3c"}},
	}
	s := New("sid", "player", lvl, testConfig(t, nil))
	cur := s.State().Pieces[0].Points[0]
	moved, err := s.Move(0, 50-cur.X, 50-cur.Y)
	require.NoError(t, err)
	require.True(t, moved)

	v, err := s.Release(context.Background(), 0)
	require.NoError(t, err)

	assert.Zero(t, v.Uncovered)
	assert.Zero(t, v.Overlap)
	assert.False(t, v.Solved)
	assert.Equal(t, judge.StatusInProgress, v.Status)
	assert.Len(t, v.Markers, 8)

	res, err := s.Win(context.Background())
	require.NoError(t, err)
	assert.Equal(t, judge.StatusOutside, res.Verdict.Status)
	assert.False(t, res.Verdict.Solved)
}

func TestSession_SlowRecordsDoNotBlock(t *testing.T) {
	const delay = 400 * time.Millisecond
	mockS3 := testutil.NewMockS3Client()
	mockS3.PutDelay = delay
	records := record.NewStore(mockS3, storage.RecordKey, nil)
	cfg := testConfig(t, nil)
	cfg.Records = records

	players := []string{"p1", "p2", "p3", "p4"}
	sessions := make([]*Session, len(players))
	for i, p := range players {
		sessions[i] = New("sid-"+p, p, testutil.TestLevel(7), cfg)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			assert.NoError(t, sess.BeginDrag(0))
		}(sess)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), delay/2, "最初のドラッグは書き込みを待たないべき")

	start = time.Now()
	sessions[0].State()
	records.Book("other")
	assert.Less(t, time.Since(start), delay/2)

	require.NoError(t, records.Flush())
	for _, p := range players {
		assert.Equal(t, 1, records.Book(p).Get(7).Attempts)
	}
}

func TestSession_PausedRefusesEdits(t *testing.T) {
	s, _, records := newTestSession(t)
	require.True(t, s.Pause())
	version := s.Version()
	before := s.State().Pieces

	assert.ErrorIs(t, s.BeginDrag(0), ErrPaused)
	_, err := s.Move(0, 0, -100)
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, s.Rotate(0, 90), ErrPaused)

	assert.Equal(t, version, s.Version())
	assert.Equal(t, before, s.State().Pieces)
	assert.Equal(t, 0, records.Book("player").Get(7).Attempts)

	require.False(t, s.Pause())
	assert.NoError(t, s.BeginDrag(0))
}

func TestSession_PauseAndReset(t *testing.T) {
	s, clock, _ := newTestSession(t)
	start := s.State().Pieces

	clock.Advance(10 * time.Second)
	assert.True(t, s.Pause())
	clock.Advance(time.Hour)
	assert.Equal(t, 10, s.State().Seconds)
	assert.False(t, s.Pause())

	placeSolved(t, s)
	_, err := s.Win(context.Background())
	require.NoError(t, err)
	version := s.Version()

	s.Reset()

	st := s.State()
	assert.Greater(t, s.Version(), version)
	assert.Equal(t, start[0].Points, st.Pieces[0].Points)
	assert.Equal(t, start[1].Points, st.Pieces[1].Points)
	assert.False(t, st.Solved)
	assert.Nil(t, st.Verdict)
	assert.True(t, st.Running)
	assert.Equal(t, "00:00", st.Elapsed)
	_, ok := s.Overlay()
	assert.False(t, ok)
}

func TestSession_Check(t *testing.T) {
	s, _, _ := newTestSession(t)
	placeSolved(t, s)

	res, err := s.Check(context.Background(), true)
	require.NoError(t, err)

	assert.Less(t, res.Uncovered, judge.DefaultTolerance)
	assert.Less(t, res.Overlap, judge.DefaultTolerance)
	overlay, ok := s.Overlay()
	require.True(t, ok)
	assert.Equal(t, res.Uncovered, overlay.Uncovered)
}

func TestSession_Snap(t *testing.T) {
	s, _, _ := newTestSession(t)
	placeSolved(t, s)
	_, err := s.Move(1, 3, 3)
	require.NoError(t, err)
	version := s.Version()

	res, err := s.Snap(context.Background(), snap.Options{})
	require.NoError(t, err)

	require.Len(t, res.Pieces, 2)
	assert.LessOrEqual(t, res.Evaluations, snap.DefaultOperationLimit)
	st := s.State()
	if res.Improved {
		assert.Greater(t, s.Version(), version)
		assert.Equal(t, res.Pieces[1], st.Pieces[1].Points)
	} else {
		assert.Equal(t, version, s.Version())
	}
}

func TestSession_StaleResultsAreDiscarded(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Session) error
	}{
		{
			name: "異常系: 判定中にピースが動いた",
			run: func(s *Session) error {
				_, err := s.Check(context.Background(), false)
				return err
			},
		},
		{
			name: "異常系: スナップ中にピースが回転した",
			run: func(s *Session) error {
				_, err := s.Snap(context.Background(), snap.Options{OperationLimit: 50})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp := testutil.NewMockDispatcher()
			client := worker.NewClient(worker.NewEngine(), disp, nil)
			defer client.Close()
			s := New("sid", "player", testutil.TestLevel(7), testConfig(t, client))
			before := s.State().Pieces

			done := make(chan error, 1)
			go func() { done <- tt.run(s) }()

			require.NoError(t, testutil.WaitFor(time.Second, 5*time.Millisecond, func() bool {
				return len(disp.Sent()) == 1
			}))
			require.NoError(t, s.Rotate(0, 90))
			moved := s.State().Pieces

			disp.Reply(worker.NewEngine().Handle(disp.Sent()[0]))

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrStale)
			case <-time.After(2 * time.Second):
				t.Fatal("result was not delivered")
			}
			_, ok := s.Overlay()
			assert.False(t, ok)
			assert.Equal(t, moved, s.State().Pieces)
			assert.NotEqual(t, before[0].Points, moved[0].Points)
		})
	}
}

func TestSession_CheckAsync(t *testing.T) {
	t.Run("正常系: 同期計算では戻る前に結果が届く", func(t *testing.T) {
		s, _, _ := newTestSession(t)
		placeSolved(t, s)

		var got coverage.Result
		var gotErr error
		called := 0
		s.CheckAsync(true, func(res coverage.Result, err error) {
			called++
			got, gotErr = res, err
		})

		require.Equal(t, 1, called)
		require.NoError(t, gotErr)
		overlay, ok := s.Overlay()
		require.True(t, ok)
		assert.Equal(t, got.Uncovered, overlay.Uncovered)
	})

	t.Run("異常系: 遅れて届いた結果は捨てられる", func(t *testing.T) {
		disp := testutil.NewMockDispatcher()
		client := worker.NewClient(worker.NewEngine(), disp, nil)
		defer client.Close()
		s := New("sid", "player", testutil.TestLevel(7), testConfig(t, client))

		done := make(chan error, 1)
		s.CheckAsync(false, func(_ coverage.Result, err error) { done <- err })
		require.Len(t, disp.Sent(), 1)

		require.NoError(t, s.BeginDrag(0))
		disp.Reply(worker.NewEngine().Handle(disp.Sent()[0]))

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrStale)
		case <-time.After(2 * time.Second):
			t.Fatal("result was not delivered")
		}
		_, ok := s.Overlay()
		assert.False(t, ok)
	})
}

func TestSession_Hint(t *testing.T) {
	t.Run("正常系: ヒント生成器なしではレベルのヒント", func(t *testing.T) {
		s, _, _ := newTestSession(t)

		hint, err := s.Hint(nil)
		require.NoError(t, err)

		assert.Equal(t, "対角線で分けてみよう", hint)
		assert.True(t, s.State().Paused)
	})

	t.Run("正常系: Bedrockでヒント生成", func(t *testing.T) {
		s, _, _ := newTestSession(t)
		mock := testutil.NewMockBedrockClient()
		mock.Response = `{"content":[{"text":"小さい三角形から置いてみましょう"}]}`

		hint, err := s.Hint(ai.NewBedrockClient(mock, ""))
		require.NoError(t, err)

		assert.Equal(t, "小さい三角形から置いてみましょう", hint)
		assert.Contains(t, mock.LastPrompt, "Test Square")
		assert.True(t, s.State().Paused)

		// 一時停止中に呼んでも再開しない
		_, err = s.Hint(ai.NewBedrockClient(mock, ""))
		require.NoError(t, err)
		assert.True(t, s.State().Paused)
	})
}
