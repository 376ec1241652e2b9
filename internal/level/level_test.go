package level

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/model"
	"github.com/kyiku/tangram-back/internal/testutil"
)

const levelsJSON = `{"levels":[
 {"levelId":2,"name":"Triangle","silhouette":[{"x":0,"y":0},{"x":100,"y":0},{"x":0,"y":100}],
  "pieces":[{"points":[{"x":0,"y":0},{"x":100,"y":0},{"x":0,"y":100}],"color":"red"}]},
 {"levelId":1,"name":"Square","silhouette":[{"x":0,"y":0},{"x":100,"y":0},{"x":100,"y":100},{"x":0,"y":100}],
  "pieces":[{"points":[{"x":0,"y":0},{"x":100,"y":0},{"x":0,"y":100}],"color":"blue"}],"hint":"hints/1.png"}
]}`

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantLen int
		wantErr error
	}{
		{name: "正常系: levelsオブジェクト", data: levelsJSON, wantLen: 2},
		{name: "正常系: 配列", data: `[{"levelId":1,"name":"A","silhouette":[],"pieces":[]}]`, wantLen: 1},
		{name: "異常系: 空のlevels", data: `{"levels":[]}`, wantErr: ErrNoLevels},
		{name: "異常系: 壊れたJSON", data: `{"levels":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := Parse([]byte(tt.data))

			if tt.wantLen == 0 {
				assert.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, levels, tt.wantLen)
		})
	}
}

func TestLoad_Sources(t *testing.T) {
	mockS3 := testutil.NewMockS3Client()
	mockS3.Objects["levels/levels.json"] = []byte(levelsJSON)

	dir := t.TempDir()
	path := filepath.Join(dir, "levels.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"levelId":9,"name":"File","silhouette":[],"pieces":[]}]`), 0o600))

	tests := []struct {
		name         string
		sources      []Source
		wantLen      int
		wantFirst    int
		wantFallback bool
	}{
		{
			name:      "正常系: S3から読み込み",
			sources:   []Source{S3Source{Client: mockS3, Key: "levels/levels.json"}},
			wantLen:   2,
			wantFirst: 1,
		},
		{
			name:      "正常系: S3失敗時はファイル",
			sources:   []Source{S3Source{Client: mockS3, Key: "missing.json"}, FileSource{Path: path}},
			wantLen:   1,
			wantFirst: 9,
		},
		{
			name:         "異常系: すべて失敗するとフォールバック",
			sources:      []Source{FileSource{Path: filepath.Join(dir, "none.json")}, nil},
			wantLen:      1,
			wantFirst:    FallbackID,
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Load(nil, tt.sources...)

			assert.Equal(t, tt.wantLen, c.Len())
			assert.Equal(t, tt.wantFallback, c.UsingFallback())
			first, ok := c.First()
			require.True(t, ok)
			assert.Equal(t, tt.wantFirst, first.LevelID)
		})
	}
}

func TestCatalog_GetReturnsCopy(t *testing.T) {
	levels, err := Parse([]byte(levelsJSON))
	require.NoError(t, err)
	c := NewCatalog(levels)

	lvl, ok := c.Get(1)
	require.True(t, ok)
	lvl.Silhouette.Translate(10, 10)
	lvl.Pieces[0].Points.Translate(10, 10)

	again, _ := c.Get(1)
	assert.Equal(t, 0.0, again.Silhouette[0].X)
	assert.Equal(t, 0.0, again.Pieces[0].Points[0].X)

	_, ok = c.Get(42)
	assert.False(t, ok)
}

func TestCatalog_ListAndAdjacent(t *testing.T) {
	levels, err := Parse([]byte(levelsJSON))
	require.NoError(t, err)
	levels = append(levels, model.Level{LevelID: 1, Name: "Duplicate"})
	c := NewCatalog(levels)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, Summary{LevelID: 1, Name: "Square", PieceCount: 1, HasHint: true}, list[0])
	assert.Equal(t, 2, list[1].LevelID)

	prev, next := c.Adjacent(1)
	assert.Equal(t, 0, prev)
	assert.Equal(t, 2, next)
	prev, next = c.Adjacent(2)
	assert.Equal(t, 1, prev)
	assert.Equal(t, 0, next)
	prev, next = c.Adjacent(99)
	assert.Zero(t, prev)
	assert.Zero(t, next)
}

func TestArrangeInRow(t *testing.T) {
	pieces := []*model.Piece{
		model.NewPiece(testutil.Square(500, 500, 100), "a"),
		model.NewPiece(testutil.Square(0, 0, 50), "b"),
		model.NewPiece(testutil.Square(0, 0, 100), "c"),
	}

	ArrangeInRow(pieces, 300, 600)

	// First row: pieces a and b, centred on y = 480.
	boxA := geometry.BoundingBox(pieces[0].Points)
	assert.InDelta(t, 10, boxA.Min.X, 1e-9)
	assert.InDelta(t, 480, boxA.Center().Y, 1e-9)

	boxB := geometry.BoundingBox(pieces[1].Points)
	assert.InDelta(t, 125, boxB.Min.X, 1e-9)
	assert.InDelta(t, 480, boxB.Center().Y, 1e-9)

	// c does not fit (190 + 100 > 280) and wraps to the row above.
	boxC := geometry.BoundingBox(pieces[2].Points)
	assert.InDelta(t, 10, boxC.Min.X, 1e-9)
	assert.InDelta(t, 480-100-80, boxC.Center().Y, 1e-9)
}

func TestNormalize(t *testing.T) {
	lvl := &model.Level{
		Silhouette: testutil.Square(100, 100, 200),
		Pieces: []model.PieceDef{
			{Points: testutil.Square(0, 0, 10)},
			{Points: testutil.Square(10, 0, 10)},
		},
	}

	Normalize(lvl)

	var all []geometry.Point
	for _, def := range lvl.Pieces {
		all = append(all, def.Points...)
	}
	box := geometry.BoundingBox(all)
	assert.InDelta(t, 100, box.Min.X, 1e-9)
	assert.InDelta(t, 300, box.Max.X, 1e-9)
	assert.InDelta(t, 150, box.Min.Y, 1e-9)
	assert.InDelta(t, 250, box.Max.Y, 1e-9)

	empty := &model.Level{}
	assert.NotPanics(t, func() { Normalize(empty) })
}

func TestFallback(t *testing.T) {
	lvl := Fallback()

	assert.Equal(t, FallbackID, lvl.LevelID)
	assert.Len(t, lvl.Pieces, 4)
	shapes := make([]geometry.Polygon, len(lvl.Pieces))
	for i, def := range lvl.Pieces {
		shapes[i] = def.Points
	}
	assert.True(t, geometry.Contained(shapes, lvl.Silhouette, geometry.DefaultTolerance))
}

func TestS3Source_Error(t *testing.T) {
	mockS3 := testutil.NewMockS3Client()
	mockS3.GetErr = errors.New("s3 down")

	_, err := S3Source{Client: mockS3, Key: "levels/levels.json"}.Load()
	assert.Error(t, err)
}

type staticSource struct {
	levels []model.Level
	err    error
}

func (s staticSource) Load() ([]model.Level, error) {
	return s.levels, s.err
}

func TestNormalizedSource(t *testing.T) {
	t.Run("正常系: ピースをシルエットの枠に合わせる", func(t *testing.T) {
		src := NormalizedSource{Source: staticSource{levels: []model.Level{{
			LevelID:    1,
			Silhouette: testutil.Square(0, 0, 100),
			Pieces:     []model.PieceDef{{Points: testutil.Square(300, 300, 10)}},
		}}}}

		levels, err := src.Load()
		require.NoError(t, err)

		box := geometry.BoundingBox(levels[0].Pieces[0].Points)
		assert.InDelta(t, 0, box.Min.X, 1e-9)
		assert.InDelta(t, 100, box.Max.X, 1e-9)
		assert.InDelta(t, 100, box.Max.Y, 1e-9)
	})

	t.Run("異常系: 読み込みエラーはそのまま返す", func(t *testing.T) {
		src := NormalizedSource{Source: staticSource{err: ErrNoLevels}}

		_, err := src.Load()
		assert.ErrorIs(t, err, ErrNoLevels)
	})
}
