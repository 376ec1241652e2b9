package worker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/tangram-back/internal/coverage"
	"github.com/kyiku/tangram-back/internal/geometry"
	"github.com/kyiku/tangram-back/internal/snap"
)

const canvas = 120

func square(x, y, size float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
}

func TestEngine_Handle(t *testing.T) {
	e := NewEngine()
	sil := square(0, 0, 100)

	tests := []struct {
		name     string
		req      Request
		wantType string
	}{
		{
			name:     "正常系: チェック",
			req:      NewCheckRequest(canvas, canvas, []geometry.Polygon{square(0, 0, 100)}, sil, true),
			wantType: TypeCheckResult,
		},
		{
			name:     "正常系: スナップ",
			req:      NewSnapRequest(canvas, canvas, []geometry.Polygon{square(3, 4, 100)}, sil, snap.Options{}),
			wantType: TypeSnapResult,
		},
		{
			name:     "正常系: ping",
			req:      Request{Type: TypePing},
			wantType: TypePong,
		},
		{
			name:     "異常系: 不明なタイプ",
			req:      Request{Type: "draw", Width: canvas, Height: canvas},
			wantType: TypeError,
		},
		{
			name:     "異常系: キャンバスサイズ0",
			req:      NewCheckRequest(0, canvas, nil, sil, true),
			wantType: TypeError,
		},
		{
			name:     "異常系: 大きすぎるキャンバス",
			req:      NewCheckRequest(MaxCanvasSide+1, canvas, nil, sil, true),
			wantType: TypeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ID = 7
			resp := e.Handle(tt.req)

			assert.Equal(t, tt.wantType, resp.Type)
			assert.Equal(t, uint64(7), resp.ID)
			if tt.wantType == TypeError {
				assert.NotEmpty(t, resp.Error)
				assert.True(t, resp.Failed())
			}
		})
	}
}

func TestEngine_CheckMatchesCompute(t *testing.T) {
	sil := square(0, 0, 100)
	pieces := []geometry.Polygon{{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}}}

	for _, strict := range []bool{true, false} {
		want := coverage.Compute(canvas, canvas, pieces, sil, strict)
		resp := NewEngine().Handle(NewCheckRequest(canvas, canvas, pieces, sil, strict))

		got := resp.Coverage()
		assert.Equal(t, want.Uncovered, got.Uncovered)
		assert.Equal(t, want.Overlap, got.Overlap)
		assert.Equal(t, want.Overlay, got.Overlay)
	}
}

func TestEngine_SnapDefaultsAndShape(t *testing.T) {
	sil := square(0, 0, 100)
	req := NewSnapRequest(canvas, canvas, []geometry.Polygon{square(3, 4, 100), square(200, 0, 5)}, sil, snap.Options{})
	req.Options = nil

	resp := NewEngine().Handle(req)

	require.Equal(t, TypeSnapResult, resp.Type)
	assert.True(t, resp.Improved)
	assert.Len(t, resp.Pieces, 2)
	assert.Positive(t, resp.Evaluations)
	assert.NotEmpty(t, resp.State)
}

func TestEngine_MalformedInput(t *testing.T) {
	e := NewEngine()
	req := Request{
		Type:       TypeSnap,
		Width:      canvas,
		Height:     canvas,
		Pieces:     []PieceShape{{Points: nil}, {Points: geometry.Polygon{{X: 1, Y: 1}}}},
		Silhouette: geometry.Polygon{{X: 5, Y: 5}},
	}

	assert.NotPanics(t, func() {
		resp := e.Handle(req)
		assert.NotEqual(t, "", resp.Type)
	})

	req.Type = TypeCheck
	assert.NotPanics(t, func() {
		resp := e.Handle(req)
		assert.Equal(t, TypeCheckResult, resp.Type)
	})
}

func TestEngine_MissingSilhouette(t *testing.T) {
	resp := NewEngine().Handle(NewCheckRequest(canvas, canvas, []geometry.Polygon{square(0, 0, 10)}, nil, true))

	assert.Equal(t, TypeCheckResult, resp.Type)
	assert.Zero(t, resp.Uncovered)
	assert.Zero(t, resp.Overlap)
	assert.Nil(t, resp.Overlay)
}

func TestResponse_JSONOverlayBase64(t *testing.T) {
	resp := Response{Type: TypeCheckResult, ID: 1, Width: 1, Height: 1, Overlay: []byte{255, 0, 0, 160}}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"overlay":"/wAAoA=="`)

	var back Response
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, resp.Overlay, back.Overlay)
}

func TestRequest_CopiesInput(t *testing.T) {
	pieces := []geometry.Polygon{square(0, 0, 10)}
	sil := square(0, 0, 100)

	req := NewCheckRequest(canvas, canvas, pieces, sil, false)
	req.Pieces[0].Points.Translate(5, 5)
	req.Silhouette.Translate(5, 5)

	assert.Equal(t, square(0, 0, 10), pieces[0])
	assert.Equal(t, square(0, 0, 100), sil)
}

func TestVersion(t *testing.T) {
	var v Version

	assert.Equal(t, uint64(0), v.Current())
	captured := v.Current()
	assert.True(t, v.IsCurrent(captured))

	assert.Equal(t, uint64(1), v.Bump())
	assert.False(t, v.IsCurrent(captured))
	assert.True(t, v.IsCurrent(1))
}

func TestEngine_SnapResultAlwaysListsPieces(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "正常系: 空のピース配列", body: `{"type":"snap","id":3,"width":120,"height":120,"pieces":[],"silhouette":[{"x":0,"y":0},{"x":100,"y":0},{"x":100,"y":100}]}`},
		{name: "正常系: ピース配列なし", body: `{"type":"snap","id":3,"width":120,"height":120,"silhouette":[{"x":0,"y":0},{"x":100,"y":0},{"x":100,"y":100}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))

			resp := NewEngine().Handle(req)
			require.Equal(t, TypeSnapResult, resp.Type)

			data, err := json.Marshal(resp)
			require.NoError(t, err)
			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Contains(t, decoded, "pieces")
			assert.Equal(t, []interface{}{}, decoded["pieces"])
			assert.Equal(t, false, decoded["improved"])
		})
	}
}
