package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/tangram-back/internal/geometry"
)

func square(x, y, size float64) geometry.Polygon {
	return geometry.Polygon{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
}

func countTrue(occ []bool) int {
	n := 0
	for _, v := range occ {
		if v {
			n++
		}
	}
	return n
}

func TestRasterize(t *testing.T) {
	t.Run("正常系: 整数座標の正方形", func(t *testing.T) {
		occ := Rasterize(square(10, 10, 20), 64, 64)
		require.Len(t, occ, 64*64)
		assert.Equal(t, 400, countTrue(occ))
		assert.True(t, occ[10*64+10])
		assert.True(t, occ[29*64+29])
		assert.False(t, occ[30*64+30])
		assert.False(t, occ[9*64+10])
	})

	t.Run("正常系: 画素の一部だけ覆う辺も占有", func(t *testing.T) {
		occ := Rasterize(square(10.5, 10.5, 5), 32, 32)
		// 5x5 area spread across 6x6 pixels.
		assert.Equal(t, 36, countTrue(occ))
	})

	t.Run("正常系: キャンバス外へはみ出す", func(t *testing.T) {
		occ := Rasterize(square(-10, -10, 20), 32, 32)
		assert.Equal(t, 100, countTrue(occ))
	})

	t.Run("異常系: 空のポリゴン", func(t *testing.T) {
		occ := Rasterize(nil, 16, 16)
		assert.Len(t, occ, 256)
		assert.Equal(t, 0, countTrue(occ))
	})

	t.Run("異常系: 大きさゼロのキャンバス", func(t *testing.T) {
		assert.Empty(t, Rasterize(square(0, 0, 10), 0, 10))
		assert.Empty(t, Rasterize(square(0, 0, 10), -5, -5))
	})
}

func TestBuildCensus(t *testing.T) {
	t.Run("正常系: 重なりの数を数える", func(t *testing.T) {
		pieces := []geometry.Polygon{square(0, 0, 20), square(10, 10, 20), square(10, 10, 20)}
		counts := BuildCensus(pieces, 40, 40)

		assert.Equal(t, uint8(1), counts[5*40+5])
		assert.Equal(t, uint8(3), counts[15*40+15])
		assert.Equal(t, uint8(2), counts[25*40+25])
		assert.Equal(t, uint8(0), counts[35*40+5])
	})

	t.Run("正常系: 描画順に依存しない", func(t *testing.T) {
		a := []geometry.Polygon{square(0, 0, 20), square(5, 5, 10)}
		b := []geometry.Polygon{square(5, 5, 10), square(0, 0, 20)}
		assert.Equal(t, BuildCensus(a, 30, 30), BuildCensus(b, 30, 30))
	})

	t.Run("正常系: ピースなし", func(t *testing.T) {
		counts := BuildCensus(nil, 10, 10)
		assert.Len(t, counts, 100)
		for _, c := range counts {
			assert.Zero(t, c)
		}
	})
}

func TestBuildSilhouetteMask(t *testing.T) {
	mask := BuildSilhouetteMask(square(0, 0, 100), 120, 120)
	assert.Equal(t, 10000, countTrue(mask))
}

func TestRasterizer_Reuse(t *testing.T) {
	r := NewRasterizer(50, 50)
	first := r.Occupancy(square(0, 0, 10))
	_ = r.Occupancy(square(20, 20, 20))
	again := r.Occupancy(square(0, 0, 10))

	assert.Equal(t, first, again)
	w, h := r.Size()
	assert.Equal(t, 50, w)
	assert.Equal(t, 50, h)
}
