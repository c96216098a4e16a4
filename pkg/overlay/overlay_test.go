package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectWithoutLetterbox(t *testing.T) {
	// Natural size is already canonical and the screen is half size.
	rect, ok := Project([4]float64{100, 200, 300, 600}, Size{1024, 512}, Size{512, 256})
	require.True(t, ok)
	assert.Equal(t, Rect{Left: 100, Top: 50, Width: 200, Height: 100}, rect)
}

func TestProjectProportionalScaling(t *testing.T) {
	box := [4]float64{64, 128, 512, 768}
	natural := Size{800, 600}
	for _, k := range []float64{0.25, 0.5, 1, 1.5, 2, 3} {
		onScreen := Size{natural.Width * k, natural.Height * k}
		p, ok := NewProjection(natural, onScreen)
		require.True(t, ok)
		assert.Zero(t, p.OffsetX)
		assert.Zero(t, p.OffsetY)

		rect := p.Rect(box)
		effective := p.ScaleFactor * p.DisplayScale
		assert.InDelta(t, k*800/1024, effective, 1e-12)
		assert.InDelta(t, box[1]*effective, rect.Left, 1e-9)
		assert.InDelta(t, box[0]*effective, rect.Top, 1e-9)
		assert.InDelta(t, (box[3]-box[1])*effective, rect.Width, 1e-9)
		assert.InDelta(t, (box[2]-box[0])*effective, rect.Height, 1e-9)
	}
}

func TestProjectLetterbox(t *testing.T) {
	// A square image in a wide box gets horizontal bars.
	p, ok := NewProjection(Size{500, 500}, Size{400, 200})
	require.True(t, ok)
	assert.InDelta(t, 1024.0/500, p.ScaleFactor, 1e-12)
	assert.InDelta(t, 200.0/1024, p.DisplayScale, 1e-12)
	assert.InDelta(t, 100, p.OffsetX, 1e-9)
	assert.InDelta(t, 0, p.OffsetY, 1e-9)

	rect := p.Rect([4]float64{0, 0, 1024, 1024})
	assert.InDelta(t, 100, rect.Left, 1e-9)
	assert.InDelta(t, 0, rect.Top, 1e-9)
	assert.InDelta(t, 200, rect.Width, 1e-9)
	assert.InDelta(t, 200, rect.Height, 1e-9)

	// A tall image in a wide box.
	p, ok = NewProjection(Size{300, 600}, Size{600, 300})
	require.True(t, ok)
	assert.InDelta(t, 225, p.OffsetX, 1e-9)
	assert.InDelta(t, 0, p.OffsetY, 1e-9)
}

func TestProjectRejectsEmptySizes(t *testing.T) {
	_, ok := Project([4]float64{0, 0, 1, 1}, Size{0, 100}, Size{100, 100})
	assert.False(t, ok)
	_, ok = Project([4]float64{0, 0, 1, 1}, Size{100, 100}, Size{100, -1})
	assert.False(t, ok)
}

func TestRenderable(t *testing.T) {
	p, _ := NewProjection(Size{1024, 1024}, Size{1024, 1024})
	assert.True(t, p.Rect([4]float64{10, 10, 20, 20}).Renderable())
	assert.False(t, p.Rect([4]float64{10, 10, 10, 20}).Renderable(), "zero height")
	assert.False(t, p.Rect([4]float64{30, 10, 20, 20}).Renderable(), "inverted")
}

func TestContainsAndHitTest(t *testing.T) {
	r := Rect{Left: 10, Top: 10, Width: 20, Height: 20}
	assert.True(t, r.Contains(15, 15))
	assert.True(t, r.Contains(10, 30), "edges are inside")
	assert.False(t, r.Contains(9.9, 15))

	boxes := []Box{
		{ID: 1, Rect: r},
		{ID: 2, Rect: Rect{Left: 20, Top: 20, Width: 20, Height: 20}},
		{ID: 3, Rect: Rect{Left: 0, Top: 0, Width: 0, Height: 50}},
	}
	assert.Equal(t, []int{1, 2}, HitTest(boxes, 25, 25))
	assert.Empty(t, HitTest(boxes, 100, 100))
	assert.Empty(t, HitTest(boxes, 0, 10), "degenerate boxes are never hit")
}

func TestTrackerOverlap(t *testing.T) {
	tr := NewTracker([]Box{
		{ID: 1, Rect: Rect{Left: 0, Top: 0, Width: 100, Height: 100}},
		{ID: 2, Rect: Rect{Left: 50, Top: 50, Width: 100, Height: 100}},
		{ID: 3, Rect: Rect{Left: 0, Top: 0, Width: -5, Height: 10}},
	})

	entered, left := tr.Move(10, 10)
	assert.Equal(t, []int{1}, entered)
	assert.Empty(t, left)
	active, ok := tr.Active()
	require.True(t, ok)
	assert.Equal(t, 1, active)

	entered, left = tr.Move(75, 75)
	assert.Equal(t, []int{2}, entered)
	assert.Empty(t, left)
	active, _ = tr.Active()
	assert.Equal(t, 2, active, "most recently entered wins")
	assert.Equal(t, []int{1, 2}, tr.Hovered())

	entered, left = tr.Move(120, 120)
	assert.Empty(t, entered)
	assert.Equal(t, []int{1}, left)
	active, _ = tr.Active()
	assert.Equal(t, 2, active)

	entered, left = tr.Move(75, 75)
	assert.Equal(t, []int{1}, entered)
	assert.Empty(t, left)
	active, _ = tr.Active()
	assert.Equal(t, 1, active, "re-entering makes box 1 the newest")

	entered, left = tr.Move(500, 500)
	assert.Empty(t, entered)
	assert.ElementsMatch(t, []int{1, 2}, left)
	_, ok = tr.Active()
	assert.False(t, ok)
	assert.Empty(t, tr.Hovered())
}

func TestTrackerLeave(t *testing.T) {
	tr := NewTracker([]Box{{ID: 7, Rect: Rect{Width: 10, Height: 10}}})
	tr.Move(5, 5)
	assert.Equal(t, []int{7}, tr.Leave())
	_, ok := tr.Active()
	assert.False(t, ok)
	assert.Empty(t, tr.Leave())
}
