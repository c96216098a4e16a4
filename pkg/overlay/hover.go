package overlay

// Box is a projected rectangle tagged with its object id.
type Box struct {
	ID   int
	Rect Rect
}

// Tracker keeps the set of boxes under the pointer. When boxes overlap, the
// most recently entered one that is still hovered is the active box.
type Tracker struct {
	boxes   []Box
	hovered map[int]bool
	order   []int // entry order of hovered ids, oldest first
}

// NewTracker tracks the renderable boxes among boxes.
func NewTracker(boxes []Box) *Tracker {
	t := &Tracker{hovered: make(map[int]bool)}
	for _, b := range boxes {
		if b.Rect.Renderable() {
			t.boxes = append(t.boxes, b)
		}
	}
	return t
}

// Move updates the hover set for a pointer at (x, y) and returns the ids
// that were entered and left by this move.
func (t *Tracker) Move(x, y float64) (entered, left []int) {
	inside := make(map[int]bool, len(t.boxes))
	for _, b := range t.boxes {
		if b.Rect.Contains(x, y) {
			inside[b.ID] = true
		}
	}

	for _, id := range t.order {
		if !inside[id] {
			left = append(left, id)
			delete(t.hovered, id)
		}
	}
	if len(left) > 0 {
		kept := t.order[:0]
		for _, id := range t.order {
			if t.hovered[id] {
				kept = append(kept, id)
			}
		}
		t.order = kept
	}

	for _, b := range t.boxes {
		if inside[b.ID] && !t.hovered[b.ID] {
			t.hovered[b.ID] = true
			t.order = append(t.order, b.ID)
			entered = append(entered, b.ID)
		}
	}
	return entered, left
}

// Leave clears the hover set, as when the pointer leaves the image.
func (t *Tracker) Leave() (left []int) {
	left = append(left, t.order...)
	t.order = nil
	t.hovered = make(map[int]bool)
	return left
}

// Hovered returns the hovered ids in entry order.
func (t *Tracker) Hovered() []int {
	return append([]int(nil), t.order...)
}

// Active returns the most recently entered box still under the pointer.
func (t *Tracker) Active() (int, bool) {
	if len(t.order) == 0 {
		return 0, false
	}
	return t.order[len(t.order)-1], true
}

// HitTest returns the ids of every renderable box containing (x, y).
func HitTest(boxes []Box, x, y float64) []int {
	var ids []int
	for _, b := range boxes {
		if b.Rect.Renderable() && b.Rect.Contains(x, y) {
			ids = append(ids, b.ID)
		}
	}
	return ids
}
