package simulate

import (
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Item is one generated feed entry.
type Item struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Creator  string        `json:"creator"`
	Duration time.Duration `json:"duration"`
}

// RandomItem generates a plausible feed entry.
func RandomItem() Item {
	return Item{
		ID:       uuid.New().String(),
		Title:    gofakeit.Sentence(4),
		Creator:  fmt.Sprintf("@%s", gofakeit.Username()),
		Duration: time.Duration(gofakeit.Number(8, 90)) * time.Second,
	}
}

// Feed lays generated items out vertically inside a viewport and derives
// each surface's visibility ratio from scroll geometry, so scrolling the
// container produces the intersection reports a real viewport would.
type Feed struct {
	mu        sync.Mutex
	container *Container
	items     []Item
	videos    map[string]*Video

	itemHeight     float64
	viewportHeight float64
	offset         float64

	lastRatio map[string]float64
}

// NewFeed generates count items laid out with the given geometry.
func NewFeed(count int, itemHeight, viewportHeight float64) *Feed {
	f := &Feed{
		container:      NewContainer(),
		videos:         make(map[string]*Video),
		itemHeight:     itemHeight,
		viewportHeight: viewportHeight,
		lastRatio:      make(map[string]float64),
	}
	for i := 0; i < count; i++ {
		item := RandomItem()
		f.items = append(f.items, item)
		f.videos[item.ID] = NewVideo(item.ID)
	}
	return f
}

// Items returns the generated entries in layout order.
func (f *Feed) Items() []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Item(nil), f.items...)
}

// Container returns the shared feed container handle.
func (f *Feed) Container() *Container {
	return f.container
}

// Video returns the handle for one item id.
func (f *Feed) Video(id string) *Video {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.videos[id]
}

// ScrollTo moves the viewport to an absolute offset and publishes the
// resulting visibility ratios for every item that changed.
func (f *Feed) ScrollTo(offset float64) {
	f.mu.Lock()
	if offset < 0 {
		offset = 0
	}
	max := f.itemHeight*float64(len(f.items)) - f.viewportHeight
	if max > 0 && offset > max {
		offset = max
	}
	f.offset = offset

	type report struct {
		id    string
		ratio float64
	}
	var changed []report
	for i, item := range f.items {
		ratio := f.visibleRatio(i)
		if prev, ok := f.lastRatio[item.ID]; !ok || prev != ratio {
			f.lastRatio[item.ID] = ratio
			changed = append(changed, report{id: item.ID, ratio: ratio})
		}
	}
	f.mu.Unlock()

	f.container.ScrollTo(offset)
	for _, r := range changed {
		f.container.SetVisibility(r.id, r.ratio)
	}
}

// ScrollBy moves the viewport by delta.
func (f *Feed) ScrollBy(delta float64) {
	f.mu.Lock()
	target := f.offset + delta
	f.mu.Unlock()
	f.ScrollTo(target)
}

// visibleRatio computes how much of item i intersects the viewport.
// Caller holds f.mu.
func (f *Feed) visibleRatio(i int) float64 {
	top := f.itemHeight * float64(i)
	bottom := top + f.itemHeight

	viewTop := f.offset
	viewBottom := f.offset + f.viewportHeight

	visibleTop := top
	if viewTop > visibleTop {
		visibleTop = viewTop
	}
	visibleBottom := bottom
	if viewBottom < visibleBottom {
		visibleBottom = viewBottom
	}
	if visibleBottom <= visibleTop || f.itemHeight <= 0 {
		return 0
	}
	return (visibleBottom - visibleTop) / f.itemHeight
}
