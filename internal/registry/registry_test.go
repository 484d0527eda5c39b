package registry

import (
	"testing"

	"github.com/marketloop/videofeed/internal/simulate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	v := simulate.NewVideo("a")
	c := simulate.NewContainer()

	s, replaced := r.Register("a", v, c)
	require.NotNil(t, s)
	assert.Nil(t, replaced)
	assert.Equal(t, "a", s.ID)
	assert.Equal(t, uint64(1), s.Seq)

	got := r.Get("a")
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
}

func TestDuplicateRegistrationLastWins(t *testing.T) {
	r := New()
	c := simulate.NewContainer()

	first, _ := r.Register("a", simulate.NewVideo("a"), c)
	second, replaced := r.Register("a", simulate.NewVideo("a"), c)

	require.Same(t, first, replaced)
	assert.Same(t, second, r.Get("a"))
	assert.Equal(t, 1, r.Len())
	assert.Greater(t, second.Seq, first.Seq)
}

func TestUnregister(t *testing.T) {
	r := New()
	c := simulate.NewContainer()
	s, _ := r.Register("a", simulate.NewVideo("a"), c)

	got := r.Unregister("a")
	assert.Same(t, s, got)
	assert.Nil(t, r.Get("a"))
	assert.Equal(t, 0, r.Len())

	// Unknown ids are a no-op
	assert.Nil(t, r.Unregister("missing"))
}

func TestUnregisterClearsCurrentDesignation(t *testing.T) {
	r := New()
	c := simulate.NewContainer()
	r.Register("a", simulate.NewVideo("a"), c)
	r.Register("b", simulate.NewVideo("b"), c)

	r.SetCurrent("a")
	require.Equal(t, "a", r.Current())

	r.Unregister("a")
	// No automatic promotion; the engine decides on its next pass.
	assert.Equal(t, "", r.Current())
}

func TestListOrderedByRegistration(t *testing.T) {
	r := New()
	c := simulate.NewContainer()
	r.Register("c", simulate.NewVideo("c"), c)
	r.Register("a", simulate.NewVideo("a"), c)
	r.Register("b", simulate.NewVideo("b"), c)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
}
