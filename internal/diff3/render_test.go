package diff3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderWith_ShowBase(t *testing.T) {
	t.Parallel()

	res := Merge(lines("a", "X", "c"), lines("a", "b", "c"), lines("a", "Y", "c"))
	got := RenderWith(res, RenderOptions{ShowBase: true})
	assert.Equal(t, lines("a", MarkerLocal, "X", MarkerBase, "b", MarkerSeparator, "Y", MarkerRemote, "c"), got)
}

func TestRender_MarkerOrder(t *testing.T) {
	t.Parallel()

	res := Merge(lines("q", "L"), lines("q", "B"), lines("q", "R1", "R2"))
	out := Render(res)

	idx := func(marker string) int {
		for i, line := range out {
			if line == marker {
				return i
			}
		}
		return -1
	}
	local, sep, remote := idx(MarkerLocal), idx(MarkerSeparator), idx(MarkerRemote)
	require.NotEqual(t, -1, local)
	assert.Less(t, local, sep)
	assert.Less(t, sep, remote)
	assert.Equal(t, lines("q", MarkerLocal, "L", MarkerSeparator, "R1", "R2", MarkerRemote), out)
}

func TestHasConflictMarkers(t *testing.T) {
	t.Parallel()

	assert.False(t, HasConflictMarkers(nil))
	assert.False(t, HasConflictMarkers(lines("a", "======= not a start", ">>>>>>> REMOTE")))
	assert.False(t, HasConflictMarkers(lines("  <<<<<<< LOCAL")))
	assert.True(t, HasConflictMarkers(lines("a", "<<<<<<< HEAD")))
	assert.True(t, HasConflictMarkers(Render(Merge(lines("x"), nil, lines("y")))))
	assert.False(t, HasConflictMarkers(Render(Merge(lines("x"), nil, lines("x")))))
}

func TestConflictLineCount(t *testing.T) {
	t.Parallel()

	res := Merge(lines("a", "L1", "L2"), lines("a", "b"), lines("a", "R"))
	// 2 local + 1 remote + 3 markers
	assert.Equal(t, 6, res.ConflictLineCount())

	clean := Merge(lines("a"), lines("a"), lines("a", "b"))
	assert.Zero(t, clean.ConflictLineCount())
}
