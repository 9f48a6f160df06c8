package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	var tasks = []Task{
		Gantry{MoveLeft: true},
		Home{Engage: true},
		Control{Direction: LeftToRight},
	}
	assert.Equal(t, KindGantry, tasks[0].Kind())
	assert.Equal(t, KindHome, tasks[1].Kind())
	assert.Equal(t, KindControl, tasks[2].Kind())
}

func TestDirectionRoundTrip(t *testing.T) {
	for _, d := range Directions {
		parsed, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
		assert.True(t, d.Valid())
	}

	assert.Equal(t, RightToLeft, LeftToRight.Next())
	assert.Equal(t, LeftToRight, RightToLeft.Next())
	assert.False(t, Direction(0).Valid())

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "gantry(left=true, right=false)", Gantry{MoveLeft: true}.String())
	assert.Equal(t, "home(engage=true)", Home{Engage: true}.String())
	assert.Contains(t, Control{Direction: RightToLeft}.String(), "right_to_left")
}
