package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"UP":    DirectionUp,
		"down":  DirectionDown,
		" Flat": DirectionFlat,
		"0":     DirectionUp,
		"2":     DirectionFlat,
	}
	for in, want := range cases {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("sideways")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = ParseDirection("3")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDirectionJSON(t *testing.T) {
	p := Prediction{ID: 7, IndustryID: 3, Predicted: DirectionDown, Actual: DirectionPtr(DirectionFlat)}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"predicted":"DOWN"`)
	assert.Contains(t, string(data), `"actual":"FLAT"`)

	var back struct {
		Predicted Direction  `json:"predicted"`
		Actual    *Direction `json:"actual"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"predicted":1,"actual":null}`), &back))
	assert.Equal(t, DirectionDown, back.Predicted)
	assert.Nil(t, back.Actual)

	require.Error(t, json.Unmarshal([]byte(`{"predicted":9}`), &back))
}

func TestPredictionResolution(t *testing.T) {
	p := Prediction{Predicted: DirectionUp}
	assert.False(t, p.IsResolved())
	assert.False(t, p.IsCorrect())

	p.Actual = DirectionPtr(DirectionDown)
	assert.True(t, p.IsResolved())
	assert.False(t, p.IsCorrect())

	p.Actual = DirectionPtr(DirectionUp)
	assert.True(t, p.IsCorrect())
}

func TestSameDay(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	a := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	b := time.Date(2026, 3, 1, 0, 5, 0, 0, loc)
	assert.True(t, SameDay(a, b, loc))
	// 23:30 CST is 15:30 UTC the same day, 00:05 CST is the previous UTC day.
	assert.False(t, SameDay(a, b, time.UTC))
}

func TestStatusErrorMatchesServer(t *testing.T) {
	err := error(&StatusError{Code: 502, Status: "Bad Gateway"})
	assert.True(t, errors.Is(err, ErrServer))
	assert.Equal(t, "server error: 502 Bad Gateway", err.Error())
}
