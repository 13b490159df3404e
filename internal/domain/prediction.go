package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the categorical market movement for a trading day. The
// numeric values are the persisted encoding and must not be reordered.
type Direction int

const (
	DirectionUp   Direction = 0
	DirectionDown Direction = 1
	DirectionFlat Direction = 2
)

// Directions lists every valid direction in encoding order.
var Directions = []Direction{DirectionUp, DirectionDown, DirectionFlat}

// Valid reports whether d is one of the three known directions.
func (d Direction) Valid() bool {
	return d >= DirectionUp && d <= DirectionFlat
}

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "UP"
	case DirectionDown:
		return "DOWN"
	case DirectionFlat:
		return "FLAT"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts the names UP, DOWN and FLAT in any case, or the
// numeric encoding 0..2.
func ParseDirection(s string) (Direction, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "UP":
		return DirectionUp, nil
	case "DOWN":
		return DirectionDown, nil
	case "FLAT":
		return DirectionFlat, nil
	}
	if n, err := strconv.Atoi(v); err == nil && Direction(n).Valid() {
		return Direction(n), nil
	}
	return 0, fmt.Errorf("unknown direction %q: %w", s, ErrInvalidInput)
}

// MarshalText encodes the direction by name.
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("marshal direction %d: %w", int(d), ErrInvalidInput)
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name or numeric code.
func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts either a JSON string ("UP") or a JSON number (0).
func (d *Direction) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Direction(n).Valid() {
			return fmt.Errorf("unknown direction %d: %w", n, ErrInvalidInput)
		}
		*d = Direction(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode direction: %w", ErrInvalidInput)
	}
	return d.UnmarshalText([]byte(s))
}

// Prediction is a single directional call for one industry on one day.
// Only Actual may change after creation, and only from nil to a value.
type Prediction struct {
	ID         int64      `json:"id"`
	IndustryID int64      `json:"industry_id"`
	Date       time.Time  `json:"date"`
	Predicted  Direction  `json:"predicted"`
	Actual     *Direction `json:"actual"`
}

// IsResolved reports whether the actual outcome has been recorded.
func (p Prediction) IsResolved() bool {
	return p.Actual != nil
}

// IsCorrect reports whether the prediction is resolved and matched.
func (p Prediction) IsCorrect() bool {
	return p.Actual != nil && *p.Actual == p.Predicted
}

// Day returns the calendar day of the prediction in loc.
func (p Prediction) Day(loc *time.Location) time.Time {
	return DayOf(p.Date, loc)
}

// DayOf truncates t to midnight of its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayOf(a, loc).Equal(DayOf(b, loc))
}

// DirectionPtr returns a pointer to d.
func DirectionPtr(d Direction) *Direction {
	return &d
}
