package recipe

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Day is a day of the week in the plan grid.
type Day string

// MealTime is a meal of the day in the plan grid.
type MealTime string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
	Sunday    Day = "Sunday"
)

const (
	Breakfast MealTime = "Breakfast"
	Lunch     MealTime = "Lunch"
	Dinner    MealTime = "Dinner"
	Snack     MealTime = "Snack"
)

// ErrInvalidSlot is returned for a day or meal time outside the plan grid.
var ErrInvalidSlot = errors.New("invalid meal slot")

// Days lists the plan days in display order.
func Days() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// MealTimes lists the meal times in display order.
func MealTimes() []MealTime {
	return []MealTime{Breakfast, Lunch, Dinner, Snack}
}

// ParseDay matches a day name case-insensitively.
func ParseDay(s string) (Day, error) {
	for _, d := range Days() {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown day %q", ErrInvalidSlot, s)
}

// ParseMealTime matches a meal time name case-insensitively.
func ParseMealTime(s string) (MealTime, error) {
	for _, m := range MealTimes() {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown meal time %q", ErrInvalidSlot, s)
}

// SlotKey identifies one cell of the weekly plan.
type SlotKey struct {
	Day      Day
	MealTime MealTime
}

// NewSlotKey parses a day and a meal time into a SlotKey.
func NewSlotKey(day, mealTime string) (SlotKey, error) {
	d, err := ParseDay(day)
	if err != nil {
		return SlotKey{}, err
	}
	m, err := ParseMealTime(mealTime)
	if err != nil {
		return SlotKey{}, err
	}
	return SlotKey{Day: d, MealTime: m}, nil
}

// String is the stored field key, e.g. "TuesdayDinner".
func (k SlotKey) String() string {
	return string(k.Day) + string(k.MealTime)
}

// Valid reports whether both parts belong to the plan grid.
func (k SlotKey) Valid() bool {
	return slices.Contains(Days(), k.Day) && slices.Contains(MealTimes(), k.MealTime)
}

// ParseSlotKey parses the stored field key form back into a SlotKey.
func ParseSlotKey(s string) (SlotKey, error) {
	for _, d := range Days() {
		if !strings.HasPrefix(s, string(d)) {
			continue
		}
		m, err := ParseMealTime(strings.TrimPrefix(s, string(d)))
		if err != nil {
			return SlotKey{}, err
		}
		return SlotKey{Day: d, MealTime: m}, nil
	}
	return SlotKey{}, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

// AllSlots returns the 28 slots of the week, day by day.
func AllSlots() []SlotKey {
	slots := make([]SlotKey, 0, len(Days())*len(MealTimes()))
	for _, d := range Days() {
		for _, m := range MealTimes() {
			slots = append(slots, SlotKey{Day: d, MealTime: m})
		}
	}
	return slots
}

// MarshalText encodes the key in its stored form, so maps keyed by SlotKey
// serialize as {"TuesdayDinner": ...}.
func (k SlotKey) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlot, k.String())
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses the stored form.
func (k *SlotKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSlotKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
