package mealplan

import (
	"smartchef/internal/docstore"
	"smartchef/internal/recipe"
)

// Plan maps weekly slots to recipes. A slot holds at most one recipe.
type Plan map[recipe.SlotKey]recipe.Recipe

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := make(Plan, len(p))
	for k, r := range p {
		out[k] = r.Clone()
	}
	return out
}

// Document converts the plan to its stored form.
func (p Plan) Document() docstore.Document {
	doc := make(docstore.Document, len(p))
	for k, r := range p {
		doc[k.String()] = r.Clone()
	}
	return doc
}

// FromDocument converts a stored document to a plan. Fields that are not
// slot keys are returned separately and otherwise ignored.
func FromDocument(doc docstore.Document) (Plan, []string) {
	plan := make(Plan, len(doc))
	var unknown []string
	for key, r := range doc {
		slot, err := recipe.ParseSlotKey(key)
		if err != nil {
			unknown = append(unknown, key)
			continue
		}
		plan[slot] = r.Clone()
	}
	return plan, unknown
}

// SlotEntry is one cell of the weekly grid.
type SlotEntry struct {
	MealTime recipe.MealTime `json:"mealTime"`
	Recipe   *recipe.Recipe  `json:"recipe,omitempty"`
}

// DayPlan is one row of the weekly grid.
type DayPlan struct {
	Day   recipe.Day  `json:"day"`
	Meals []SlotEntry `json:"meals"`
}

// Grid lays the plan out day by day in display order, including empty slots.
func (p Plan) Grid() []DayPlan {
	days := make([]DayPlan, 0, len(recipe.Days()))
	for _, d := range recipe.Days() {
		row := DayPlan{Day: d}
		for _, m := range recipe.MealTimes() {
			entry := SlotEntry{MealTime: m}
			if r, ok := p[recipe.SlotKey{Day: d, MealTime: m}]; ok {
				r := r
				entry.Recipe = &r
			}
			row.Meals = append(row.Meals, entry)
		}
		days = append(days, row)
	}
	return days
}
