package recipe

import (
	"encoding/json"
	"fmt"
	"math"
)

// Recipe is a generated recipe. It is copied by value into a meal plan.
type Recipe struct {
	Name               string   `json:"recipeName" firestore:"recipeName" validate:"required"`
	Ingredients        []string `json:"ingredients" firestore:"ingredients" validate:"required,min=1"`
	Instructions       []string `json:"instructions" firestore:"instructions" validate:"required,min=1"`
	CookingTimeMinutes int      `json:"cookingTime" firestore:"cookingTime" validate:"gt=0"`
}

// UnmarshalJSON accepts fractional cooking times, which the model
// occasionally returns for a "number" field.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string   `json:"recipeName"`
		Ingredients  []string `json:"ingredients"`
		Instructions []string `json:"instructions"`
		CookingTime  *float64 `json:"cookingTime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode recipe: %w", err)
	}

	r.Name = raw.Name
	r.Ingredients = raw.Ingredients
	r.Instructions = raw.Instructions
	r.CookingTimeMinutes = 0
	if raw.CookingTime != nil {
		r.CookingTimeMinutes = int(math.Round(*raw.CookingTime))
	}
	return nil
}

// Fields returns the recipe as a document map using the stored field names.
func (r Recipe) Fields() map[string]interface{} {
	return map[string]interface{}{
		"recipeName":   r.Name,
		"ingredients":  r.Ingredients,
		"instructions": r.Instructions,
		"cookingTime":  r.CookingTimeMinutes,
	}
}

// Clone returns a deep copy.
func (r Recipe) Clone() Recipe {
	c := r
	c.Ingredients = append([]string(nil), r.Ingredients...)
	c.Instructions = append([]string(nil), r.Instructions...)
	return c
}
