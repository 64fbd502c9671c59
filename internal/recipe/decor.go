package recipe

import (
	"encoding/json"
	"strings"
)

// Difficulty is a rough effort estimate derived from time and step count.
type Difficulty struct {
	Level string `json:"level"`
	Stars int    `json:"stars"`
}

// DifficultyOf rates a recipe as Easy, Medium or Hard.
func DifficultyOf(r Recipe) Difficulty {
	steps := len(r.Instructions)
	switch {
	case r.CookingTimeMinutes <= 15 && steps <= 4:
		return Difficulty{Level: "Easy", Stars: 1}
	case r.CookingTimeMinutes <= 30 && steps <= 6:
		return Difficulty{Level: "Medium", Stars: 2}
	default:
		return Difficulty{Level: "Hard", Stars: 3}
	}
}

type emojiRule struct {
	name        []string // matched against the recipe name
	ingredients []string // matched against the joined ingredient list
	emoji       string
}

// Order matters: the first matching rule wins.
var foodEmojis = []emojiRule{
	{name: []string{"chicken"}, ingredients: []string{"chicken"}, emoji: "🍗"},
	{name: []string{"beef"}, ingredients: []string{"beef"}, emoji: "🥩"},
	{name: []string{"fish", "salmon"}, ingredients: []string{"fish"}, emoji: "🐟"},
	{name: []string{"pasta"}, ingredients: []string{"pasta"}, emoji: "🍝"},
	{name: []string{"pizza"}, emoji: "🍕"},
	{name: []string{"soup", "broth"}, emoji: "🍲"},
	{name: []string{"salad"}, ingredients: []string{"lettuce"}, emoji: "🥗"},
	{name: []string{"sandwich", "burger"}, emoji: "🥪"},
	{name: []string{"rice"}, ingredients: []string{"rice"}, emoji: "🍚"},
	{name: []string{"stir", "fry"}, emoji: "🥘"},
	{name: []string{"curry"}, emoji: "🍛"},
	{name: []string{"taco", "mexican"}, emoji: "🌮"},
	{name: []string{"breakfast"}, ingredients: []string{"egg"}, emoji: "🍳"},
	{name: []string{"dessert", "cake", "sweet"}, emoji: "🍰"},
	{ingredients: []string{"vegetable", "broccoli"}, emoji: "🥦"},
}

const defaultFoodEmoji = "🍽️"

// FoodEmoji picks an emoji from the recipe name and ingredients.
func FoodEmoji(r Recipe) string {
	name := strings.ToLower(r.Name)
	ingredients := strings.ToLower(strings.Join(r.Ingredients, " "))
	for _, rule := range foodEmojis {
		if containsAny(name, rule.name) || containsAny(ingredients, rule.ingredients) {
			return rule.emoji
		}
	}
	return defaultFoodEmoji
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var mealTimeEmojis = map[MealTime]string{
	Breakfast: "🌅",
	Lunch:     "☀️",
	Dinner:    "🌙",
	Snack:     "🍪",
}

// MealTimeEmoji returns the icon of a meal time.
func MealTimeEmoji(m MealTime) string {
	if e, ok := mealTimeEmojis[m]; ok {
		return e
	}
	return defaultFoodEmoji
}

var dayEmojis = map[Day]string{
	Monday:    "💪",
	Tuesday:   "🔥",
	Wednesday: "⚡",
	Thursday:  "🚀",
	Friday:    "🎉",
	Saturday:  "🌟",
	Sunday:    "😌",
}

// DayEmoji returns the icon of a day.
func DayEmoji(d Day) string {
	if e, ok := dayEmojis[d]; ok {
		return e
	}
	return "📅"
}

// Decorated is a recipe with its presentational extras.
type Decorated struct {
	Recipe
	Emoji      string     `json:"emoji"`
	Difficulty Difficulty `json:"difficulty"`
}

// UnmarshalJSON decodes the recipe fields and the extras. Without it the
// embedded Recipe's decoder would drop emoji and difficulty.
func (d *Decorated) UnmarshalJSON(data []byte) error {
	var extras struct {
		Emoji      string     `json:"emoji"`
		Difficulty Difficulty `json:"difficulty"`
	}
	if err := json.Unmarshal(data, &extras); err != nil {
		return err
	}
	if err := d.Recipe.UnmarshalJSON(data); err != nil {
		return err
	}
	d.Emoji = extras.Emoji
	d.Difficulty = extras.Difficulty
	return nil
}

// Decorate attaches emoji and difficulty to a recipe.
func Decorate(r Recipe) Decorated {
	return Decorated{Recipe: r, Emoji: FoodEmoji(r), Difficulty: DifficultyOf(r)}
}
