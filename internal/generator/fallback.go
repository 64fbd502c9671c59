package generator

import (
	"strings"

	"smartchef/internal/recipe"
)

const soupMaxMinutes = 25

// FallbackRecipes builds the two demo recipes from the raw ingredient list.
func FallbackRecipes(ingredients string, maxMinutes int) []recipe.Recipe {
	if maxMinutes <= 0 {
		maxMinutes = recipe.DefaultCookingMinutes
	}
	items := splitIngredients(ingredients)

	stirFry := recipe.Recipe{
		Name:        "Quick Stir-Fry",
		Ingredients: head(items, 5),
		Instructions: []string{
			"Heat oil in a large pan or wok over medium-high heat",
			"Add your main ingredients and cook for 3-4 minutes",
			"Season with salt, pepper, and any available spices",
			"Stir frequently until ingredients are tender",
			"Serve hot over rice or noodles",
		},
		CookingTimeMinutes: maxMinutes,
	}

	soup := recipe.Recipe{
		Name:        "Simple Soup",
		Ingredients: append(head(items, 4), "broth", "herbs"),
		Instructions: []string{
			"Bring broth to a boil in a large pot",
			"Add your main ingredients",
			"Simmer for 15-20 minutes until tender",
			"Season to taste with herbs and spices",
			"Serve hot with bread or crackers",
		},
		CookingTimeMinutes: min(maxMinutes, soupMaxMinutes),
	}

	return []recipe.Recipe{stirFry, soup}
}

func splitIngredients(s string) []string {
	var items []string
	for _, part := range strings.Split(s, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// head returns a copy of at most n leading items.
func head(items []string, n int) []string {
	if len(items) < n {
		n = len(items)
	}
	return append([]string{}, items[:n]...)
}
