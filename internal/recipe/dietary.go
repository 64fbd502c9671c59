package recipe

// Dietary preferences offered to the user. They are passed to the model as-is.
const (
	DietNone          = "None"
	DietVegetarian    = "Vegetarian"
	DietVegan         = "Vegan"
	DietGlutenFree    = "Gluten-Free"
	DietKeto          = "Keto"
	DietDairyFree     = "Dairy-Free"
	DietLowCarb       = "Low-Carb"
	DietMediterranean = "Mediterranean"
)

// DietaryOptions lists the selectable dietary preferences.
func DietaryOptions() []string {
	return []string{
		DietNone,
		DietVegetarian,
		DietVegan,
		DietGlutenFree,
		DietKeto,
		DietDairyFree,
		DietLowCarb,
		DietMediterranean,
	}
}

// Cooking time bounds of the search form, in minutes.
const (
	MinCookingMinutes     = 5
	MaxCookingMinutes     = 180
	DefaultCookingMinutes = 30
)
