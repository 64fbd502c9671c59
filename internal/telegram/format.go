package telegram

import (
	"fmt"
	"path/filepath"
	"strings"

	"smartchef/internal/generator"
	"smartchef/internal/mealplan"
	"smartchef/internal/metrics"
	"smartchef/internal/recipe"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown escapes user and model text for legacy Markdown.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func formatRecipesMarkdown(res generator.Result) string {
	var sb strings.Builder
	if res.Fallback {
		sb.WriteString(fmt.Sprintf("ℹ️ _%s_\n\n", escapeMarkdown(res.Notice)))
	}

	for i, r := range res.Recipes {
		d := recipe.Decorate(r)
		stars := strings.Repeat("⭐", d.Difficulty.Stars)
		sb.WriteString(fmt.Sprintf("%s *%d. %s*\n", d.Emoji, i+1, escapeMarkdown(r.Name)))
		sb.WriteString(fmt.Sprintf("⏱ %d min · %s %s\n", r.CookingTimeMinutes, d.Difficulty.Level, stars))
		sb.WriteString("🥘 " + escapeMarkdown(strings.Join(r.Ingredients, ", ")) + "\n")
		for j, step := range r.Instructions {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", j+1, escapeMarkdown(step)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Save one with `/save <n> <day> <meal>`")
	return sb.String()
}

func formatPlanMarkdown(plan mealplan.Plan) string {
	var sb strings.Builder
	sb.WriteString("📅 *Weekly Meal Plan*\n\n")
	if len(plan) == 0 {
		sb.WriteString("_Nothing planned yet._\n")
		return sb.String()
	}

	totalMinutes := 0
	for _, day := range plan.Grid() {
		var lines []string
		for _, meal := range day.Meals {
			if meal.Recipe == nil {
				continue
			}
			totalMinutes += meal.Recipe.CookingTimeMinutes
			lines = append(lines, fmt.Sprintf("%s %s: %s (%d min)\n",
				recipe.MealTimeEmoji(meal.MealTime), meal.MealTime,
				escapeMarkdown(meal.Recipe.Name), meal.Recipe.CookingTimeMinutes))
		}
		if len(lines) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s *%s*\n", recipe.DayEmoji(day.Day), day.Day))
		sb.WriteString(strings.Join(lines, ""))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("🍽 *Meals:* %d · ⏱ *Total cooking:* %d min\n", len(plan), totalMinutes))
	return sb.String()
}

func formatMetricsMarkdown(usage []metrics.DailyUsage, health metrics.SysHealth, sessions int) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs, %d fallbacks)\n",
			d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution, d.Fallbacks))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Sessions: %d\n", sessions))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}

func dataDir(databasePath string) string {
	return filepath.Dir(databasePath)
}
