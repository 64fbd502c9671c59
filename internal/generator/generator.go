package generator

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"smartchef/internal/llm"
	"smartchef/internal/recipe"
	"smartchef/internal/shared"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

//go:embed generator_prompt.md
var generatorPrompt string

var promptTmpl = template.Must(template.New("generator").Parse(generatorPrompt))

const agentName = "RecipeGenerator"

// FallbackNotice is shown alongside demo recipes.
const FallbackNotice = "Using demo recipes (Gemini API not configured). Please add your API key to use AI-generated recipes."

// EmptyIngredientsMessage is the user-facing text for ErrEmptyIngredients.
const EmptyIngredientsMessage = "Please enter some ingredients"

// ErrEmptyIngredients is returned when no ingredients were entered.
var ErrEmptyIngredients = errors.New("no ingredients entered")

// Request holds the search form inputs.
type Request struct {
	Ingredients string `json:"ingredients" validate:"required"`
	Dietary     string `json:"dietary"`
	MaxMinutes  int    `json:"cookingTime"`
}

// Result is the outcome of a generation run. Recipes is never empty.
type Result struct {
	Recipes  []recipe.Recipe
	Fallback bool
	Notice   string
	Meta     shared.AgentMeta
}

// Generator turns a Request into recipes, degrading to demo recipes on any failure.
type Generator struct {
	textGen  llm.StructuredGenerator
	validate *validator.Validate
	log      logrus.FieldLogger
}

// New creates a Generator on top of a structured text generator.
func New(textGen llm.StructuredGenerator, log logrus.FieldLogger) *Generator {
	return &Generator{
		textGen:  textGen,
		validate: validator.New(),
		log:      log,
	}
}

// recipeSchema constrains the model output to an array of recipes.
func recipeSchema() *llm.Schema {
	stringArray := &llm.Schema{Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}}
	return &llm.Schema{
		Type: llm.TypeArray,
		Items: &llm.Schema{
			Type: llm.TypeObject,
			Properties: map[string]*llm.Schema{
				"recipeName":   {Type: llm.TypeString},
				"ingredients":  stringArray,
				"instructions": stringArray,
				"cookingTime":  {Type: llm.TypeNumber},
			},
			Required: []string{"recipeName", "ingredients", "instructions", "cookingTime"},
		},
	}
}

// normalize trims the inputs and fills in the form defaults.
func normalize(req Request) Request {
	req.Ingredients = strings.TrimSpace(req.Ingredients)
	req.Dietary = strings.TrimSpace(req.Dietary)
	if req.Dietary == "" {
		req.Dietary = recipe.DietNone
	}
	if req.MaxMinutes <= 0 {
		req.MaxMinutes = recipe.DefaultCookingMinutes
	}
	return req
}

// BuildPrompt renders the generation prompt for a request.
func BuildPrompt(req Request) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, normalize(req)); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// Generate returns the model's recipes, or the two fallback recipes when the
// model is unavailable or answers with anything unusable. The only error is
// ErrEmptyIngredients.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	req = normalize(req)
	if err := g.validate.Struct(req); err != nil {
		return Result{}, ErrEmptyIngredients
	}
	// "," alone names no ingredient.
	if len(splitIngredients(req.Ingredients)) == 0 {
		return Result{}, ErrEmptyIngredients
	}

	start := time.Now()
	recipes, usage, err := g.callModel(ctx, req)
	meta := shared.AgentMeta{
		AgentName: agentName,
		Usage:     usage,
		Latency:   time.Since(start),
		Outcome:   shared.OutcomeGenerated,
	}

	if err != nil {
		g.log.WithError(err).Warn("recipe generation failed, serving demo recipes")
		meta.Outcome = shared.OutcomeFallback
		return Result{
			Recipes:  FallbackRecipes(req.Ingredients, req.MaxMinutes),
			Fallback: true,
			Notice:   FallbackNotice,
			Meta:     meta,
		}, nil
	}

	g.log.WithFields(logrus.Fields{
		"recipes":    len(recipes),
		"latency_ms": meta.Latency.Milliseconds(),
	}).Info("recipes generated")

	return Result{Recipes: recipes, Meta: meta}, nil
}

func (g *Generator) callModel(ctx context.Context, req Request) ([]recipe.Recipe, shared.TokenUsage, error) {
	if g.textGen == nil {
		return nil, shared.TokenUsage{}, llm.ErrNotConfigured
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, shared.TokenUsage{}, err
	}

	resp, err := g.textGen.GenerateJSON(ctx, prompt, recipeSchema())
	if err != nil {
		return nil, resp.Usage, fmt.Errorf("failed to get LLM response: %w", err)
	}

	var recipes []recipe.Recipe
	if err := json.Unmarshal([]byte(resp.Content), &recipes); err != nil {
		return nil, resp.Usage, fmt.Errorf("failed to unmarshal LLM response into recipes: %w", err)
	}
	if len(recipes) == 0 {
		return nil, resp.Usage, fmt.Errorf("no recipes in LLM response")
	}

	return recipes, resp.Usage, nil
}
