// Package docstore persists meal plan documents and streams their changes.
//
// Every write is a last-writer-wins merge at field granularity. There are
// no transactions or version checks across writers.
package docstore

import (
	"context"
	"fmt"
	"strings"

	"smartchef/internal/recipe"
)

// Path identifies the meal plan document of one user.
type Path struct {
	AppID  string
	UserID string
}

// String is the document path, artifacts/{appId}/users/{userId}/mealPlans/currentWeek.
func (p Path) String() string {
	return fmt.Sprintf("artifacts/%s/users/%s/mealPlans/currentWeek", p.AppID, p.UserID)
}

// Complete reports whether both ids are set and usable as path segments.
func (p Path) Complete() bool {
	return p.AppID != "" && p.UserID != "" &&
		!strings.Contains(p.AppID, "/") && !strings.Contains(p.UserID, "/")
}

// Document maps "{day}{mealTime}" keys to recipes.
type Document map[string]recipe.Recipe

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, r := range d {
		out[k] = r.Clone()
	}
	return out
}

// Snapshot is one observed state of a document. Exists is false when the
// document is absent. A snapshot with Err set is the last one on its channel.
type Snapshot struct {
	Document Document
	Exists   bool
	Err      error
}

// Store is a remote document store holding meal plans.
type Store interface {
	// Subscribe streams the current document and every later change until
	// ctx is cancelled. The channel only keeps the latest undelivered snapshot.
	Subscribe(ctx context.Context, path Path) (<-chan Snapshot, error)
	// MergeWrite sets the given fields, leaving other fields untouched.
	MergeWrite(ctx context.Context, path Path, doc Document) error
	// DeleteField removes one field. Deleting from an absent document is not an error.
	DeleteField(ctx context.Context, path Path, key string) error
	Close() error
}
