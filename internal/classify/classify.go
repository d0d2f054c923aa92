// Package classify maps meeting descriptions and task names to ledger task
// identifiers using small ordered rule tables.
package classify

import (
	"strings"

	"calsync/internal/models"
)

// TaskIDs holds the ledger identifier for each task category.
type TaskIDs map[models.TaskCategory]string

// DefaultTaskIDs returns the built-in identifiers.
func DefaultTaskIDs() TaskIDs {
	return TaskIDs{
		models.TaskDevelopment: models.DefaultDevelopmentTaskID,
		models.TaskImprovement: models.DefaultImprovementTaskID,
		models.TaskFix:         models.DefaultFixTaskID,
		models.TaskVodaMeeting: models.DefaultVodaMeetingTaskID,
		models.TaskOther:       models.DefaultOtherTaskID,
	}
}

type descriptionRule struct {
	substrings []string
	category   models.TaskCategory
}

// descriptionRules are evaluated top to bottom; matching is case-sensitive.
var descriptionRules = []descriptionRule{
	{substrings: []string{"Voda"}, category: models.TaskVodaMeeting},
	{substrings: []string{"FFC", "First Friday Connect"}, category: models.TaskOther},
}

const defaultMeetingCategory = models.TaskImprovement

// Classifier resolves categories to ledger task identifiers.
type Classifier struct {
	ids TaskIDs
}

// New builds a Classifier. Categories missing from ids fall back to the
// built-in identifiers.
func New(ids TaskIDs) *Classifier {
	merged := DefaultTaskIDs()
	for cat, id := range ids {
		if id != "" {
			merged[cat] = id
		}
	}
	return &Classifier{ids: merged}
}

// Classify picks the task for a meeting by description.
func (c *Classifier) Classify(description string) string {
	return c.ids[ClassifyDescription(description)]
}

// ClassifyByName looks up a task name case-insensitively. The boolean is
// false when the name is not a known category; callers apply their own
// default.
func (c *Classifier) ClassifyByName(name string) (string, bool) {
	cat, ok := Category(name)
	if !ok {
		return "", false
	}
	return c.ids[cat], true
}

// ID returns the identifier for a category.
func (c *Classifier) ID(cat models.TaskCategory) string {
	return c.ids[cat]
}

// ClassifyDescription applies the description rules and returns the category.
func ClassifyDescription(description string) models.TaskCategory {
	for _, rule := range descriptionRules {
		for _, sub := range rule.substrings {
			if strings.Contains(description, sub) {
				return rule.category
			}
		}
	}
	return defaultMeetingCategory
}

// Category resolves a task name against the fixed category table.
func Category(name string) (models.TaskCategory, bool) {
	name = strings.TrimSpace(name)
	for _, cat := range models.TaskCategories {
		if strings.EqualFold(string(cat), name) {
			return cat, true
		}
	}
	return "", false
}
