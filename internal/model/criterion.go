package model

// Criterion is a static per-portal evaluation dimension applied to call
// dialogues. Definitions are read-only inputs during a pipeline run.
type Criterion struct {
	ID      int    `json:"id"`
	GroupID int    `json:"group_id"`
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`

	// ShowTextDescription gates whether the per-call free text is surfaced.
	ShowTextDescription bool `json:"show_text_description"`
	// EvaluateCriterion gates whether a numeric score is computed at all.
	EvaluateCriterion bool `json:"evaluate_criterion"`
	// IncludeInScore gates whether the score counts toward the call's total.
	IncludeInScore bool `json:"include_in_score"`
	// IncludeInEntityDescription gates whether the criterion propagates into
	// entity-level aggregation.
	IncludeInEntityDescription bool `json:"include_in_entity_description"`
}

// CriterionGroup names a set of related criteria.
type CriterionGroup struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Category is a dialogue classification target. Each category owns a subset
// of criteria via the categories_criteria link table; only those criteria are
// evaluated for calls classified into the category.
type Category struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Prompt   string `json:"prompt"`
	Criteria []int  `json:"criteria,omitempty"`
}
