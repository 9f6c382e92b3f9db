package model

// SeedCriterion declares one criterion in a seed file. The group is
// referenced by name; ids are assigned by the store.
type SeedCriterion struct {
	Name                       string `mapstructure:"name"`
	Group                      string `mapstructure:"group"`
	Prompt                     string `mapstructure:"prompt"`
	ShowTextDescription        bool   `mapstructure:"show_text_description"`
	EvaluateCriterion          bool   `mapstructure:"evaluate_criterion"`
	IncludeInScore             bool   `mapstructure:"include_in_score"`
	IncludeInEntityDescription bool   `mapstructure:"include_in_entity_description"`
}

// SeedCategory declares one classification category and the names of
// the criteria evaluated for calls falling into it.
type SeedCategory struct {
	Name     string   `mapstructure:"name"`
	Prompt   string   `mapstructure:"prompt"`
	Criteria []string `mapstructure:"criteria"`
}

// CriteriaSeed is a portal's analytics reference data as declared in a
// seed file: everything is keyed by name so the file survives database
// rebuilds.
type CriteriaSeed struct {
	Groups     []CriterionGroup `mapstructure:"groups"`
	Criteria   []SeedCriterion  `mapstructure:"criteria"`
	Categories []SeedCategory   `mapstructure:"categories"`
}
