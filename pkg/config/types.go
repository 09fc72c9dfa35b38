package config

// DispatchYAMLConfig represents the complete dispatch.yaml file structure.
// Every section is optional: a missing file or section falls back to the
// built-in configuration.
type DispatchYAMLConfig struct {
	Options         *OptionsYAML               `yaml:"options"`
	EscalationRules []EscalationRuleYAML       `yaml:"escalation_rules"`
	Scorecards      []ScorecardYAML            `yaml:"scorecards"`
	Prompts         []PromptYAML               `yaml:"prompts"`
	StealthProfiles map[int]StealthProfileYAML `yaml:"stealth_profiles"`
	Knowledge       []KnowledgeEntryYAML       `yaml:"knowledge"`
}

// OptionsYAML holds the recognized environment/config options. Pointer
// fields distinguish "unset, use default" from explicit zero values.
type OptionsYAML struct {
	StealthEnabled            *bool    `yaml:"stealth_enabled"`
	StealthMaxResponseDelayMS *int     `yaml:"stealth_max_response_delay_ms"`
	QueueBackpressureSoft     *int     `yaml:"queue_backpressure_soft_limit"`
	QAPassThreshold           *float64 `yaml:"qa_pass_threshold"`
	EscalationAutoReenqueue   *bool    `yaml:"escalation_enable_auto_reenqueue"`
}

// EscalationRuleYAML is one escalation rule as written in dispatch.yaml.
// SLA is a Go duration string ("15m", "1h").
type EscalationRuleYAML struct {
	ID                   string   `yaml:"id"`
	Name                 string   `yaml:"name"`
	Triggers             []string `yaml:"triggers"`
	FromTier             int      `yaml:"from_tier"`
	ToTier               int      `yaml:"to_tier"`
	Priority             string   `yaml:"priority"`
	AutoEscalate         bool     `yaml:"auto_escalate"`
	NotificationRequired bool     `yaml:"notification_required"`
	SLA                  string   `yaml:"sla"`
}

// ScorecardYAML is one QA scorecard as written in dispatch.yaml.
type ScorecardYAML struct {
	ID               string          `yaml:"id"`
	Name             string          `yaml:"name"`
	Version          int             `yaml:"version"`
	PassingScore     float64         `yaml:"passing_score"`
	AutoFailCriteria []string        `yaml:"auto_fail_criteria"`
	Criteria         []CriterionYAML `yaml:"criteria"`
}

// CriterionYAML is one weighted criterion of a ScorecardYAML.
type CriterionYAML struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Weight      float64            `yaml:"weight"`
	MaxScore    float64            `yaml:"max_score"`
	Required    bool               `yaml:"required"`
	AutoFail    bool               `yaml:"auto_fail"`
	SubCriteria []SubCriterionYAML `yaml:"sub_criteria"`
}

// SubCriterionYAML is one scored line item of a CriterionYAML.
type SubCriterionYAML struct {
	Name   string  `yaml:"name"`
	Points float64 `yaml:"points"`
}

// PromptYAML is one prompt-driven conversation flow as written in
// dispatch.yaml. The two built-in prompts are compiled-in Go data and do
// not come through this path; YAML prompts extend or override them.
type PromptYAML struct {
	ID      string `yaml:"id"`
	Persona struct {
		Name  string `yaml:"name"`
		Tone  string `yaml:"tone"`
		Style string `yaml:"style"`
	} `yaml:"persona"`
	Scope struct {
		PrimaryFunction    string   `yaml:"primary_function"`
		Boundaries         []string `yaml:"boundaries"`
		MaxMessages        int      `yaml:"max_messages"`
		EscalationTriggers []string `yaml:"escalation_triggers"`
	} `yaml:"scope"`
	Flow []StepYAML `yaml:"conversation_flow"`
	Escalation struct {
		Threshold float64  `yaml:"threshold"`
		Message   string   `yaml:"message"`
		NextSteps []string `yaml:"next_steps"`
	} `yaml:"escalation"`
}

// StepYAML is one conversation_flow step of a PromptYAML.
type StepYAML struct {
	Purpose            string            `yaml:"purpose"`
	Messages           []string          `yaml:"messages"`
	Collects           []string          `yaml:"collects"`
	ExtractionPatterns map[string]string `yaml:"extraction_patterns"`
}

// StealthProfileYAML is one tier's pacing profile override.
type StealthProfileYAML struct {
	TypingSpeed        float64                        `yaml:"typing_speed"`
	MinResponseDelayMS int                            `yaml:"min_response_delay_ms"`
	MaxResponseDelayMS int                            `yaml:"max_response_delay_ms"`
	TypingVariability  float64                        `yaml:"typing_variability"`
	EmojiUsage         float64                        `yaml:"emoji_usage"`
	Formality          float64                        `yaml:"formality"`
	Patterns           map[string]ResponsePatternYAML `yaml:"response_patterns"`
}

// ResponsePatternYAML is one responseType's delay/typing baseline.
type ResponsePatternYAML struct {
	DelayMS          int `yaml:"delay_ms"`
	TypingDurationMS int `yaml:"typing_duration_ms"`
}

// KnowledgeEntryYAML is one seeded knowledge-base article.
type KnowledgeEntryYAML struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Content     map[string]any `yaml:"content"`
	AccessTier  int            `yaml:"access_tier"`
	Tags        []string       `yaml:"tags"`
	Owner       string         `yaml:"owner"`
	ReviewCycle string         `yaml:"review_cycle"`
	Version     int            `yaml:"version"`
}
