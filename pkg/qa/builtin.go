package qa

// BuiltinScorecards returns the scorecards available without any config
// file, mirroring the offline-fallback treatment of the built-in prompt
// configs. general_support is the default scorecard applied to completed
// standard-support interactions.
func BuiltinScorecards() []Scorecard {
	return []Scorecard{
		{
			ID:           "general_support",
			Name:         "General Support Quality",
			Version:      1,
			PassingScore: 80,
			Criteria: []Criterion{
				{
					ID: "greeting", Name: "Greeting & Opening", Weight: 10, MaxScore: 10,
					SubCriteria: []SubCriterion{
						{Name: "greeted promptly", Points: 5},
						{Name: "verified customer identity", Points: 5},
					},
				},
				{
					ID: "communication", Name: "Communication Quality", Weight: 20, MaxScore: 20,
					SubCriteria: []SubCriterion{
						{Name: "clear and professional language", Points: 10},
						{Name: "active listening and empathy", Points: 10},
					},
				},
				{
					ID: "product_knowledge", Name: "Product Knowledge", Weight: 25, MaxScore: 20, AutoFail: true,
					SubCriteria: []SubCriterion{
						{Name: "accurate information", Points: 10},
						{Name: "used knowledge base correctly", Points: 10},
					},
				},
				{
					ID: "resolution", Name: "Issue Resolution", Weight: 20, MaxScore: 20,
					SubCriteria: []SubCriterion{
						{Name: "diagnosed root cause", Points: 10},
						{Name: "resolved or escalated correctly", Points: 10},
					},
				},
				{
					ID: "process", Name: "Process Compliance", Weight: 15, MaxScore: 15,
					SubCriteria: []SubCriterion{
						{Name: "followed escalation policy", Points: 8},
						{Name: "documented the session", Points: 7},
					},
				},
				{
					ID: "closing", Name: "Closing", Weight: 10, MaxScore: 10,
					SubCriteria: []SubCriterion{
						{Name: "confirmed resolution with customer", Points: 5},
						{Name: "professional close", Points: 5},
					},
				},
			},
			AutoFailCriteria: []string{"product_knowledge"},
		},
		{
			ID:           "victim_intake",
			Name:         "Victim Intake Quality",
			Version:      1,
			PassingScore: 85,
			Criteria: []Criterion{
				{
					ID: "empathy", Name: "Empathy & Tone", Weight: 25, MaxScore: 20,
					SubCriteria: []SubCriterion{
						{Name: "acknowledged distress", Points: 10},
						{Name: "no victim-blaming language", Points: 10},
					},
				},
				{
					ID: "completeness", Name: "Report Completeness", Weight: 35, MaxScore: 30, AutoFail: true,
					SubCriteria: []SubCriterion{
						{Name: "identity fields collected", Points: 10},
						{Name: "incident details collected", Points: 10},
						{Name: "transaction evidence collected", Points: 10},
					},
				},
				{
					ID: "accuracy", Name: "Data Accuracy", Weight: 25, MaxScore: 20,
					SubCriteria: []SubCriterion{
						{Name: "fields match transcript", Points: 10},
						{Name: "no fabricated details", Points: 10},
					},
				},
				{
					ID: "handoff", Name: "Escalation Handoff", Weight: 15, MaxScore: 10,
					SubCriteria: []SubCriterion{
						{Name: "escalated at threshold", Points: 5},
						{Name: "handoff summary present", Points: 5},
					},
				},
			},
			AutoFailCriteria: []string{"completeness"},
		},
	}
}
