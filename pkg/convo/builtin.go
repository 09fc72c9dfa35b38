package convo

// Builtins returns the prompt configs shipped with the binary so the
// conversation runtime has something to load even when no external
// prompt-config directory is mounted.
func Builtins() []PromptConfig {
	return []PromptConfig{generalSupportPrompt(), ocintVictimReportPrompt()}
}

func generalSupportPrompt() PromptConfig {
	return PromptConfig{
		ID: "general-support",
		AgentPersona: AgentPersona{
			Name:  "Alex",
			Tone:  "friendly",
			Style: "concise",
		},
		Scope: Scope{
			PrimaryFunction:    "general customer support triage",
			Boundaries:         []string{"no financial advice", "no legal advice"},
			MaxMessages:        12,
			EscalationTriggers: []string{"legal", "formal complaint", "refund over $200"},
		},
		Flow: []Step{
			{
				Index:   1,
				Purpose: "greet and identify the issue",
				Messages: []string{
					"Hi, I'm Alex. What can I help you with today?",
				},
				Collects: []string{"issue_summary"},
				ExtractionPatterns: map[string]string{
					"issue_summary": `(?i)(?:issue is|problem is|having trouble with) (.+)`,
				},
			},
			{
				Index:   2,
				Purpose: "confirm account identity",
				Messages: []string{
					"Can you confirm the email on your account?",
				},
				Collects: []string{"account_email"},
				ExtractionPatterns: map[string]string{
					"account_email": `([\w.+-]+@[\w-]+\.[\w.-]+)`,
				},
			},
		},
		Escalation: EscalationConfig{
			Threshold: 0.8,
			Message:   "Let me connect you with someone who can help further.",
			NextSteps: []string{"handoff_to_agent"},
		},
	}
}

// ocintVictimReportPrompt is the victim-intake flow for crypto-theft
// reports. Step 1's extraction patterns are tuned against the exact
// sample message "My name is John Smith, email me at john@example.com,
// phone (555) 123-4567": name stops at the comma since "," is outside
// the name character class, email is a standard address pattern, and
// phone matches the "(555) 123-4567" layout with an optional space after
// the area code.
func ocintVictimReportPrompt() PromptConfig {
	return PromptConfig{
		ID: "ocint-victim-report",
		AgentPersona: AgentPersona{
			Name:  "Morgan",
			Tone:  "calm",
			Style: "reassuring",
		},
		Scope: Scope{
			PrimaryFunction:    "crypto theft victim intake",
			Boundaries:         []string{"no investigative advice", "no recovery guarantees"},
			MaxMessages:        20,
			EscalationTriggers: []string{"legal", "formal complaint", "lawsuit"},
		},
		Flow: []Step{
			{
				Index:   1,
				Purpose: "collect victim contact details",
				Messages: []string{
					"I'm sorry this happened. Can you share your name, email, and a phone number so we can follow up?",
				},
				Collects: []string{"victim_name", "victim_email", "victim_phone"},
				ExtractionPatterns: map[string]string{
					"victim_name":  `(?i)name is ([A-Za-z]+(?:\s+[A-Za-z]+)*)`,
					"victim_email": `([\w.+-]+@[\w-]+\.[\w.-]+)`,
					"victim_phone": `(\(\d{3}\)\s?\d{3}-\d{4})`,
				},
			},
			{
				Index:   2,
				Purpose: "collect incident details",
				Messages: []string{
					"When did this happen, and roughly how much was taken?",
				},
				Collects: []string{"incident_date", "amount_lost"},
				ExtractionPatterns: map[string]string{
					"incident_date": `(?i)on ([A-Za-z]+\s+\d{1,2}(?:,?\s+\d{4})?)`,
					"amount_lost":   `\$([\d,]+(?:\.\d+)?)`,
				},
			},
			{
				Index:   3,
				Purpose: "collect transaction identifiers",
				Messages: []string{
					"Do you have a wallet address or transaction hash for the transfer?",
				},
				Collects: []string{"wallet_address", "tx_hash"},
				ExtractionPatterns: map[string]string{
					"wallet_address": `(0x[a-fA-F0-9]{40})`,
					"tx_hash":        `(0x[a-fA-F0-9]{64})`,
				},
			},
		},
		Escalation: EscalationConfig{
			Threshold: 0.8,
			Message:   "A specialist will take it from here.",
			NextSteps: []string{"handoff_to_specialist"},
		},
	}
}
