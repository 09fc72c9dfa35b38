package convo

import (
	"strings"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
)

// Result is what ProcessMessage reports back to the caller.
type Result struct {
	Extracted       map[string]string
	StepComplete    bool
	ShouldEscalate  bool
	EscalateReason  string
	NextStep        int
	ContextSnapshot session.ConversationContext
}

// intentKeywords maps a case-insensitive keyword to the (intent, category)
// pair it sets on first match. A small fixed table, not a learned
// classifier; kept as an ordered slice so a message matching several
// keywords always resolves to the same intent.
var intentKeywords = []struct {
	keyword  string
	intent   string
	category string
}{
	{"stolen", "report_theft", "crypto_theft"},
	{"hacked", "report_theft", "crypto_theft"},
	{"scam", "report_fraud", "fraud"},
	{"refund", "request_refund", "billing"},
	{"cancel", "cancel_service", "account"},
	{"onboard", "onboarding", "onboarding"},
	{"new account", "onboarding", "onboarding"},
}

// escalationTriggerPhrases are case-insensitive phrases that force
// shouldEscalate=true regardless of message count or completion ratio.
var escalationTriggerPhrases = []string{
	"legal", "formal complaint", "lawsuit", "attorney", "sue you",
}

// Runtime is the stateless transformation engine: given a prompt, the
// session's current ConversationContext, and one customer message, it
// computes the next context and a Result. It never blocks and never
// mutates its inputs: purely synchronous transformations over inputs and
// context.
type Runtime struct{}

// NewRuntime builds a Runtime. It carries no state — a package-level
// function would do, but a type keeps the call sites consistent with
// every other component being constructed explicitly (design note: no
// ambient globals).
func NewRuntime() *Runtime {
	return &Runtime{}
}

// ProcessMessage runs one customer message through the active step:
// extraction, step completion, and escalation evaluation.
func (rt *Runtime) ProcessMessage(prompt *PromptConfig, ctx session.ConversationContext, message string) (Result, session.ConversationContext) {
	next := ctx.Clone()
	detectIntent(&next, message)

	step, ok := prompt.StepAt(next.CurrentStep)
	if !ok {
		return Result{
			Extracted:       map[string]string{},
			ContextSnapshot: next,
			NextStep:        next.CurrentStep,
		}, next
	}

	extracted := extractFields(step, message, next.ExtractedFields)
	for field, value := range extracted {
		next.ExtractedFields[field] = value
	}

	next.MessageCount++

	stepComplete := isStepComplete(step, next.ExtractedFields)
	if stepComplete {
		next.CurrentStep++
	}

	shouldEscalate, reason := evaluateEscalation(prompt, next)

	return Result{
		Extracted:       extracted,
		StepComplete:    stepComplete,
		ShouldEscalate:  shouldEscalate,
		EscalateReason:  reason,
		NextStep:        next.CurrentStep,
		ContextSnapshot: next,
	}, next
}

// extractFields applies every extraction pattern in step against message,
// returning only the fields newly captured this call (fields already
// present in existing are left untouched — "store into extractedFields if
// not already present"). Each field is evaluated independently of the
// others against the whole message string, so the result does not depend
// on map iteration order, so extraction is deterministic.
func extractFields(step Step, message string, existing map[string]string) map[string]string {
	out := make(map[string]string)
	for field, re := range step.compiled {
		if _, already := existing[field]; already {
			continue
		}
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			out[field] = m[1]
		} else {
			out[field] = m[0]
		}
	}
	return out
}

// isStepComplete reports whether at least 80% of step.Collects have been
// captured into extractedFields — or true if the step collects nothing.
func isStepComplete(step Step, extractedFields map[string]string) bool {
	if len(step.Collects) == 0 {
		return true
	}
	have := 0
	for _, field := range step.Collects {
		if _, ok := extractedFields[field]; ok {
			have++
		}
	}
	return float64(have)/float64(len(step.Collects)) >= 0.8
}

// evaluateEscalation checks the three escalation conditions: forced
// trigger phrases, the message-count quota, and the overall completion
// ratio.
func evaluateEscalation(prompt *PromptConfig, ctx session.ConversationContext) (bool, string) {
	if len(ctx.EscalationTriggers) > 0 {
		return true, "trigger_phrase:" + ctx.EscalationTriggers[len(ctx.EscalationTriggers)-1]
	}
	if prompt.Scope.MaxMessages > 0 && ctx.MessageCount >= prompt.Scope.MaxMessages {
		return true, "message_quota"
	}
	total := prompt.totalCollectedFields()
	if total > 0 {
		ratio := float64(len(ctx.ExtractedFields)) / float64(total)
		if ratio >= prompt.Escalation.Threshold {
			return true, "completion_threshold"
		}
	}
	return false, ""
}

// detectIntent sets customerIntent/issueCategory on first keyword match
// and appends an escalation trigger tag when message contains one of
// escalationTriggerPhrases.
func detectIntent(ctx *session.ConversationContext, message string) {
	lowered := strings.ToLower(message)
	if ctx.CustomerIntent == "" {
		for _, entry := range intentKeywords {
			if strings.Contains(lowered, entry.keyword) {
				ctx.CustomerIntent = entry.intent
				ctx.IssueCategory = entry.category
				break
			}
		}
	}
	for _, phrase := range escalationTriggerPhrases {
		if strings.Contains(lowered, phrase) {
			ctx.EscalationTriggers = append(ctx.EscalationTriggers, phrase)
			break
		}
	}
}

// NextMessages returns the current step's messages, in order.
func NextMessages(prompt *PromptConfig, currentStep int) []string {
	step, ok := prompt.StepAt(currentStep)
	if !ok {
		return nil
	}
	return append([]string(nil), step.Messages...)
}
