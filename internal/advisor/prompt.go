package advisor

import (
	"fmt"
	"strings"
)

var intensityGuidance = map[Intensity]string{
	IntensityJustStarting: "The user is just starting out. Suggest gentle, sustainable cuts and keep the tone encouraging.",
	IntensityIdeal:        "The user wants a balanced plan. Suggest meaningful cuts without stripping all discretionary spending.",
	IntensityMustAchieve:  "The user must hit this goal. Be strict: cut discretionary spending aggressively and say so plainly.",
}

// systemPrompt frames the assistant as a financial advisor and pins the
// structured-output contract to a per-generation tag so the extractor cannot
// match tag-like text quoted from user data.
func systemPrompt(req Request, tag string) string {
	var b strings.Builder
	b.WriteString("You are a personal financial advisor helping a user build a monthly savings plan.\n\n")
	b.WriteString("Use the available tools to inspect the user's real transactions, budgets, goals and overall summary before giving advice. Base every number on what the tools return; never invent figures.\n\n")
	if g, ok := intensityGuidance[req.Intensity]; ok {
		b.WriteString(g)
		b.WriteString("\n\n")
	}
	b.WriteString("When you have finished analyzing, respond with:\n")
	b.WriteString("1. Markdown advice the user can read, explaining where their money goes and what to change.\n")
	fmt.Fprintf(&b, "2. A machine-readable list of suggested per-category monthly limits, wrapped exactly in <%s> and </%s> tags, as a JSON array of objects with fields \"category\", \"suggestedLimit\" and \"reasoning\".\n", tag, tag)
	b.WriteString("3. A single suggested total monthly savings amount, stated in the advice.\n\n")
	b.WriteString("You may also call propose_saving_goal and propose_budget_limits to register structured proposals; nothing you propose is persisted without the user's approval.")
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "My goal: %s\n", req.Goal)
	if req.TargetMonthlySavings > 0 {
		fmt.Fprintf(&b, "I want to save %.0f per month.\n", req.TargetMonthlySavings)
	}
	fmt.Fprintf(&b, "Commitment level: %s\n", req.Intensity)
	if req.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", req.Notes)
	}
	b.WriteString("Please review my finances and build the plan.")
	return b.String()
}
