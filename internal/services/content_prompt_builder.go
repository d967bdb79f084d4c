package services

import (
	"fmt"
	"strings"
)

const (
	DefaultTone    = "professional"
	DefaultBalance = "N/A"
	SignOff        = "AutoFlow Team"

	// InsufficientDataReply is what the model is told to answer when it cannot
	// follow the rules.
	InsufficientDataReply = "ERROR: INSUFFICIENT DATA"
)

type IContentPromptBuilder interface {
	Build(req GenerationRequest) string
}

type ContentPromptBuilder struct{}

func NewContentPromptBuilder() *ContentPromptBuilder {
	return &ContentPromptBuilder{}
}

// Build renders a prompt that depends only on req. Nothing from earlier
// records or responses is ever included.
func (b *ContentPromptBuilder) Build(req GenerationRequest) string {
	req = req.withDefaults()

	var extra string
	if ctx := strings.TrimSpace(req.AdditionalContext); ctx != "" {
		extra = fmt.Sprintf("\nAdditional Context: %s", ctx)
	}

	return fmt.Sprintf(`You are a controlled AI system embedded inside a workflow automation app.

YOUR JOB:
Generate a NEW email message based ONLY on the data and instructions provided.

ABSOLUTE RULES (DO NOT BREAK):
1. Do NOT use or imitate any previous email templates
2. Do NOT use default or generic email language
3. Do NOT guess missing information
4. Do NOT add anything that is not in the data
5. Do NOT explain what you are doing
6. Do NOT output markdown or bullet points
7. Do NOT repeat any sentence from past responses
8. Sign off as "%s"

IF YOU CANNOT FOLLOW THE RULES:
Return exactly this text: "%s"

INPUT DATA:
Name: %s
Workflow Type: %s
Balance/Amount: %s%s

INSTRUCTIONS:
Purpose: %s
Tone: %s
Channel: Email

FINAL COMMAND:
Generate ONE fresh email with a subject line.
Output ONLY valid JSON in this exact format: {"subject": "...", "body": "..."}`,
		SignOff, InsufficientDataReply,
		req.RecipientName, req.WorkflowType, req.Balance, extra,
		req.WorkflowType, req.Tone)
}
