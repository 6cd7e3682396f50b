package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/logger"
)

// ChatIntent selects the assistant persona for a chat turn.
type ChatIntent string

const (
	IntentChat  ChatIntent = "chat"
	IntentEmail ChatIntent = "email"
)

// ParseIntent defaults anything other than "email" to chat.
func ParseIntent(s string) ChatIntent {
	if strings.EqualFold(strings.TrimSpace(s), string(IntentEmail)) {
		return IntentEmail
	}
	return IntentChat
}

// SimulatorPersona is the dealer character played by the negotiation simulator.
type SimulatorPersona string

const (
	PersonaAggressive SimulatorPersona = "aggressive"
	PersonaFriendly   SimulatorPersona = "friendly"
)

// ParsePersona defaults anything other than "aggressive" to the friendly salesperson.
func ParsePersona(s string) SimulatorPersona {
	if strings.EqualFold(strings.TrimSpace(s), string(PersonaAggressive)) {
		return PersonaAggressive
	}
	return PersonaFriendly
}

const (
	chatFallback      = "Analysis service error. Please try again."
	simulatorFallback = "The dealer is currently on another call."
	draftFallback     = "An error occurred. Please try again."
	contextSnippetLen = 3000
)

const expertInstruction = `You are **LeaseIQ**, an automotive financial intelligence assistant and consumer-protection expert. You help users understand, evaluate, and negotiate vehicle lease agreements.

RULES:
- Answer casual greetings and acknowledgments briefly. Do not analyze unless asked or given context.
- Identify the user's primary intent and focus on that topic.
- Put the direct answer first, then the explanation.
- For specific topics: explain the concept, apply it to the lease, separate standard from negotiable terms, quantify the financial impact, end with negotiation guidance.
- Use ONLY the provided context for vehicle-specific numbers, fees, rates, and terms. Never invent fees or clauses.
- The fairness score in the context is final. Quote it as given; never recalculate it.
- Use Markdown headers, bold emphasis and bullet points.
- Be calm, confident and consumer-protective.`

// Negotiator builds prompts around a stored contract and relays the model's answers.
type Negotiator struct {
	llm LLM
}

func NewNegotiator(llm LLM) *Negotiator {
	return &Negotiator{llm: llm}
}

// ContractContext renders the knowledge block given to the chat model. It
// reads the locked fairness score from the record.
func ContractContext(c *model.Contract) string {
	if c == nil {
		return ""
	}
	d := model.ContractData{}
	if c.Data != nil {
		d = *c.Data
	}
	d.Normalize()

	score := model.NotAvailable
	if c.Fairness != nil {
		score = strconv.Itoa(c.Fairness.Score)
	}
	fees := "None"
	if len(d.JunkFees) > 0 {
		fees = d.JunkFeesString()
	}

	var b strings.Builder
	b.WriteString("### DOCUMENT CONTEXT ###\n")
	fmt.Fprintf(&b, "Vehicle: %s %s %s\n", d.Year, d.Make, d.Model)
	fmt.Fprintf(&b, "VIN: %s\n", d.VIN)
	fmt.Fprintf(&b, "Purchase Price: %s\n", formatAmount(d.PurchasePrice))
	fmt.Fprintf(&b, "APR: %s%%\n", formatAmount(d.APRPercent))
	fmt.Fprintf(&b, "Lease Term: %d months\n", d.LeaseTermMonths)
	fmt.Fprintf(&b, "Monthly Payment: %s INR\n", formatAmount(d.MonthlyPaymentINR))
	fmt.Fprintf(&b, "Fairness Score: %s/100\n", score)
	fmt.Fprintf(&b, "Junk Fees Identified: %s\n", fees)
	fmt.Fprintf(&b, "Full OCR Text Snippet: %s\n", truncateRunes(c.Text, contextSnippetLen))
	b.WriteString("### END CONTEXT ###")
	return b.String()
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func chatPersona(intent ChatIntent, hasContext bool) string {
	switch {
	case intent == IntentEmail:
		return "You are a Senior Automotive Negotiation Expert. " +
			"Draft a professional, firm, and persuasive email to a car dealership. " +
			"Use the provided context to point out specific discrepancies, high interest rates, " +
			"or unnecessary 'junk fees'. Use a professional email format with placeholders like [Your Name]."
	case hasContext:
		return "You are LeaseIQ Expert. You have access to the user's uploaded lease contract. " +
			"Provide a detailed, helpful, and analytical response based on the document. " +
			"Use Markdown (bolding, lists) to highlight key financial terms."
	default:
		return "You are LeaseIQ Expert. No document has been uploaded yet. " +
			"Explain that you need a lease PDF to provide a full analysis, but you can " +
			"still answer general questions about leasing, APR, or residual values."
	}
}

// StreamChat streams the expert's answer to w as a single JSON object
// {"assistant_message": "..."} whose string value arrives incrementally.
func (n *Negotiator) StreamChat(ctx context.Context, message string, intent ChatIntent, contractContext string, w io.Writer) error {
	messages := []ChatMessage{
		{Role: "system", Content: expertInstruction + "\n\n" + chatPersona(intent, contractContext != "")},
	}
	if contractContext != "" {
		messages = append(messages, ChatMessage{
			Role:    "system",
			Content: "### EXTRACTED CONTEXT (MANDATORY DATA) ###\n" + contractContext,
		})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: message})

	return n.stream(ctx, ChatRequest{Messages: messages, Temperature: 0.7, MaxTokens: 1500}, chatFallback, w)
}

// StreamSimulator plays a dealership salesperson defending the contract terms.
func (n *Negotiator) StreamSimulator(ctx context.Context, message string, d model.ContractData, persona SimulatorPersona, w io.Writer) error {
	desc := "Friendly but firm Salesperson"
	if persona == PersonaAggressive {
		desc = "Tough, no-nonsense Sales Manager"
	}
	d.Normalize()
	system := fmt.Sprintf("ACT AS: %s at a dealership. You are selling the %s %s. Current APR: %s%%.\n"+
		"RULES: Be persuasive. Defend the contract terms. Use sales tactics. "+
		"Do NOT reveal you are an AI. Keep responses conversational and engaging.",
		desc, d.Make, d.Model, formatAmount(d.APRPercent))

	return n.stream(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
		Temperature: 0.8,
		MaxTokens:   1000,
	}, simulatorFallback, w)
}

// escapeDelta returns delta as the body of a JSON string literal.
func escapeDelta(delta string) string {
	b, _ := json.Marshal(delta)
	return string(b[1 : len(b)-1])
}

func (n *Negotiator) stream(ctx context.Context, req ChatRequest, fallback string, w io.Writer) error {
	started := false
	err := n.llm.Stream(ctx, req, func(delta string) error {
		if !started {
			started = true
			if _, err := io.WriteString(w, `{"assistant_message": "`); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, escapeDelta(delta)); err != nil {
			return err
		}
		flush(w)
		return nil
	})

	var closeErr error
	switch {
	case err != nil && !started:
		logger.Error(ctx, "chat stream failed", "error", err)
		closeErr = writeFallback(w, fallback)
	case err != nil:
		logger.Error(ctx, "chat stream interrupted", "error", err)
		_, closeErr = io.WriteString(w, `"}`)
	case !started:
		_, closeErr = io.WriteString(w, `{"assistant_message": ""}`)
	default:
		_, closeErr = io.WriteString(w, `"}`)
	}
	flush(w)

	if closeErr != nil {
		logger.Warn(ctx, "failed to close chat stream", "error", closeErr)
		if err == nil {
			return closeErr
		}
	}
	return err
}

func writeFallback(w io.Writer, message string) error {
	b, err := json.Marshal(map[string]string{"assistant_message": message})
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// ChatReply is the negotiation answer with an optional ready-to-send email.
type ChatReply struct {
	AssistantMessage  string  `json:"assistant_message"`
	CounterEmailDraft *string `json:"counter_email_draft"`
}

// DraftRequest carries the user's turn and the fees the email may name.
type DraftRequest struct {
	Message    string
	History    []ChatMessage
	HiddenFees []model.HiddenFee
}

// DraftEmail writes a negotiation email for the contract. The returned reply
// is always usable: on provider failure it carries an error message and the
// error is returned alongside it.
func (n *Negotiator) DraftEmail(ctx context.Context, c *model.Contract, req DraftRequest) (ChatReply, error) {
	d := model.ContractData{}
	if c != nil && c.Data != nil {
		d = *c.Data
	}
	d.Normalize()

	raw, err := n.llm.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: draftSystemPrompt(req.HiddenFees)},
			{Role: "user", Content: draftUserPrompt(c, d, req)},
		},
		MaxTokens: 1200,
		JSONMode:  true,
	})
	if err != nil {
		return ChatReply{AssistantMessage: draftFallback}, fmt.Errorf("email draft failed: %w", err)
	}
	return ParseChatReply(raw), nil
}

// ParseChatReply decodes the draft JSON, wrapping raw text as the email when it is not JSON.
func ParseChatReply(raw string) ChatReply {
	raw = stripCodeFence(raw)

	var decoded struct {
		AssistantMessage  any `json:"assistant_message"`
		CounterEmailDraft any `json:"counter_email_draft"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return ChatReply{AssistantMessage: "Draft generated.", CounterEmailDraft: &raw}
	}

	reply := ChatReply{AssistantMessage: toString(decoded.AssistantMessage)}
	if reply.AssistantMessage == "" {
		reply.AssistantMessage = "Draft generated."
	}
	if draft := toString(decoded.CounterEmailDraft); draft != "" {
		reply.CounterEmailDraft = &draft
	}
	return reply
}

func draftSystemPrompt(hidden []model.HiddenFee) string {
	seen := map[string]bool{}
	var fees []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			fees = append(fees, name)
		}
	}
	for _, f := range hidden {
		add(f.Name)
	}
	feesText := "the overall pricing structure and high APR"
	if len(fees) > 0 {
		feesText = strings.Join(fees, ", ")
	}

	return `You are a Senior Automotive Lease Negotiator.
Your task is to draft a professional negotiation email based on the analysis.
Output ONLY a JSON object. Do NOT include headers like 'JSON Response' or 'Negotiation Email Draft'.
STRICT JSON STRUCTURE:
{
  "assistant_message": "A 1-sentence summary of your advice.",
  "counter_email_draft": "The full, ready-to-send email starting with 'Subject:' and ending with 'Best regards'."
}
RULES:
- The email must be ready-to-send.
- Include only the fees or terms detected: ` + feesText + `.
- Email structure (MANDATORY):
    Subject: Clear and professional
    Greeting: Dear Sales Manager,
    Body: 2 paragraphs max, calm, professional
    Close: Best regards, [Your Name]`
}

func draftUserPrompt(c *model.Contract, d model.ContractData, req DraftRequest) string {
	var b strings.Builder
	b.WriteString("FINANCIAL CONTEXT:\n")
	fmt.Fprintf(&b, "Vehicle: %s %s %s\n", d.Year, d.Make, d.Model)
	fmt.Fprintf(&b, "Monthly Payment: %s\n", formatAmount(d.MonthlyPaymentINR))
	fmt.Fprintf(&b, "Down Payment: %s\n", formatAmount(d.DownPaymentINR))
	fmt.Fprintf(&b, "Balloon / Residual: %s\n", formatAmount(d.ResidualValueINR))
	fmt.Fprintf(&b, "APR: %s\n", formatAmount(d.APRPercent))
	fmt.Fprintf(&b, "Currency: %s\n", model.DefaultCurrency)
	if c != nil && c.Fairness != nil {
		fmt.Fprintf(&b, "Fairness Score: %d/100 (%s)\n", c.Fairness.Score, c.Fairness.Rating)
	}

	b.WriteString("\nHISTORY:\n")
	for _, m := range req.History {
		prefix := "Assistant"
		if m.Role == "user" {
			prefix = "User"
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, m.Content)
	}

	fmt.Fprintf(&b, "\nUSER MESSAGE:\n%s\n\nINTENT: email", req.Message)
	return b.String()
}
