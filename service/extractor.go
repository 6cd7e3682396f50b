package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cast"

	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/logger"
)

const (
	// maxExtractionChars caps the text sent for field extraction.
	maxExtractionChars = 12000
	// maxAnalysisRetryChars is the prefix kept when the provider rejects the full text.
	maxAnalysisRetryChars = 10000
)

const extractionPrompt = `You are a financial data extractor. Output ONLY raw JSON.
RULES:
1. Map 'Vehicle Price', 'Agreed Value', or 'Sale Price' to "purchasePrice".
2. Map 'Interest Rate' or 'APR' to "aprPercent".
3. Identify legitimate hidden or 'junk' fees (e.g., Nitrogen Air, VIN Etching, Prep Fees).
   - If the text looks like broken characters or OCR noise (e.g., 'E,x,c,e,s,s'), ignore it.
   - Do not list standard lease terms like 'Excess Kilometer Charge' unless they hide an unusual cost.

TEXT TO ANALYZE:
%s

JSON SCHEMA:
{
  "make": "string", "model": "string", "year": number, "vin": "string",
  "aprPercent": number, "purchasePrice": number, "monthlyPaymentINR": number,
  "leaseTermMonths": number, "downPaymentINR": number, "residualValueINR": number,
  "annualMileageKm": number, "junk_fees": ["string"],
  "earlyTerminationLevel": "Low" | "Medium" | "High",
  "purchaseOptionStatus": "Available" | "Not Available",
  "maintenanceType": "Dealer" | "Customer" | "Shared",
  "warrantyType": "Included" | "Partial" | "Not Included",
  "penaltyLevel": "Low" | "Medium" | "High"
}`

const riskPrompt = `You are a Senior Automotive Lease Auditor.
Extract structured data ONLY from the provided lease text.
STRICT JSON OUTPUT:
{
  "risk_factors": [{"name": "Clause Name", "severity": 1, "description": "Explain risk"}],
  "price_factors": {
    "base_price": 0.0,
    "total_monthly_payment": 0.0,
    "total_due_at_signing": 0.0,
    "estimated_total_cost": 0.0,
    "currency": "INR"
  },
  "hidden_fees": [{"name": "", "amount": 0.0, "currency": "INR", "frequency": "one-time", "clause_excerpt": ""}],
  "junk_fees": []
}
RULES:
1. Severity is an integer from 1 (low) to 5 (high).
2. Capture vague or suspicious fees in 'junk_fees'.
3. Use 0 or empty lists if information is missing.
4. If text is scrambled OCR noise (e.g., 'E,x,c,e,s,s'), IGNORE IT.`

// extractionSchema only rejects structurally wrong output. Value types stay
// loose because models often quote numbers; cast coerces them afterwards.
const extractionSchema = `{
  "type": "object",
  "properties": {
    "make":  {"type": ["string", "null"]},
    "model": {"type": ["string", "null"]},
    "year":  {"type": ["string", "number", "null"]},
    "vin":   {"type": ["string", "null"]},
    "aprPercent":        {"$ref": "#/$defs/amount"},
    "purchasePrice":     {"$ref": "#/$defs/amount"},
    "monthlyPaymentINR": {"$ref": "#/$defs/amount"},
    "leaseTermMonths":   {"$ref": "#/$defs/amount"},
    "downPaymentINR":    {"$ref": "#/$defs/amount"},
    "residualValueINR":  {"$ref": "#/$defs/amount"},
    "annualMileageKm":   {"$ref": "#/$defs/amount"},
    "junk_fees": {
      "oneOf": [
        {"type": "array", "items": {"type": ["string", "number"]}},
        {"type": ["string", "null"]}
      ]
    },
    "earlyTerminationLevel": {"type": ["string", "null"]},
    "purchaseOptionStatus":  {"type": ["string", "null"]},
    "maintenanceType":       {"type": ["string", "null"]},
    "warrantyType":          {"type": ["string", "null"]},
    "penaltyLevel":          {"type": ["string", "null"]}
  },
  "$defs": {
    "amount": {"type": ["number", "string", "null"]}
  }
}`

var compiledExtractionSchema = mustCompileSchema("extraction.json", extractionSchema)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("parse %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("add %s: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return sch
}

// RiskAnalysis is the on-demand clause and fee review of a contract.
type RiskAnalysis struct {
	RiskFactors  []model.RiskFactor `json:"risk_factors"`
	PriceFactors model.PriceFactors `json:"price_factors"`
	HiddenFees   []model.HiddenFee  `json:"hidden_fees"`
	JunkFees     []string           `json:"junk_fees"`
}

// Extractor turns contract text into structured data with an LLM.
type Extractor struct {
	llm LLM
}

func NewExtractor(llm LLM) *Extractor {
	return &Extractor{llm: llm}
}

// ExtractContract pulls the lease fields out of OCR text. The result is normalized.
func (e *Extractor) ExtractContract(ctx context.Context, text string) (model.ContractData, error) {
	clean := truncateRunes(strings.Join(strings.Fields(text), " "), maxExtractionChars)
	if clean == "" {
		return model.ContractData{}, errors.New("no text content provided")
	}

	raw, err := e.llm.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "Specialized financial parser. Output ONLY JSON."},
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, clean)},
		},
		JSONMode: true,
	})
	if err != nil {
		return model.ContractData{}, fmt.Errorf("extraction failed: %w", err)
	}

	return ParseContractData(raw)
}

// ParseContractData validates a model's extraction output and coerces it into ContractData.
// A top-level list is reduced to its first element and a {"data": {...}} envelope is unwrapped.
func ParseContractData(raw string) (model.ContractData, error) {
	var decoded any
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decoded); err != nil {
		return model.ContractData{}, fmt.Errorf("extraction returned invalid JSON: %w", err)
	}

	fields := unwrapExtraction(decoded)
	if err := compiledExtractionSchema.Validate(fields); err != nil {
		return model.ContractData{}, fmt.Errorf("extraction output rejected: %w", err)
	}

	d := model.ContractData{
		Make:                  toString(fields["make"]),
		Model:                 toString(fields["model"]),
		Year:                  toString(fields["year"]),
		VIN:                   toString(fields["vin"]),
		PurchasePrice:         toFloat(fields["purchasePrice"]),
		MonthlyPaymentINR:     toFloat(fields["monthlyPaymentINR"]),
		DownPaymentINR:        toFloat(fields["downPaymentINR"]),
		ResidualValueINR:      toFloat(fields["residualValueINR"]),
		APRPercent:            toFloat(fields["aprPercent"]),
		LeaseTermMonths:       toInt(fields["leaseTermMonths"]),
		AnnualMileageKm:       toInt(fields["annualMileageKm"]),
		EarlyTerminationLevel: model.RiskLevel(toString(fields["earlyTerminationLevel"])),
		PenaltyLevel:          model.RiskLevel(toString(fields["penaltyLevel"])),
		MaintenanceType:       model.MaintenanceType(toString(fields["maintenanceType"])),
		WarrantyType:          model.WarrantyType(toString(fields["warrantyType"])),
		PurchaseOptionStatus:  model.PurchaseOption(toString(fields["purchaseOptionStatus"])),
		JunkFees:              toStrings(fields["junk_fees"]),
	}
	d.Normalize()
	return d, nil
}

func unwrapExtraction(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return map[string]any{}
		}
		return unwrapExtraction(t[0])
	case map[string]any:
		if inner, ok := t["data"].(map[string]any); ok {
			return inner
		}
		return t
	}
	return map[string]any{}
}

// AnalyzeRisks asks for risk factors, hidden fees and price factors. When the
// provider rejects the full text it retries once with a truncated prefix.
// Output that is not JSON degrades to an empty analysis.
func (e *Extractor) AnalyzeRisks(ctx context.Context, text string) (RiskAnalysis, error) {
	raw, err := e.analyze(ctx, text)
	if IsRequestTooLarge(err) {
		logger.Info(ctx, "retrying risk analysis with truncated text", "max_chars", maxAnalysisRetryChars)
		raw, err = e.analyze(ctx, truncateRunes(text, maxAnalysisRetryChars))
	}
	if err != nil {
		return RiskAnalysis{}, fmt.Errorf("risk analysis failed: %w", err)
	}

	analysis, perr := ParseRiskAnalysis(raw)
	if perr != nil {
		logger.Warn(ctx, "risk analysis returned unparseable output", "error", perr)
	}
	return analysis, nil
}

func (e *Extractor) analyze(ctx context.Context, text string) (string, error) {
	return e.llm.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: riskPrompt},
			{Role: "user", Content: "Analyze this contract:\n\n" + text},
		},
	})
}

// ParseRiskAnalysis decodes a risk analysis response. On error it still
// returns a usable empty analysis.
func ParseRiskAnalysis(raw string) (RiskAnalysis, error) {
	empty := RiskAnalysis{
		RiskFactors:  []model.RiskFactor{},
		HiddenFees:   []model.HiddenFee{},
		JunkFees:     []string{},
		PriceFactors: model.PriceFactors{Currency: model.DefaultCurrency},
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
		return empty, err
	}

	a := empty
	for _, item := range toMaps(fields["risk_factors"]) {
		r := model.RiskFactor{
			Name:        toString(item["name"]),
			Severity:    toInt(item["severity"]),
			Description: toString(item["description"]),
		}
		r.ClampSeverity()
		a.RiskFactors = append(a.RiskFactors, r)
	}
	for _, item := range toMaps(fields["hidden_fees"]) {
		name := toString(item["name"])
		if name == "" {
			name = toString(item["fee_name"])
		}
		if name == "" {
			continue
		}
		f := model.HiddenFee{
			Name:          name,
			Amount:        toFloat(item["amount"]),
			Currency:      toString(item["currency"]),
			Frequency:     toString(item["frequency"]),
			ClauseExcerpt: toString(item["clause_excerpt"]),
		}
		f.Normalize()
		a.HiddenFees = append(a.HiddenFees, f)
	}
	if pf, ok := fields["price_factors"].(map[string]any); ok {
		a.PriceFactors = model.PriceFactors{
			BasePrice:           toFloat(pf["base_price"]),
			TotalMonthlyPayment: toFloat(pf["total_monthly_payment"]),
			TotalDueAtSigning:   toFloat(pf["total_due_at_signing"]),
			EstimatedTotalCost:  toFloat(pf["estimated_total_cost"]),
			Currency:            toString(pf["currency"]),
		}
		if a.PriceFactors.Currency == "" {
			a.PriceFactors.Currency = model.DefaultCurrency
		}
	}
	a.JunkFees = toStrings(fields["junk_fees"])
	return a, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var numberNoise = strings.NewReplacer(",", "", "INR", "", "Rs.", "", "Rs", "", "₹", "", "$", "", "%", "", " ", "")

func toFloat(v any) float64 {
	if s, ok := v.(string); ok {
		v = numberNoise.Replace(strings.TrimSpace(s))
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func toInt(v any) int {
	return int(math.Round(toFloat(v)))
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func toStrings(v any) []string {
	if s, ok := v.(string); ok {
		return model.SplitJunkFees(s)
	}
	out := []string{}
	for _, item := range cast.ToSlice(v) {
		if s := toString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toMaps(v any) []map[string]any {
	var out []map[string]any
	for _, item := range cast.ToSlice(v) {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
