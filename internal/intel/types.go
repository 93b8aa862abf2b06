// Package intel implements the Intelligence Extractor & Persister (§4.6): a
// schema-constrained LLM extraction step followed by a single-transaction
// persist of five summary rows and N polymorphic insight rows.
package intel

// Summaries holds the fixed five-level summary set.
type Summaries struct {
	Title     string `json:"title"`
	Headline  string `json:"headline"`
	Brief     string `json:"brief"`
	Detailed  string `json:"detailed"`
	Spotlight string `json:"spotlight"`
}

// ActionItem is one row source for the action_item insight type.
type ActionItem struct {
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
	DueDate     string `json:"due_date,omitempty"` // YYYY-MM-DD
}

// Decision is one row source for the decision_made insight type.
type Decision struct {
	Decision  string `json:"decision"`
	Rationale string `json:"rationale,omitempty"`
}

// Severity enumerates risk severities.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Risk is one row source for the risk insight type.
type Risk struct {
	Risk       string   `json:"risk"`
	Severity   Severity `json:"severity"`
	Mitigation string   `json:"mitigation,omitempty"`
}

// TextItem is the shared shape for product_feedback and market_intelligence
// entries, each of which maps directly (never coerced to key_takeaway).
type TextItem struct {
	Text string `json:"text"`
}

// Analysis is the fixed extraction schema of §4.6.1: five-level summaries
// plus six category lists. It is an in-memory record only; it is never
// persisted as a single row, only decomposed by Persist.
type Analysis struct {
	Summaries          Summaries  `json:"summaries"`
	ActionItems        []ActionItem `json:"action_items"`
	Decisions          []Decision   `json:"decisions"`
	Risks              []Risk       `json:"risks"`
	KeyTakeaways       []string     `json:"key_takeaways"`
	ProductFeedback    []TextItem   `json:"product_feedback"`
	MarketIntelligence []TextItem   `json:"market_intelligence"`
}

// Schema is the fixed JSON Schema bound to the structured-output LLM call,
// used both to prompt the model and to validate its response before retrying.
const Schema = `{
  "type": "object",
  "required": ["summaries", "action_items", "decisions", "risks", "key_takeaways", "product_feedback", "market_intelligence"],
  "properties": {
    "summaries": {
      "type": "object",
      "required": ["title", "headline", "brief", "detailed", "spotlight"],
      "properties": {
        "title": {"type": "string"},
        "headline": {"type": "string"},
        "brief": {"type": "string"},
        "detailed": {"type": "string"},
        "spotlight": {"type": "string"}
      }
    },
    "action_items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string"},
          "owner": {"type": "string"},
          "due_date": {"type": "string"}
        }
      }
    },
    "decisions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["decision"],
        "properties": {
          "decision": {"type": "string"},
          "rationale": {"type": "string"}
        }
      }
    },
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["risk", "severity"],
        "properties": {
          "risk": {"type": "string"},
          "severity": {"type": "string", "enum": ["low", "medium", "high"]},
          "mitigation": {"type": "string"}
        }
      }
    },
    "key_takeaways": {"type": "array", "items": {"type": "string"}},
    "product_feedback": {
      "type": "array",
      "items": {"type": "object", "required": ["text"], "properties": {"text": {"type": "string"}}}
    },
    "market_intelligence": {
      "type": "array",
      "items": {"type": "object", "required": ["text"], "properties": {"text": {"type": "string"}}}
    }
  }
}`
