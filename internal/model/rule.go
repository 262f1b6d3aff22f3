package model

// FieldKind classifies a rule condition or action field into the closed set the
// engine knows how to map between ids and names. Fields outside this set are
// carried through untouched (KindOther).
type FieldKind int

const (
	KindAccount FieldKind = iota
	KindPayee
	KindCategory
	KindDate
	KindAmount
	KindNotes
	KindOther
)

// KindOf maps a condition/action field name onto its FieldKind.
func KindOf(field string) FieldKind {
	switch field {
	case "account":
		return KindAccount
	case "payee":
		return KindPayee
	case "category":
		return KindCategory
	case "date":
		return KindDate
	case "amount":
		return KindAmount
	case "notes":
		return KindNotes
	default:
		return KindOther
	}
}

// Condition is one rule condition. Value is schema-less on the wire: a string
// id, a number, or a structured recurrence descriptor for date conditions.
type Condition struct {
	Op      string         `json:"op"`
	Field   string         `json:"field"`
	Value   any            `json:"value"`
	Options map[string]any `json:"options,omitempty"`
}

// Kind returns the closed-set classification of the condition's field.
func (c Condition) Kind() FieldKind {
	return KindOf(c.Field)
}

// Action is one rule action. The "link-schedule" op carries the owning
// schedule id in Value; "set" ops carry a field and value.
type Action struct {
	Op      string         `json:"op"`
	Field   string         `json:"field,omitempty"`
	Value   any            `json:"value"`
	Options map[string]any `json:"options,omitempty"`
}

// Kind returns the closed-set classification of the action's field.
func (a Action) Kind() FieldKind {
	return KindOf(a.Field)
}

// OpLinkSchedule is the action op that ties a rule back to its schedule.
const OpLinkSchedule = "link-schedule"

// Rule is a persisted condition/action rule. Conditions and actions are stored
// as JSON text columns and decoded on read.
type Rule struct {
	ID           string      `json:"id"`
	Stage        string      `json:"stage"`
	ConditionsOp string      `json:"conditionsOp"`
	Conditions   []Condition `json:"conditions"`
	Actions      []Action    `json:"actions"`
	Tombstone    bool        `json:"tombstone"`
}
