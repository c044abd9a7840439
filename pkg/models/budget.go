package models

// BudgetScope defines what a budget policy is measured against.
type BudgetScope string

const (
	BudgetRun     BudgetScope = "run"
	BudgetChapter BudgetScope = "chapter"
)

// BudgetPolicy caps tokens and/or cost for a run or for each chapter.
// A zero limit is not enforced.
type BudgetPolicy struct {
	Scope     BudgetScope `json:"scope" yaml:"scope"`
	MaxTokens int64       `json:"max_tokens,omitempty" yaml:"max_tokens"`
	MaxCost   float64     `json:"max_cost,omitempty" yaml:"max_cost"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy          BudgetPolicy `json:"policy"`
	Subject         string       `json:"subject"`
	UsedTokens      int64        `json:"used_tokens"`
	UsedCost        float64      `json:"used_cost"`
	RemainingTokens int64        `json:"remaining_tokens"`
	RemainingCost   float64      `json:"remaining_cost"`
}
