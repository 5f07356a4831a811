package models

type DocumentType string

const (
	DocumentTypeBalanceSheet      DocumentType = "BalanceSheet"
	DocumentTypeIncomeStatement   DocumentType = "IncomeStatement"
	DocumentTypeCashFlow          DocumentType = "CashFlow"
	DocumentTypeRentRoll          DocumentType = "RentRoll"
	DocumentTypeMortgageStatement DocumentType = "MortgageStatement"
)

var AllDocumentTypes = []DocumentType{
	DocumentTypeBalanceSheet,
	DocumentTypeIncomeStatement,
	DocumentTypeCashFlow,
	DocumentTypeRentRoll,
	DocumentTypeMortgageStatement,
}

func (t DocumentType) IsValid() bool {
	for _, dt := range AllDocumentTypes {
		if t == dt {
			return true
		}
	}
	return false
}

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

type MatchStrategy string

const (
	MatchStrategyExact      MatchStrategy = "exact"
	MatchStrategyCalculated MatchStrategy = "calculated"
	MatchStrategyFuzzy      MatchStrategy = "fuzzy"
	MatchStrategyInferred   MatchStrategy = "inferred"
)

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusApproved   MatchStatus = "approved"
	MatchStatusRejected   MatchStatus = "rejected"
	MatchStatusAutoClosed MatchStatus = "auto_closed"
)

type RiskClass string

const (
	RiskClassCritical RiskClass = "critical"
	RiskClassHigh     RiskClass = "high"
	RiskClassMedium   RiskClass = "medium"
	RiskClassLow      RiskClass = "low"
)

func (r RiskClass) IsValid() bool {
	switch r {
	case RiskClassCritical, RiskClassHigh, RiskClassMedium, RiskClassLow:
		return true
	}
	return false
}

// Escalation tiers assigned during exception triage.
const (
	TierAutoClose   = 0 // closed without human action
	TierAutoSuggest = 1 // suggested fix attached, pending
	TierRoute       = 2 // standard review queue
	TierEscalate    = 3 // high priority review
)

type AutoResolutionAction string

const (
	AutoResolutionActionClose   AutoResolutionAction = "auto_close"
	AutoResolutionActionSuggest AutoResolutionAction = "auto_suggest"
)

type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
)
