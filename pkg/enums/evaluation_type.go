package enums

// EvaluationType is what a student pays for on a submission.
type EvaluationType string

const (
	EvaluationTypeAI     EvaluationType = "ai"
	EvaluationTypeManual EvaluationType = "manual"
)

var evaluationTypes = members[EvaluationType]{EvaluationTypeAI, EvaluationTypeManual}

func (e EvaluationType) IsValid() bool { return evaluationTypes.has(e) }

// Label is the wording used in ledger descriptions.
func (e EvaluationType) Label() string {
	switch e {
	case EvaluationTypeAI:
		return "AI evaluation"
	case EvaluationTypeManual:
		return "Trainer evaluation"
	}
	return string(e)
}

// ParseEvaluationType ignores case and surrounding space.
func ParseEvaluationType(value string) (EvaluationType, error) {
	return evaluationTypes.parse("evaluation type", value, lower)
}
