package enums

type SubmissionStatus string

const (
	SubmissionStatusSubmitted     SubmissionStatus = "submitted"
	SubmissionStatusPendingReview SubmissionStatus = "pending_review"
	SubmissionStatusAIQueued      SubmissionStatus = "ai_queued"
)

var submissionStatuses = members[SubmissionStatus]{
	SubmissionStatusSubmitted,
	SubmissionStatusPendingReview,
	SubmissionStatusAIQueued,
}

func (s SubmissionStatus) IsValid() bool { return submissionStatuses.has(s) }

// StatusForEvaluation is where a submission moves once its evaluation is paid.
func StatusForEvaluation(evaluationType EvaluationType) SubmissionStatus {
	if evaluationType == EvaluationTypeAI {
		return SubmissionStatusAIQueued
	}
	return SubmissionStatusPendingReview
}
