package model

// Trigger event types derived by the classifier. submission_completed is the
// unconditional baseline; the rest are emitted when the submission payload
// crosses the corresponding threshold.
const (
	TRIGGER_SUBMISSION_COMPLETED = "submission_completed"

	TRIGGER_NPS_DETRACTOR = "nps_detractor_detected"
	TRIGGER_NPS_PROMOTER  = "nps_promoter_detected"
	TRIGGER_LOW_SCORE     = "low_score_detected"
	TRIGGER_HIGH_SCORE    = "high_score_detected"

	TRIGGER_NEGATIVE_SENTIMENT = "negative_sentiment_detected"
	TRIGGER_POSITIVE_SENTIMENT = "positive_sentiment_detected"
	TRIGGER_FRUSTRATED         = "frustrated_customer_detected"
	TRIGGER_DELIGHTED          = "delighted_customer_detected"
)

// DetectedTrigger is one classifier finding: the trigger event type plus the
// payload handed to the workflows subscribed to it.
type DetectedTrigger struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Submission is the raw form submission the classifier inspects: a flat
// answer map plus an optional sentiment analysis payload.
type Submission struct {
	Id        string         `json:"id"`
	Data      map[string]any `json:"data"`
	Sentiment *Sentiment     `json:"sentiment,omitempty"`
}

// Sentiment carries the overall score in [-1, 1] and per-emotion scores in
// [0, 1] attached to a submission by the analysis pipeline.
type Sentiment struct {
	Overall  float64            `json:"overall"`
	Emotions map[string]float64 `json:"emotions,omitempty"`
}
