package trigger

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"go.uber.org/zap"
)

const keywordTriggerSuffix = "_keyword_detected"
const excerptLimit = 200

// keywordCategories maps a category name to the keywords that activate it.
// A match emits "<category>_keyword_detected".
var keywordCategories = map[string][]string{
	"urgent":       {"urgent", "asap", "emergency", "immediately", "critical"},
	"complaint":    {"complaint", "disappointed", "unacceptable", "terrible", "awful", "worst"},
	"cancellation": {"cancel", "refund", "unsubscribe", "terminate"},
	"competitor":   {"competitor", "switching to", "alternative"},
	"praise":       {"excellent", "amazing", "love", "fantastic", "wonderful"},
	"bug":          {"bug", "error", "broken", "crash", "glitch", "not working"},
}

var scoreFieldPatterns = []string{"nps", "csat", "ces", "rating", "satisfaction"}

// WorkflowRunner is the orchestrator entry point the classifier fans out to.
type WorkflowRunner interface {
	ExecuteTriggeredWorkflows(ctx context.Context, triggerEvent string, triggerData map[string]any, tenantId string) ([]string, error)
}

// Classifier inspects completed submissions and derives semantic trigger
// events (scores, keywords, sentiment) on top of the unconditional
// submission_completed baseline.
type Classifier struct {
	runner WorkflowRunner
}

func NewClassifier(runner WorkflowRunner) *Classifier {
	return &Classifier{runner: runner}
}

// AnalyzeAndTrigger derives all trigger events for the submission and
// dispatches each one's workflows concurrently. Failures are swallowed:
// trigger automation must never block the submission pipeline.
func (c *Classifier) AnalyzeAndTrigger(ctx context.Context, submission *model.Submission, formId string, tenantId string) []string {
	triggers := c.Classify(submission, formId)

	var wg sync.WaitGroup
	for _, trig := range triggers {
		trig := trig
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.runner.ExecuteTriggeredWorkflows(ctx, trig.Type, trig.Data, tenantId); err != nil {
				logger.Warn("trigger dispatch failed",
					zap.String("trigger", trig.Type), zap.String("submission", submission.Id), zap.Error(err))
			}
		}()
	}
	wg.Wait()

	types := make([]string, len(triggers))
	for i, trig := range triggers {
		types[i] = trig.Type
	}
	return types
}

// Classify derives the trigger list without dispatching anything.
func (c *Classifier) Classify(submission *model.Submission, formId string) []model.DetectedTrigger {
	if submission == nil {
		return nil
	}
	base := map[string]any{"formId": formId, "submissionId": submission.Id}
	for k, v := range submission.Data {
		base[k] = v
	}

	triggers := []model.DetectedTrigger{{Type: model.TRIGGER_SUBMISSION_COMPLETED, Data: base}}
	triggers = append(triggers, classifyScores(submission.Data, base)...)
	triggers = append(triggers, classifyKeywords(submission.Data, base)...)
	triggers = append(triggers, classifySentiment(submission.Sentiment, base)...)
	return triggers
}

func classifyScores(data map[string]any, base map[string]any) []model.DetectedTrigger {
	var triggers []model.DetectedTrigger
	for field, value := range data {
		score, ok := toNumber(value)
		if !ok {
			continue
		}
		scoreType, ok := scoreFieldType(field)
		if !ok {
			continue
		}
		triggerType := scoreTrigger(scoreType, score)
		if triggerType == "" {
			continue
		}
		triggers = append(triggers, model.DetectedTrigger{
			Type: triggerType,
			Data: withDetection(base, map[string]any{
				"field": field, "score": score, "scoreType": scoreType,
			}),
		})
	}
	return triggers
}

func scoreFieldType(field string) (string, bool) {
	name := strings.ToLower(field)
	for _, pattern := range scoreFieldPatterns {
		if strings.Contains(name, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func scoreTrigger(scoreType string, score float64) string {
	switch scoreType {
	case "nps":
		if score <= 6 {
			return model.TRIGGER_NPS_DETRACTOR
		}
		if score >= 9 {
			return model.TRIGGER_NPS_PROMOTER
		}
	case "ces":
		if score <= 3 {
			return model.TRIGGER_LOW_SCORE
		}
		if score >= 6 {
			return model.TRIGGER_HIGH_SCORE
		}
	default:
		if score <= 3 {
			return model.TRIGGER_LOW_SCORE
		}
		if score >= 4 {
			return model.TRIGGER_HIGH_SCORE
		}
	}
	return ""
}

func classifyKeywords(data map[string]any, base map[string]any) []model.DetectedTrigger {
	matched := make(map[string][]string)
	excerpts := make(map[string]string)
	for _, value := range data {
		text, ok := value.(string)
		if !ok || len(text) < 3 {
			continue
		}
		lower := strings.ToLower(text)
		for category, keywords := range keywordCategories {
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					matched[category] = append(matched[category], keyword)
					if _, ok := excerpts[category]; !ok {
						excerpts[category] = excerpt(text)
					}
				}
			}
		}
	}

	var triggers []model.DetectedTrigger
	for category, keywords := range matched {
		triggers = append(triggers, model.DetectedTrigger{
			Type: category + keywordTriggerSuffix,
			Data: withDetection(base, map[string]any{
				"category": category, "keywords": keywords, "excerpt": excerpts[category],
			}),
		})
	}
	return triggers
}

func classifySentiment(sentiment *model.Sentiment, base map[string]any) []model.DetectedTrigger {
	if sentiment == nil {
		return nil
	}
	detection := map[string]any{
		"overall":         sentiment.Overall,
		"dominantEmotion": dominantEmotion(sentiment.Emotions),
	}

	var triggers []model.DetectedTrigger
	if sentiment.Overall <= -0.5 {
		triggers = append(triggers, model.DetectedTrigger{
			Type: model.TRIGGER_NEGATIVE_SENTIMENT, Data: withDetection(base, detection),
		})
	} else if sentiment.Overall >= 0.5 {
		triggers = append(triggers, model.DetectedTrigger{
			Type: model.TRIGGER_POSITIVE_SENTIMENT, Data: withDetection(base, detection),
		})
	}
	if sentiment.Emotions["frustrated"] > 0.6 || sentiment.Emotions["angry"] > 0.6 {
		triggers = append(triggers, model.DetectedTrigger{
			Type: model.TRIGGER_FRUSTRATED, Data: withDetection(base, detection),
		})
	}
	if sentiment.Emotions["happy"] > 0.7 || sentiment.Emotions["satisfied"] > 0.7 {
		triggers = append(triggers, model.DetectedTrigger{
			Type: model.TRIGGER_DELIGHTED, Data: withDetection(base, detection),
		})
	}
	return triggers
}

func dominantEmotion(emotions map[string]float64) string {
	dominant := ""
	best := -1.0
	for emotion, score := range emotions {
		if score > best {
			dominant = emotion
			best = score
		}
	}
	return dominant
}

func withDetection(base map[string]any, detection map[string]any) map[string]any {
	data := make(map[string]any, len(base)+1)
	for k, v := range base {
		data[k] = v
	}
	data["detection"] = detection
	return data
}

func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	return text[:excerptLimit]
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
