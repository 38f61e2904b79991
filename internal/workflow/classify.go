package workflow

import (
	"strings"

	"github.com/aristath/clerk/internal/queue"
)

// Task types produced by classification. The set is open: an explicit
// metadata type passes through verbatim, so anything can show up.
const (
	TypeFacebookInstagramLead = "facebook_instagram_lead"
	TypeTwitterLead           = "twitter_lead"
	TypeLinkedInLead          = "linkedin_lead"
	TypeSocialMediaLead       = "social_media_lead"
	TypeFinancialTask         = "financial_task"
	TypeScheduleTask          = "schedule_task"
	TypeGeneralTask           = "general_task"
	TypeError                 = "error"
)

// Classification is the analysis result for one item: what kind of task it
// is, whether it needs the full multi-step pipeline, and the ordered stages
// it is expected to pass through.
type Classification struct {
	TaskType  string
	MultiStep bool
	Stages    []Stage
}

// multiStepTypes require a HITL checkpoint before any downstream execution.
var multiStepTypes = map[string]bool{
	TypeFacebookInstagramLead: true,
	TypeTwitterLead:           true,
	TypeLinkedInLead:          true,
	TypeSocialMediaLead:       true,
	"email_response_required": true,
}

// Classify determines an item's task type, multi-step flag and workflow
// from its content and metadata. An explicit metadata type always wins over
// content inference.
func Classify(content string, meta queue.Metadata) Classification {
	taskType := determineTaskType(strings.ToLower(content), meta)
	return Classification{
		TaskType:  taskType,
		MultiStep: IsMultiStep(taskType),
		Stages:    StagesFor(taskType),
	}
}

// ErrorClassification is the degenerate result for unreadable or unparseable
// items: a completion-only workflow that drains the file instead of stalling
// the loop.
func ErrorClassification() Classification {
	return Classification{
		TaskType:  TypeError,
		MultiStep: false,
		Stages:    []Stage{StageCompletion},
	}
}

// determineTaskType applies the classification rules in fixed priority
// order; only the first matching rule counts.
func determineTaskType(content string, meta queue.Metadata) string {
	if meta.Type != "" {
		return meta.Type
	}

	switch {
	case containsAny(content, "sales", "client", "project"):
		switch {
		case strings.Contains(content, "facebook"), strings.Contains(content, "instagram"):
			return TypeFacebookInstagramLead
		case strings.Contains(content, "twitter"):
			return TypeTwitterLead
		case strings.Contains(content, "linkedin"):
			return TypeLinkedInLead
		default:
			return TypeSocialMediaLead
		}
	case containsAny(content, "urgent", "invoice", "payment"):
		return TypeFinancialTask
	case containsAny(content, "meeting", "schedule", "calendar"):
		return TypeScheduleTask
	default:
		return TypeGeneralTask
	}
}

// IsMultiStep reports whether a task type needs the multi-step pipeline.
func IsMultiStep(taskType string) bool {
	return multiStepTypes[taskType]
}

// StagesFor derives the workflow for a task type. Lead and social types get
// the full six-stage pipeline; financial and schedule tasks get trimmed
// three-stage variants; everything else is analyze-and-archive.
func StagesFor(taskType string) []Stage {
	switch {
	case taskType == TypeError:
		return []Stage{StageCompletion}
	case strings.Contains(taskType, "lead"), strings.Contains(taskType, "social"):
		return AllStages()
	case strings.Contains(taskType, "financial"):
		return []Stage{StageAnalysis, StageSkillExecution, StageCompletion}
	case strings.Contains(taskType, "schedule"):
		return []Stage{StageAnalysis, StageMCPExecution, StageCompletion}
	default:
		return []Stage{StageAnalysis, StageCompletion}
	}
}

func containsAny(content string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}
