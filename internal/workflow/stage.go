package workflow

// Stage is one named step in an item's workflow. The constants are declared
// in pipeline order; the state machine only ever moves an item forward
// through this ordering, with hitl_approval as the single wait state.
type Stage int

const (
	StageAnalysis Stage = iota
	StageSkillExecution
	StageHITLApproval
	StageMCPExecution
	StageAuditLogging
	StageCompletion
)

var stageNames = map[Stage]string{
	StageAnalysis:       "analysis",
	StageSkillExecution: "skill_execution",
	StageHITLApproval:   "hitl_approval",
	StageMCPExecution:   "mcp_execution",
	StageAuditLogging:   "audit_logging",
	StageCompletion:     "completion",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStage maps a stage name back to its Stage. Unknown names report
// ok=false so callers can fall back rather than guess.
func ParseStage(name string) (Stage, bool) {
	for s, n := range stageNames {
		if n == name {
			return s, true
		}
	}
	return StageAnalysis, false
}

// AllStages returns the full pipeline ordering.
func AllStages() []Stage {
	return []Stage{
		StageAnalysis,
		StageSkillExecution,
		StageHITLApproval,
		StageMCPExecution,
		StageAuditLogging,
		StageCompletion,
	}
}
