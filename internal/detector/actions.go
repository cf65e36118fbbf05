package detector

import "sort"

// Action types.
const (
	ActionSaveForLater      = "save_for_later"
	ActionLookupCase        = "lookup_case"
	ActionCreateRelatedCase = "create_related_case"
	ActionCreateCase        = "create_case"
	ActionAnalyzeLogs       = "analyze_logs"
	ActionExtractLinkInfo   = "extract_link_info"
	ActionProcessImage      = "process_image"
)

// suggestActions builds the ranked action list: content-specific actions
// first, then the always-present save action, ordered by confidence.
func suggestActions(contentType ContentType, analysisConfidence float64) []Action {
	var actions []Action
	switch contentType {
	case TypeCaseNumber:
		actions = append(actions,
			Action{Type: ActionLookupCase, Label: "Look up case", Confidence: 0.95},
			Action{Type: ActionCreateRelatedCase, Label: "Create related case", Confidence: 0.7},
		)
	case TypeSupportRequest:
		actions = append(actions, Action{Type: ActionCreateCase, Label: "Create case", Confidence: analysisConfidence})
	case TypeMixedContent:
		actions = append(actions, Action{Type: ActionCreateCase, Label: "Create case", Confidence: analysisConfidence * 0.9})
	case TypeConsoleLog:
		actions = append(actions, Action{Type: ActionAnalyzeLogs, Label: "Analyze logs", Confidence: 0.9})
	case TypeURLLink:
		actions = append(actions, Action{Type: ActionExtractLinkInfo, Label: "Extract link info", Confidence: 0.9})
	case TypeImage:
		actions = append(actions, Action{Type: ActionProcessImage, Label: "Process image", Confidence: 0.95})
	}
	actions = append(actions, Action{Type: ActionSaveForLater, Label: "Save for later", Confidence: 1.0})
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Confidence > actions[j].Confidence
	})
	return actions
}
