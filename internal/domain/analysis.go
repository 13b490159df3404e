package domain

// NewsAnalysisResult is the user-facing summary of a completed news analysis.
type NewsAnalysisResult struct {
	Prediction string  `json:"prediction"`
	Success    bool    `json:"success"`
	Message    *string `json:"message,omitempty"`
}

// AnalysisError builds a failed result carrying msg.
func AnalysisError(msg string) NewsAnalysisResult {
	return NewsAnalysisResult{Success: false, Message: &msg}
}

// NewsAnalysisReport is the full body returned by the single-shot analysis
// endpoint. Only the fields projected by Result are required.
type NewsAnalysisReport struct {
	Summary          string  `json:"summary"`
	Prediction       string  `json:"prediction"`
	IndustryAnalysis string  `json:"industryAnalysis"`
	MarketTrend      string  `json:"marketTrend"`
	Success          *bool   `json:"success"`
	Message          *string `json:"message"`
}

// Result projects the report onto a NewsAnalysisResult. A missing success
// flag counts as success.
func (r NewsAnalysisReport) Result() NewsAnalysisResult {
	success := true
	if r.Success != nil {
		success = *r.Success
	}
	return NewsAnalysisResult{
		Prediction: r.Prediction,
		Success:    success,
		Message:    r.Message,
	}
}

// StreamAnalysisState accumulates the two text channels of a stream session.
type StreamAnalysisState struct {
	Reasoning string `json:"reasoning"`
	Content   string `json:"content"`
}
