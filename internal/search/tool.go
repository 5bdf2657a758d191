package search

// ToolDeclaration returns the function declaration attached to a chat
// session when the turn is tool-enabled.
func ToolDeclaration() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        ToolName,
			"description": "Search the web for current information and return a ranked list of findings.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query string.",
					},
					"count": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results to return (1-10). Default: 5.",
					},
					"language": map[string]any{
						"type":        "string",
						"description": "ISO 639-1 language code for results (e.g., 'en', 'pt').",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// ParseToolArgs extracts search options from a function call's
// arguments map. Missing query yields ok=false.
func ParseToolArgs(args map[string]any) (query string, opts Options, ok bool) {
	query, _ = args["query"].(string)
	if query == "" {
		return "", Options{}, false
	}
	if count, isNum := args["count"].(float64); isNum && count > 0 {
		opts.Count = int(count)
	}
	if lang, isStr := args["language"].(string); isStr {
		opts.Language = lang
	}
	return query, opts, true
}
