package gemini

import "github.com/google/generative-ai-go/genai"

func str() *genai.Schema    { return &genai.Schema{Type: genai.TypeString} }
func number() *genai.Schema { return &genai.Schema{Type: genai.TypeNumber} }

func arrayOf(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

// ReportSchema is the response schema shared by chunk and merge requests.
func ReportSchema() *genai.Schema {
	biggestMove := object(map[string]*genai.Schema{
		"sku_channel":        str(),
		"percent_change_mom": number(),
		"direction":          str(),
		"likely_drivers":     arrayOf(str()),
		"explanation":        str(),
		"planner_action":     str(),
	}, "sku_channel", "percent_change_mom", "direction", "likely_drivers", "explanation", "planner_action")

	steadyTrend := object(map[string]*genai.Schema{
		"sku_channel":    str(),
		"cagr_6p":        number(),
		"trend":          str(),
		"likely_drivers": arrayOf(str()),
		"explanation":    str(),
		"planner_action": str(),
	}, "sku_channel", "cagr_6p", "trend", "likely_drivers", "explanation", "planner_action")

	anomaly := object(map[string]*genai.Schema{
		"sku_channel":    str(),
		"pattern":        str(),
		"possible_cause": str(),
		"explanation":    str(),
		"planner_action": str(),
	}, "sku_channel", "pattern", "possible_cause", "explanation", "planner_action")

	return object(map[string]*genai.Schema{
		"biggest_moves":        arrayOf(biggestMove),
		"steady_trends":        arrayOf(steadyTrend),
		"historical_anomalies": arrayOf(anomaly),
	}, "biggest_moves", "steady_trends", "historical_anomalies")
}

// SKUGroupSchema is the smaller per-group summary schema.
func SKUGroupSchema() *genai.Schema {
	insight := object(map[string]*genai.Schema{
		"trend":       str(),
		"explanation": str(),
	}, "trend", "explanation")

	return object(map[string]*genai.Schema{
		"skuGroup": str(),
		"insights": arrayOf(insight),
	}, "skuGroup", "insights")
}
