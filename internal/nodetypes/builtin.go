package nodetypes

import "github.com/soochol/flowdeck/internal/flowdeck"

// ToolNameField is the system-tool property whose options come from the tool catalog.
const ToolNameField = "toolName"

var (
	inPort  = flowdeck.Port{ID: "input", Label: "Input", Direction: flowdeck.PortInput}
	outPort = flowdeck.Port{ID: "output", Label: "Output", Direction: flowdeck.PortOutput}
)

func labelProperty(def string) flowdeck.PropertySchema {
	return flowdeck.PropertySchema{Name: "label", Label: "Label", Kind: flowdeck.KindText, DefaultValue: def}
}

func options(pairs ...string) []flowdeck.PropertyOption {
	out := make([]flowdeck.PropertyOption, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, flowdeck.PropertyOption{Label: pairs[i], Value: pairs[i+1]})
	}
	return out
}

var httpMethods = options("GET", "GET", "POST", "POST", "PUT", "PUT", "PATCH", "PATCH", "DELETE", "DELETE")

// builtins returns the static node catalog in palette order.
func builtins() []flowdeck.NodeDefinition {
	return []flowdeck.NodeDefinition{
		{
			Type:     flowdeck.NodeTypeTrigger,
			Label:    "Trigger",
			Category: flowdeck.CategoryTrigger,
			DefaultData: map[string]any{
				"label":               "Trigger",
				flowdeck.SubTypeField: "manual",
			},
			Ports: []flowdeck.Port{outPort},
			Properties: []flowdeck.PropertySchema{
				labelProperty("Trigger"),
				{Name: flowdeck.SubTypeField, Label: "Trigger type", Kind: flowdeck.KindSelect,
					Options:      options("Manual", "manual", "Webhook", "webhook", "Schedule (cron)", "cron"),
					DefaultValue: "manual"},
				{Name: "cron", Label: "Cron expression", Kind: flowdeck.KindText, Placeholder: "0 9 * * 1-5",
					HelperText: "Five fields, or six with seconds"},
				{Name: "method", Label: "HTTP method", Kind: flowdeck.KindSelect, Options: httpMethods, DefaultValue: "POST"},
				{Name: "path", Label: "Webhook path", Kind: flowdeck.KindText, Placeholder: "/hooks/my-flow"},
			},
		},
		{
			Type:     flowdeck.NodeTypeAIAgent,
			Label:    "AI Agent",
			Category: flowdeck.CategoryAI,
			DefaultData: map[string]any{
				"label":       "AI Agent",
				"model":       "gpt-4o-mini",
				"temperature": 0.7,
			},
			Ports: []flowdeck.Port{inPort, outPort},
			Properties: []flowdeck.PropertySchema{
				labelProperty("AI Agent"),
				{Name: "model", Label: "Model", Kind: flowdeck.KindSelect,
					Options:      options("GPT-4o mini", "gpt-4o-mini", "GPT-4o", "gpt-4o", "Claude Sonnet", "claude-sonnet"),
					DefaultValue: "gpt-4o-mini"},
				{Name: "systemPrompt", Label: "System prompt", Kind: flowdeck.KindTextarea, Placeholder: "You are a helpful assistant..."},
				{Name: "prompt", Label: "Prompt", Kind: flowdeck.KindTextarea, Placeholder: "Summarize {{input}}"},
				{Name: "temperature", Label: "Temperature", Kind: flowdeck.KindNumber, DefaultValue: 0.7},
			},
		},
		{
			Type:     flowdeck.NodeTypeAction,
			Label:    "Action",
			Category: flowdeck.CategoryAction,
			DefaultData: map[string]any{
				"label":               "Action",
				flowdeck.SubTypeField: "http",
				"method":              "GET",
			},
			Ports: []flowdeck.Port{inPort, outPort},
			Properties: []flowdeck.PropertySchema{
				labelProperty("Action"),
				{Name: flowdeck.SubTypeField, Label: "Action type", Kind: flowdeck.KindSelect,
					Options: options("HTTP request", "http", "Finance entry", "finance"), DefaultValue: "http"},
				{Name: "url", Label: "URL", Kind: flowdeck.KindText, Placeholder: "https://api.example.com"},
				{Name: "method", Label: "Method", Kind: flowdeck.KindSelect, Options: httpMethods, DefaultValue: "GET"},
				{Name: "headers", Label: "Headers", Kind: flowdeck.KindJSON, Placeholder: `{"Authorization": "Bearer ..."}`},
				{Name: "body", Label: "Body", Kind: flowdeck.KindJSON},
				{Name: "amount", Label: "Amount", Kind: flowdeck.KindNumber},
				{Name: "financeCategory", Label: "Category", Kind: flowdeck.KindSelect,
					Options: options("Income", "income", "Expense", "expense", "Transfer", "transfer")},
			},
		},
		{
			Type:     flowdeck.NodeTypeLogic,
			Label:    "Logic",
			Category: flowdeck.CategoryLogic,
			DefaultData: map[string]any{
				"label":               "Condition",
				flowdeck.SubTypeField: "if",
			},
			Ports: []flowdeck.Port{
				inPort,
				{ID: "true", Label: "True", Direction: flowdeck.PortOutput},
				{ID: "false", Label: "False", Direction: flowdeck.PortOutput},
			},
			Properties: []flowdeck.PropertySchema{
				labelProperty("Condition"),
				{Name: flowdeck.SubTypeField, Label: "Logic type", Kind: flowdeck.KindSelect,
					Options: options("If / else", "if", "Code", "code"), DefaultValue: "if"},
				{Name: "expression", Label: "Condition", Kind: flowdeck.KindText, Placeholder: `input.status == "ok"`},
				{Name: "code", Label: "Code", Kind: flowdeck.KindCode, Placeholder: "return input;"},
			},
		},
		{
			Type:     flowdeck.NodeTypeSystemTool,
			Label:    "System Tool",
			Category: flowdeck.CategoryUtility,
			DefaultData: map[string]any{
				"label": "Tool",
			},
			Ports: []flowdeck.Port{inPort, outPort},
			Properties: []flowdeck.PropertySchema{
				labelProperty("Tool"),
				{Name: ToolNameField, Label: "Tool", Kind: flowdeck.KindSelect, HelperText: "Loaded from the executor's tool catalog"},
			},
		},
	}
}
