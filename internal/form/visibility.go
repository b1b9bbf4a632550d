package form

import "github.com/soochol/flowdeck/internal/flowdeck"

type visibilityKey struct {
	nodeType flowdeck.NodeType
	subType  string
}

// hiddenFields lists, per (type, subType), the properties irrelevant to that
// sub-type. Types or sub-types missing from the table hide nothing.
var hiddenFields = map[visibilityKey]map[string]bool{
	{flowdeck.NodeTypeTrigger, "manual"}:  set("cron", "method", "path"),
	{flowdeck.NodeTypeTrigger, "webhook"}: set("cron"),
	{flowdeck.NodeTypeTrigger, "cron"}:    set("method", "path"),
	{flowdeck.NodeTypeAction, "http"}:     set("amount", "financeCategory"),
	{flowdeck.NodeTypeAction, "finance"}:  set("url", "method", "headers", "body"),
	{flowdeck.NodeTypeLogic, "if"}:        set("code"),
	{flowdeck.NodeTypeLogic, "code"}:      set("expression"),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Hidden reports whether field is hidden for the given type and sub-type.
func Hidden(t flowdeck.NodeType, subType, field string) bool {
	return hiddenFields[visibilityKey{t, subType}][field]
}

// HiddenSet returns a copy of the hidden field names for (t, subType).
func HiddenSet(t flowdeck.NodeType, subType string) []string {
	var out []string
	for name := range hiddenFields[visibilityKey{t, subType}] {
		out = append(out, name)
	}
	return out
}
