package flowdeck

// ToolInfo describes one tool in the executor's catalog. Parameters map a
// parameter name to a free-form type string such as "string (optional)".
type ToolInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// ToolCatalogResponse is the wire shape of GET /tools.
type ToolCatalogResponse struct {
	Success bool       `json:"success"`
	Tools   []ToolInfo `json:"tools"`
}

// FindTool returns the named tool from a catalog.
func FindTool(catalog []ToolInfo, name string) (ToolInfo, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return ToolInfo{}, false
}
