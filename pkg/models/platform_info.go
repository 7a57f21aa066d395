package models

// PlatformInfo is the static catalog description of a backend kind.
type PlatformInfo struct {
	Kind            PlatformKind `json:"kind"`
	Name            string       `json:"name"`
	Type            string       `json:"type"`
	Description     string       `json:"description"`
	Dialect         string       `json:"dialect"`
	UseCases        []string     `json:"use_cases"`
	Features        []string     `json:"features"`
	CommonFunctions []string     `json:"common_functions"`
	BestPractices   []string     `json:"best_practices"`
}

// ExampleQuery is a canned query shown to tool callers.
type ExampleQuery struct {
	Description string `json:"description"`
	Query       string `json:"query"`
}
