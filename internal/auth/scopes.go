package auth

// Known OAuth scopes.
const (
	ScopeStepsWrite  = "steps:write"
	ScopeStepsRead   = "steps:read"
	ScopeCausesWrite = "causes:write"
)
