package auth

// Scopes understood by the directory API.
const (
	ScopeDirectoryRead  = "directory:read"
	ScopeDirectoryWrite = "directory:write"
)

// DefaultScopes are granted by the token endpoint.
var DefaultScopes = []string{ScopeDirectoryRead, ScopeDirectoryWrite}
