package auth

// Scopes understood by the API.
const (
	ScopeActivitiesRead = "activities:read"
	ScopeActivitiesSync = "activities:sync"
)
