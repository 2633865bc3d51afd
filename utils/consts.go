package utils

// Key constants used throughout the application for context storage
const (
	// KeyStorage is the gin context key under which handlers find the storage.
	KeyStorage = "storage"
	// KeyUsername is the gin context key for the authenticated user's name.
	KeyUsername = "username"
)
