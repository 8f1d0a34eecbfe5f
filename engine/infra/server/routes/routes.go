package routes

import "fmt"

// APIVersion is the version segment of every API route.
const APIVersion = "v0"

// Base returns the versioned API base path (e.g., "/api/v0").
func Base() string {
	return fmt.Sprintf("/api/%s", APIVersion)
}

// Chat returns the conversation endpoint path.
func Chat() string {
	return Base() + "/chat"
}

// Transcribe returns the audio transcription endpoint path.
func Transcribe() string {
	return Base() + "/transcribe"
}

// Health returns the liveness endpoint path.
func Health() string {
	return "/healthz"
}
