package s3

import "time"

// Object is a single key found under a listed prefix. Identity is the key alone.
type Object struct {
	Key          string     `json:"key"`
	Size         int64      `json:"size"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// DeleteFailure is a per-key error reported by a batch delete call.
type DeleteFailure struct {
	Key     string `json:"key"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
