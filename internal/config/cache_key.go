package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionCredentialKey returns the cache key for a browser session's credential.
func (r *CacheKeyStruct) SessionCredentialKey(sid string) string {
	return fmt.Sprintf("session:%s:credential", sid)
}

// SessionUserKey returns the cache key for a browser session's user summary.
func (r *CacheKeyStruct) SessionUserKey(sid string) string {
	return fmt.Sprintf("session:%s:user", sid)
}

// KickedMarkerKey returns the durable lockout marker for an assignment within
// one browser session. Survives page reloads, dies with the session.
func (r *CacheKeyStruct) KickedMarkerKey(sid string, assignmentID int) string {
	return fmt.Sprintf("session:%s:assignment:%d:kicked", sid, assignmentID)
}

// SubmittedMarkerKey returns the marker recording that an assignment was
// already submitted in this browser session, keyed with the attempt type.
func (r *CacheKeyStruct) SubmittedMarkerKey(sid string, assignmentID int) string {
	return fmt.Sprintf("session:%s:assignment:%d:submitted", sid, assignmentID)
}

var CacheKey = NewCacheKeyStruct()
