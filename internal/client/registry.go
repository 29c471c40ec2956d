package client

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
)

// The process-wide session registry: one shared, reference-counted HTTP
// session per distinct (base_url, retry_policy) pair. Sessions open lazily
// on the first reference and tear down when the count returns to zero, so
// nested handles never close a session a sibling still uses.
var (
	sessionsMu sync.Mutex
	sessions   = make(map[string]*session)
)

type session struct {
	httpClient *http.Client
	refs       int
}

// sessionKey fingerprints the policy so that equal configurations share one
// session and different ones never collide.
func sessionKey(baseURL string, policy RetryPolicy) string {
	data, _ := json.Marshal(policy)
	sum := sha256.Sum256(data)
	return baseURL + "|" + hex.EncodeToString(sum[:])
}

// acquireSession increments the reference count for key, opening the session
// on the first reference.
func acquireSession(key string) *session {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s, ok := sessions[key]
	if !ok {
		s = &session{httpClient: &http.Client{}}
		sessions[key] = s
	}
	s.refs++
	return s
}

// releaseSession decrements the reference count for key, tearing the session
// down when it reaches zero.
func releaseSession(key string) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s, ok := sessions[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		s.httpClient.CloseIdleConnections()
		delete(sessions, key)
	}
}

// sessionRefs reports the current reference count for key.
func sessionRefs(key string) int {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	if s, ok := sessions[key]; ok {
		return s.refs
	}
	return 0
}
