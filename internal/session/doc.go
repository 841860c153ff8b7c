// Package session keeps per-user dialog state.
// Each user identity has exactly one Session holding its current State and
// the pending context of an unfinished conversation. Access goes through
// Manager.Do, which serializes work on one session while other users'
// sessions proceed independently.
package session
