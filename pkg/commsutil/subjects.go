package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDraw       = "autodraw.v1.draw"
	SubjectDispatched = "autodraw.dispatched"
	hostSubjectRoot   = "autodraw.host"
)

// BuildHostSubject builds the subject of one host bridge operation,
// e.g. autodraw.host.default.submit.
func BuildHostSubject(instance, op string) string {
	return fmt.Sprintf("%s.%s.%s", hostSubjectRoot, token(instance), op)
}

// BuildHostWildcard builds the subscription subject for every operation of one host.
func BuildHostWildcard(instance string) string {
	return fmt.Sprintf("%s.%s.*", hostSubjectRoot, token(instance))
}

// HostOpFromSubject returns the trailing operation of a host subject.
func HostOpFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}

// BuildDispatchedSubject builds a granular dispatch event subject.
func BuildDispatchedSubject(command string) string {
	return fmt.Sprintf("%s.%s", SubjectDispatched, token(command))
}

// token makes a value safe for a single subject token.
func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "default"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
