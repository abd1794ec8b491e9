package types

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomIdentity names a room by its department and semester.
// Two identities are equal iff both fields are equal.
type RoomIdentity struct {
	Department string `json:"department"`
	Semester   int    `json:"semester"`
}

// NewRoomIdentity builds a RoomIdentity, trimming the department.
func NewRoomIdentity(department string, semester int) RoomIdentity {
	return RoomIdentity{Department: strings.TrimSpace(department), Semester: semester}
}

// Key returns the composite room key used on the wire.
func (r RoomIdentity) Key() string {
	return fmt.Sprintf("%s_%d", r.Department, r.Semester)
}

// IsZero reports whether the identity is unset.
func (r RoomIdentity) IsZero() bool {
	return r.Department == "" && r.Semester == 0
}

// Validate checks that both parts of the identity are usable.
func (r RoomIdentity) Validate() error {
	if r.Department == "" {
		return fmt.Errorf("room: department is required")
	}
	if r.Semester <= 0 {
		return fmt.Errorf("room: semester must be positive, got %d", r.Semester)
	}
	return nil
}

func (r RoomIdentity) String() string { return r.Key() }

// ParseRoomKey reverses Key. The semester is taken after the last
// underscore so departments containing underscores still parse.
func ParseRoomKey(key string) (RoomIdentity, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return RoomIdentity{}, fmt.Errorf("room: malformed key %q", key)
	}
	sem, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return RoomIdentity{}, fmt.Errorf("room: malformed semester in key %q: %w", key, err)
	}
	return RoomIdentity{Department: key[:i], Semester: sem}, nil
}
