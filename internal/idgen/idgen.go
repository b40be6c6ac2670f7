// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Boot sessions and trace resources are tagged with these identifiers;
// callers treat them as opaque strings.
package idgen

import "github.com/google/uuid"

// NewFunc produces identifiers. Tests replace it to get stable output.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }

// Short returns the first eight characters of a new identifier, used as the
// boot session tag in console banners.
func Short() string {
	id := New()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
