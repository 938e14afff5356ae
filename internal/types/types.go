// README: Common identifier and coordinate value objects used across modules.
package types

// ID is a Firestore document identifier.
type ID string

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// IsZero reports whether the point is the zero value. Fields that must
// treat (0,0) as a real coordinate carry *Point and check for nil instead.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}
