// README: Shared identifier and coordinate value types used across modules.
package types

// ID is a document identifier in either store.
type ID string

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}
