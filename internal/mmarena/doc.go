// Package mmarena provides the backing store for the simulated RAM arena.
//
// On unix systems the arena is an anonymous private mapping, so a large
// configured heap costs nothing until pages are touched. Elsewhere it falls
// back to a zeroed Go slice.
package mmarena
