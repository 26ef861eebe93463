// Package filter coordinates predicate-restricted nearest neighbor searches.
//
// A Coordinator first tries the approximate graph search with the predicate
// applied at admission time. When fewer than k accepted results come back it
// widens the beam by a fixed factor for a bounded number of rounds, and it
// switches to an exact scan of the accepted IDs when the predicate is too
// selective for graph traversal to be worthwhile or the rounds run out.
//
// Starvation is never an error: the Status of a Result tells whether the
// result is complete, whether fewer than k matches exist, or whether the
// round or time budget ran out first.
package filter
