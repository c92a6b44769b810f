// Package index provides the exact nearest-neighbor index used to retrieve
// candidates for a query.
//
// The Flat index scans every stored vector and ranks them by squared
// Euclidean distance. Results are deterministic: equal distances are ordered
// by ascending pool row, so repeated searches with a growing k always return
// consistent prefixes.
package index
