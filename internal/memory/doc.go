// Package memory is the raw-memory boundary: the Access port, big-endian
// scalar readers, a sparse in-memory Image, file dumps and the guarded
// debug Poker.
//
// Nothing in this package interprets the bytes it moves.
package memory
