// Package memory implements the long-term fact store backing chat
// sessions. Facts are remembered per user and retrieved with a hybrid
// of vector similarity (sqlite-vec) and FTS5 keyword search. Without
// an embedding provider the store degrades to keyword-only retrieval.
package memory
