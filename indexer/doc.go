// Package indexer derives index keys from atoms and keeps the indexes of a
// store environment in step with the atoms they describe.
//
// An Indexer is identified by its Descriptor: two indexers with equal
// descriptors derive the same keys. The Manager attaches each registered
// indexer to one index database, named after the descriptor, and records
// the descriptors in a JSON manifest so tools can find the indexes later.
package indexer
