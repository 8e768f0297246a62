// Package record defines the data model shared by every pipeline stage.
//
// A RawRecord is what the source returned for one EntityKey. A Fetched value
// groups a parent RawRecord with the child records found under it (job
// postings under a company). A UnifiedRecord is the reconciled join of a child
// with its parent and is what gets loaded into the destination store.
package record
