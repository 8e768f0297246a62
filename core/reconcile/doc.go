// Package reconcile joins child records to their parents and normalizes the
// merged fields.
//
// # Join
//
// Parents are indexed by key once. Each child names its parent through a
// foreign-key field. The merged record is the union of both field sets and
// the child's value wins when both define a field. A child whose parent is
// missing is still emitted, with every known parent field present as null,
// and a Warning is recorded.
//
// # Duplicates
//
// When the same child key appears more than once, the copy with the latest
// FetchedAt is kept at the position of the first occurrence.
//
// # Normalization
//
// Rules run on every merged record after the join. The default rules turn
// the free-text experience and salary phrases into numbers:
//
//	minExperience "Any (new grads ok)" -> "0"
//	minExperience "6+ years"           -> "6"   (experience_years = "6")
//	salaryRange   "$100K - $165K"      -> salary_min "100", salary_max "165"
//
// Absent data stays absent or empty; no value is inferred.
//
// # Output order
//
// Output follows the order of the children as given.
package reconcile
