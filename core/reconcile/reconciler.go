package reconcile

import (
	"fmt"

	"listing-harvester/core/metrics"
	"listing-harvester/core/record"
	"listing-harvester/core/utils"

	"go.uber.org/zap"
)

// WarningKind classifies a Warning.
type WarningKind string

const (
	WarnMissingParent     WarningKind = "missing_parent"
	WarnNormalizationMiss WarningKind = "normalization_miss"
	WarnDuplicateChild    WarningKind = "duplicate_child"
)

// Warning is a non-fatal finding about one record. The record is still emitted.
type Warning struct {
	Key     record.EntityKey `json:"key"`
	Kind    WarningKind      `json:"kind"`
	Message string           `json:"message"`
}

// Summary aggregates a reconcile pass.
type Summary struct {
	Parents    int       `json:"parents"`
	Children   int       `json:"children"`
	Total      int       `json:"total"`
	Matched    int       `json:"matched"`
	Unmatched  int       `json:"unmatched"`
	Normalized int       `json:"normalized"`
	Duplicates int       `json:"duplicates"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// Options configures the join.
type Options struct {
	// ForeignKey is the child field holding the parent key.
	ForeignKey string
	// Rename maps parent field names to merged names (id -> company_id).
	Rename map[string]string
	// Drop lists parent fields left out of the merge.
	Drop []string
	// Rules run on every merged record.
	Rules []Rule
}

// DefaultOptions joins job postings to companies.
func DefaultOptions() Options {
	return Options{
		ForeignKey: "company_slug",
		Rename:     map[string]string{"id": "company_id"},
		Drop:       []string{"isHiring", "url", "api"},
		Rules:      DefaultRules(),
	}
}

// Reconciler joins children to parents.
type Reconciler struct {
	opts    Options
	drop    map[string]struct{}
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Reconciler. metrics may be nil.
func New(opts Options, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	drop := make(map[string]struct{}, len(opts.Drop))
	for _, f := range opts.Drop {
		drop[f] = struct{}{}
	}
	return &Reconciler{opts: opts, drop: drop, logger: logger.Named("reconcile"), metrics: m}
}

// Reconcile returns one UnifiedRecord per distinct child key, in child order.
func (r *Reconciler) Reconcile(parents, children []record.RawRecord) ([]record.UnifiedRecord, Summary) {
	summary := Summary{Parents: len(parents), Children: len(children)}

	index := r.indexParents(parents)
	placeholders := r.placeholderFields(index)

	deduped, dups := dedupeChildren(children)
	summary.Duplicates = len(dups)
	for _, k := range dups {
		r.warn(&summary, Warning{Key: k, Kind: WarnDuplicateChild, Message: "duplicate child key, kept latest fetch"})
	}

	out := make([]record.UnifiedRecord, 0, len(deduped))
	for _, child := range deduped {
		parentKey := record.EntityKey(foreignKey(child.Fields[r.opts.ForeignKey]))

		var merged record.Fields
		parent, found := index[parentKey]
		if found {
			merged = r.parentFields(parent)
			summary.Matched++
		} else {
			merged = placeholders.Clone()
			summary.Unmatched++
			r.warn(&summary, Warning{
				Key:     child.Key,
				Kind:    WarnMissingParent,
				Message: fmt.Sprintf("parent %q not found", parentKey),
			})
		}
		for k, v := range child.Fields {
			merged[k] = v
		}

		normalized := false
		for _, rule := range r.opts.Rules {
			applied, miss := rule.Apply(merged)
			if applied {
				normalized = true
			}
			if miss != "" {
				r.warn(&summary, Warning{Key: child.Key, Kind: WarnNormalizationMiss, Message: rule.Name() + ": " + miss})
			}
		}
		if normalized {
			summary.Normalized++
		}

		out = append(out, record.UnifiedRecord{
			Key:         child.Key,
			ParentKey:   parentKey,
			ParentFound: found,
			Fields:      merged,
		})
	}

	summary.Total = len(out)
	r.metrics.Reconciled(summary.Matched, summary.Unmatched)
	r.logger.Info("Reconcile finished",
		zap.Int("parents", summary.Parents),
		zap.Int("children", summary.Children),
		zap.Int("matched", summary.Matched),
		zap.Int("unmatched", summary.Unmatched),
		zap.Int("normalized", summary.Normalized),
		zap.Int("warnings", len(summary.Warnings)))

	return out, summary
}

func (r *Reconciler) warn(s *Summary, w Warning) {
	s.Warnings = append(s.Warnings, w)
	r.logger.Warn("Reconcile warning",
		zap.String("key", string(w.Key)),
		zap.String("kind", string(w.Kind)),
		zap.String("message", w.Message))
}

// indexParents keys parents by entity key; the latest fetch wins.
func (r *Reconciler) indexParents(parents []record.RawRecord) map[record.EntityKey]record.RawRecord {
	index := make(map[record.EntityKey]record.RawRecord, len(parents))
	for _, p := range parents {
		if prev, ok := index[p.Key]; ok && prev.FetchedAt.After(p.FetchedAt) {
			continue
		}
		index[p.Key] = p
	}
	return index
}

// parentFields returns the parent's fields after renames and drops.
func (r *Reconciler) parentFields(p record.RawRecord) record.Fields {
	out := make(record.Fields, len(p.Fields))
	for k, v := range p.Fields {
		if _, skip := r.drop[k]; skip {
			continue
		}
		if to, ok := r.opts.Rename[k]; ok {
			k = to
		}
		out[k] = v
	}
	return out
}

// placeholderFields is every merged parent field set to nil.
func (r *Reconciler) placeholderFields(index map[record.EntityKey]record.RawRecord) record.Fields {
	out := make(record.Fields)
	for _, p := range index {
		for k := range r.parentFields(p) {
			out[k] = nil
		}
	}
	return out
}

// dedupeChildren keeps one record per key: the latest FetchedAt (later input
// wins a tie), placed where the key first appeared. It also returns the keys
// that were duplicated.
func dedupeChildren(children []record.RawRecord) ([]record.RawRecord, []record.EntityKey) {
	pos := make(map[record.EntityKey]int, len(children))
	out := make([]record.RawRecord, 0, len(children))
	var dups []record.EntityKey

	for _, c := range children {
		i, seen := pos[c.Key]
		if !seen {
			pos[c.Key] = len(out)
			out = append(out, c)
			continue
		}
		dups = appendUnique(dups, c.Key)
		if !c.FetchedAt.Before(out[i].FetchedAt) {
			out[i] = c
		}
	}
	return out, dups
}

func appendUnique(keys []record.EntityKey, k record.EntityKey) []record.EntityKey {
	for _, existing := range keys {
		if existing == k {
			return keys
		}
	}
	return append(keys, k)
}

func foreignKey(v any) string {
	if v == nil {
		return ""
	}
	return utils.ToString(v)
}
