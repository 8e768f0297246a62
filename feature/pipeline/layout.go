package pipeline

import (
	"listing-harvester/core/dataset"
	"listing-harvester/core/sync"
)

// Layout orders the CSV exports so the identifying columns come first.
func Layout(cfg sync.Config) dataset.Layout {
	return dataset.Layout{
		ParentKeyColumn: cfg.ParentsKey,
		ChildKeyColumn:  cfg.ChildrenKey,
		ParentLead:      []string{"id", "name", "slug", "website", "batch"},
		ChildLead:       []string{"job_key", "company", "company_slug", "job_name", "link_url", "apply_url"},
		UnifiedLead:     []string{"job_key", "company_id", "name", "company_slug", "job_name", "location", "salaryRange"},
	}
}
