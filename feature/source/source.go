package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"listing-harvester/core/harvest"
	"listing-harvester/core/record"
	"listing-harvester/core/utils"

	"go.uber.org/zap"
)

// Source harvests hiring companies and their job postings.
type Source struct {
	cfg    Config
	client *client
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	companies []record.Fields
	bySlug    map[record.EntityKey]record.Fields
}

var _ harvest.Source = (*Source)(nil)

// New creates a Source.
func New(cfg Config, logger *zap.Logger) *Source {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Source{
		cfg:    cfg,
		client: newClient(cfg),
		logger: logger.Named("source"),
		now:    time.Now,
	}
}

// ListEntities returns one page (1-based) of company slugs.
func (src *Source) ListEntities(ctx context.Context, session harvest.Session, page int) ([]record.EntityKey, bool, error) {
	companies, err := src.loadCompanies(ctx, src.session(session))
	if err != nil {
		return nil, false, err
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * src.cfg.PageSize
	if start >= len(companies) {
		return nil, false, nil
	}
	end := min(start+src.cfg.PageSize, len(companies))

	keys := make([]record.EntityKey, 0, end-start)
	for _, c := range companies[start:end] {
		keys = append(keys, slugOf(c))
	}
	return keys, end < len(companies), nil
}

// FetchEntity fetches the company's job page and every job detail page.
// A job whose detail page is gone is kept without details.
func (src *Source) FetchEntity(ctx context.Context, session harvest.Session, key record.EntityKey) (record.Fetched, error) {
	s := src.session(session)
	log := src.logger.With(zap.String("company", string(key)))

	company, err := src.company(ctx, s, key)
	if err != nil {
		return record.Fetched{}, err
	}
	fetchedAt := src.now()

	jobsURL := src.cfg.BaseURL + "/companies/" + url.PathEscape(string(key)) + "/jobs"
	body, err := src.client.get(ctx, s, key, jobsURL)
	if err != nil {
		return record.Fetched{}, err
	}
	links, err := parseJobLinks(body, string(key), src.cfg.BaseURL)
	if err != nil {
		return record.Fetched{}, harvest.Permanent(key, fmt.Errorf("parsing %s: %w", jobsURL, err))
	}
	log.Debug("Job links found", zap.Int("count", len(links)))

	fetched := record.Fetched{
		Record: record.RawRecord{Key: key, Fields: company.Clone(), FetchedAt: fetchedAt},
	}
	companyName := utils.ToString(company["name"])
	if company["name"] == nil || companyName == "" {
		companyName = capitalize(string(key))
	}

	for _, link := range links {
		var detail jobDetail
		page, err := src.client.get(ctx, s, key, link.URL)
		switch {
		case err == nil:
			detail, err = parseJobDetail(page)
			if err != nil {
				log.Warn("Job detail unreadable", zap.String("url", link.URL), zap.Error(err))
			}
		case harvest.Classify(err) == harvest.KindPermanent:
			log.Warn("Job detail unavailable", zap.String("url", link.URL), zap.Error(err))
		default:
			return record.Fetched{}, err
		}

		fetched.Children = append(fetched.Children, record.RawRecord{
			Key:       jobKey(key, link.URL),
			Fields:    src.jobFields(key, companyName, link, detail),
			FetchedAt: fetchedAt,
		})
	}
	return fetched, nil
}

func (src *Source) jobFields(key record.EntityKey, companyName string, link jobLink, d jobDetail) record.Fields {
	applyURL := ""
	if d.JobID != "" {
		applyURL = src.cfg.ApplyBaseURL + d.JobID
	}
	return record.Fields{
		"company":            companyName,
		"company_slug":       string(key),
		"job_key":            string(jobKey(key, link.URL)),
		"job_name":           link.Title,
		"link_url":           link.URL,
		"apply_url":          applyURL,
		"job_id":             d.JobID,
		"salaryRange":        d.SalaryRange,
		"equityRange":        d.EquityRange,
		"minExperience":      d.MinExperience,
		"minSchoolYear":      d.MinSchoolYear,
		"visa":               d.Visa,
		"jobType":            d.JobType,
		"location":           d.Location,
		"is_remote":          strings.Contains(d.Location, "Remote"),
		"hiring_description": d.HiringDescription,
		"job_description":    d.JobDescription,
	}
}

// loadCompanies fetches the company list once per Source.
func (src *Source) loadCompanies(ctx context.Context, s *Session) ([]record.Fields, error) {
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.companies != nil {
		return src.companies, nil
	}

	body, err := src.client.get(ctx, s, "companies", src.cfg.ListURL)
	if err != nil {
		return nil, err
	}
	var raw []record.Fields
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding company list: %w", err)
	}

	companies := make([]record.Fields, 0, len(raw))
	bySlug := make(map[record.EntityKey]record.Fields, len(raw))
	for _, c := range raw {
		slug := slugOf(c)
		if slug == "" {
			continue
		}
		if _, dup := bySlug[slug]; dup {
			continue
		}
		if v, ok := c["isHiring"]; ok && !utils.ToBool(v) {
			continue
		}
		bySlug[slug] = c
		companies = append(companies, c)
	}
	src.logger.Info("Company list loaded", zap.Int("companies", len(companies)), zap.Int("entries", len(raw)))

	src.companies = companies
	src.bySlug = bySlug
	return companies, nil
}

var errNotListed = errors.New("company not in the hiring list")

func (src *Source) company(ctx context.Context, s *Session, key record.EntityKey) (record.Fields, error) {
	if _, err := src.loadCompanies(ctx, s); err != nil {
		return nil, harvest.Transient(key, err)
	}
	src.mu.Lock()
	c, ok := src.bySlug[key]
	src.mu.Unlock()
	if !ok {
		return nil, harvest.Permanent(key, errNotListed)
	}
	return c, nil
}

func slugOf(c record.Fields) record.EntityKey {
	v, ok := c["slug"]
	if !ok || v == nil {
		return ""
	}
	return record.EntityKey(strings.TrimSpace(utils.ToString(v)))
}

// jobKey is the company slug plus the last path segment of the job link.
func jobKey(company record.EntityKey, link string) record.EntityKey {
	seg := link
	if u, err := url.Parse(link); err == nil {
		seg = u.Path
	}
	seg = strings.TrimRight(seg, "/")
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	return record.EntityKey(string(company) + "/" + seg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
