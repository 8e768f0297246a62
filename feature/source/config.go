package source

// Config holds configuration for the company and job listing source.
type Config struct {
	// ListURL returns the JSON array of hiring companies.
	ListURL string `mapstructure:"list_url" default:"https://yc-oss.github.io/api/companies/hiring.json"`
	// BaseURL hosts the company job pages (<base>/companies/<slug>/jobs).
	BaseURL string `mapstructure:"base_url" default:"https://www.ycombinator.com"`
	// ApplyBaseURL is prefixed to a job id to build its apply link.
	ApplyBaseURL string `mapstructure:"apply_base_url" default:"https://www.workatastartup.com/jobs/"`
	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"user_agent" default:"Mozilla/5.0 (compatible; listing-harvester/1.0)"`
	// Token is sent as a bearer token when set.
	Token string `mapstructure:"token" default:""`
	// RequestsPerSecond limits the request rate across all workers.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"2"`
	// Burst is the number of requests allowed above the rate at once.
	Burst int `mapstructure:"burst" default:"1"`
	// TimeoutSeconds bounds each request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// PageSize is the number of companies per listing page.
	PageSize int `mapstructure:"page_size" default:"100"`
}
