// Package source reads hiring companies and their job postings over HTTP.
//
// The company list is a JSON array (one object per company, keyed by
// "slug") fetched once per Source and paged locally by ListEntities. For
// each company FetchEntity loads <base>/companies/<slug>/jobs, extracts the
// posting links and then reads every posting's detail page:
//
//   - job id from the signup_job_id parameter of the apply link
//   - salary, equity, experience, school year and visa from the embedded
//     page props
//   - location and job type from the labeled fields
//   - the job description from the description meta tag
//
// Requests share one rate limiter. HTTP 404 and 410 are permanent failures;
// 401, 403, 408, 429 and 5xx are transient. AcquireSession probes the
// company list and reports any failure as an authentication error.
package source
