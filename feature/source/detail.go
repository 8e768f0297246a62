package source

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// jobDetail holds the attributes read from a job detail page. Missing
// attributes stay empty; nothing is inferred.
type jobDetail struct {
	JobID             string
	SalaryRange       string
	EquityRange       string
	MinExperience     string
	MinSchoolYear     string
	Visa              string
	JobType           string
	Location          string
	HiringDescription string
	JobDescription    string
}

// The page embeds its props as HTML-escaped JSON in an attribute.
var (
	signupJobID = []*regexp.Regexp{
		regexp.MustCompile(`signup_job_id=(\d+)`),
		regexp.MustCompile(`signup_job_id%3D(\d+)`),
		regexp.MustCompile(`signup_job_id%253D(\d+)`),
	}
	jobProps = regexp.MustCompile(`salaryRange&quot;:&quot;(.*?)&quot;,&quot;equityRange&quot;:&quot;(.*?)&quot;,&quot;minExperience&quot;:&quot;(.*?)&quot;,&quot;minSchoolYear&quot;:&quot;(.*?)&quot;,&quot;visa&quot;:&quot;(.*?)&quot;`)
	hiringProp = regexp.MustCompile(`hiring_description&quot;:&quot;(.*?)&quot;`)
)

const descriptionPrefix = "Job Description"

func parseJobDetail(page []byte) (jobDetail, error) {
	var d jobDetail
	raw := string(page)

	for _, re := range signupJobID {
		if m := re.FindStringSubmatch(raw); m != nil {
			d.JobID = m[1]
			break
		}
	}

	if m := jobProps.FindStringSubmatch(raw); m != nil {
		d.SalaryRange = unescape(m[1])
		d.EquityRange = unescape(m[2])
		d.MinExperience = unescape(m[3])
		d.MinSchoolYear = unescape(m[4])
		d.Visa = unescape(m[5])
	}
	if m := hiringProp.FindStringSubmatch(raw); m != nil {
		d.HiringDescription = unescape(m[1])
	}

	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return d, err
	}
	labels := labeledValues(doc)
	d.Location = labels["Location"]
	d.JobType = labels["Job Type"]

	if meta := find(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Meta && attr(n, "name") == "description"
	}); meta != nil {
		if content := attr(meta, "content"); strings.HasPrefix(content, descriptionPrefix) {
			d.JobDescription = strings.TrimSpace(content[len(descriptionPrefix):])
		}
	}
	return d, nil
}

// labeledValues reads <div><strong>Label</strong></div><span>Value</span> pairs.
func labeledValues(doc *html.Node) map[string]string {
	out := make(map[string]string)
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Div {
			return true
		}
		label := firstElement(n)
		if label == nil || label.DataAtom != atom.Strong {
			return true
		}
		value := nextElement(n)
		if value == nil || value.DataAtom != atom.Span {
			return true
		}
		key := text(label)
		if _, seen := out[key]; !seen {
			out[key] = text(value)
		}
		return true
	})
	return out
}

func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// unescape decodes the entities left after the &quot; split, plus JSON
// escapes of the embedded props.
func unescape(s string) string {
	s = html.UnescapeString(s)
	s = strings.NewReplacer(`\u0026`, "&", `\n`, "\n", `\"`, `"`, `\/`, "/").Replace(s)
	return strings.TrimSpace(s)
}
