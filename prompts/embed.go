// Package prompts holds the embedded starter files written by clipforge init.
package prompts

import (
	_ "embed"
	"strings"
	"text/template"
)

//go:embed job.yaml.tmpl
var SampleJobTemplate string

var sampleJob = template.Must(template.New("job.yaml").Parse(SampleJobTemplate))

// SampleJob renders the starter job file for project.
func SampleJob(project string) (string, error) {
	var b strings.Builder
	if err := sampleJob.Execute(&b, struct{ Project string }{project}); err != nil {
		return "", err
	}
	return b.String(), nil
}
