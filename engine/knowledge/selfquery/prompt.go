package selfquery

import (
	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
	"github.com/gcpassist/gcpassist/pkg/tplengine"
)

const promptName = "structured_query"

const promptTemplate = `Your goal is to structure the user's query to match the request schema provided below.

Answer with a single JSON object and nothing else:
{"query": "<text string to compare to document contents>", "filter": <filter or "NO_FILTER">}

The query string should contain only text that is expected to match the contents of documents.
Any conditions in the filter should not be mentioned in the query as well.

A filter is either a comparison
{"comparator": "<comparator>", "attribute": "<attribute>", "value": <value>}
or a logical operation
{"operator": "<operator>", "arguments": [<filter>, ...]}

Comparators: {{ .Comparators | join ", " }}
Operators: {{ .Operators | join ", " }}
Use a list value for "in" and "nin".

Make sure that filters only refer to attributes that exist in the data source.
Make sure that filters take into account the descriptions of attributes.
Make sure that filters are only used as needed. If there are no filters that should be applied return "NO_FILTER" for the filter value.

Data source:
Content: {{ .DocumentContents | trim }}
Attributes:
{{- range .Attributes }}
- {{ .Name }} ({{ .Type }}): {{ .Description | trim }}
{{- end }}

User query: {{ .Question | trim | toJson }}
`

var prompts = tplengine.NewEngine().MustAddTemplate(promptName, promptTemplate)

type promptData struct {
	Question         string
	DocumentContents string
	Attributes       knowledge.AttributeSchema
	Comparators      []string
	Operators        []string
}

func renderPrompt(question, contents string, schema knowledge.AttributeSchema) (string, error) {
	return prompts.Render(promptName, promptData{
		Question:         question,
		DocumentContents: contents,
		Attributes:       schema,
		Comparators: []string{
			string(filter.Eq), string(filter.Ne), string(filter.Gt), string(filter.Gte),
			string(filter.Lt), string(filter.Lte), string(filter.In), string(filter.Nin),
		},
		Operators: []string{string(filter.And), string(filter.Or), string(filter.Not)},
	})
}
