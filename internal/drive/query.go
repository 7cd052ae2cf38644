package drive

import (
	"fmt"
	"strings"
)

// mimeClassPredicates maps a semantic file class to one or more Drive query
// predicates. Multiple predicates for a class are OR'd together.
var mimeClassPredicates = map[string][]string{
	"images": {
		"mimeType = 'image/jpeg'",
		"mimeType = 'image/png'",
		"mimeType = 'image/gif'",
		"mimeType = 'image/webp'",
		"mimeType = 'image/svg+xml'",
	},
	"video": {
		"mimeType contains 'video/'",
	},
	"audio": {
		"mimeType contains 'audio/'",
	},
	"documents": {
		"mimeType = 'application/pdf'",
		"mimeType = 'text/plain'",
		"mimeType contains 'application/msword'",
		"mimeType contains 'application/vnd.openxmlformats-officedocument'",
		"mimeType contains 'application/vnd.oasis.opendocument'",
	},
	"code": {
		"mimeType = 'text/html'",
		"mimeType = 'text/css'",
		"mimeType = 'application/json'",
		"mimeType = 'application/javascript'",
		"mimeType contains 'text/x-'",
	},
	"data": {
		"mimeType = 'text/csv'",
		"mimeType = 'application/zip'",
		"mimeType = 'application/gzip'",
		"mimeType = 'application/x-tar'",
		"mimeType contains 'application/vnd.ms-excel'",
	},
}

// escapeQueryTerm backslash-escapes single quotes so user search terms can't
// break out of the quoted Drive query literal.
func escapeQueryTerm(term string) string {
	return strings.ReplaceAll(term, "'", `\'`)
}

// buildQuery assembles the Drive files.list q parameter: not-trashed AND
// parent membership AND name substring AND MIME class, in that order.
func buildQuery(parents []string, search, typeClass string) string {
	terms := []string{"trashed = false"}

	if len(parents) > 0 {
		clauses := make([]string, 0, len(parents))
		for _, id := range parents {
			clauses = append(clauses, fmt.Sprintf("'%s' in parents", id))
		}
		terms = append(terms, orGroup(clauses))
	}

	if search != "" {
		terms = append(terms, fmt.Sprintf("name contains '%s'", escapeQueryTerm(search)))
	}

	if predicates, ok := mimeClassPredicates[typeClass]; ok {
		terms = append(terms, orGroup(predicates))
	}

	return strings.Join(terms, " and ")
}

func orGroup(clauses []string) string {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}
