package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hrygo/engram/store"
)

// Pattern passes for automatic tag extraction. Matches shorter than three
// characters are discarded.
var (
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)*\b`)
	hyphenatedPattern  = regexp.MustCompile(`\b[a-z]+(?:-[a-z]+)+\b`)
	acronymPattern     = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

// techTerms is the fixed technical vocabulary scanned as substrings of the
// lowercased chunk text.
var techTerms = []string{
	"golang", "python", "java", "javascript", "typescript", "rust", "ruby",
	"react", "vue", "angular", "django", "flask", "spring",
	"docker", "kubernetes", "terraform", "ansible",
	"aws", "gcp", "azure",
	"postgresql", "mysql", "mongodb", "redis", "sqlite", "elasticsearch",
	"kafka", "rabbitmq", "nginx",
	"graphql", "grpc", "websocket", "rest", "api", "oauth",
	"linux", "github", "gitlab", "devops",
}

// categoryRules maps keyword hits to a category, checked in priority order;
// the first rule with any keyword present in the lowercased text wins.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{"troubleshooting", []string{"bug", "error", "issue"}},
	{"api", []string{"api", "endpoint", "rest"}},
	{"database", []string{"database", "sql", "query"}},
	{"deployment", []string{"deploy", "docker", "kubernetes"}},
	{"testing", []string{"test", "spec", "unit"}},
}

// detectMetadata derives a chunk's metadata from its text and the caller's
// request. It is a pure function: same text and params always produce the
// same metadata, and nothing is read from storage.
func detectMetadata(chunkText string, params *MemorizeParams) store.MemoryMetadata {
	metadata := store.MemoryMetadata{
		Context:    params.Context,
		Source:     params.Source,
		Priority:   params.Priority,
		Category:   params.Category,
		RelatedIDs: []string{},
	}
	if metadata.Priority == 0 {
		metadata.Priority = 5
	}

	seen := make(map[string]bool)
	tags := []string{}
	addTag := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if utf8.RuneCountInString(tag) < 3 || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	// Caller tags are kept regardless of length.
	for _, tag := range params.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, pattern := range []*regexp.Regexp{capitalizedPattern, hyphenatedPattern, acronymPattern} {
		for _, match := range pattern.FindAllString(chunkText, -1) {
			addTag(match)
		}
	}

	textLower := strings.ToLower(chunkText)
	for _, term := range techTerms {
		if strings.Contains(textLower, term) {
			addTag(term)
		}
	}

	if metadata.Category == "" {
		for _, rule := range categoryRules {
			for _, keyword := range rule.keywords {
				if strings.Contains(textLower, keyword) {
					metadata.Category = rule.category
					break
				}
			}
			if metadata.Category != "" {
				break
			}
		}
	}

	metadata.Tags = tags
	return metadata
}
