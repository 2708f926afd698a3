// Package config provides configuration loading utilities for taxonomies.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Taxonomy holds the word lists the extraction pipeline matches against.
// Kept as data, not code, so deployments can tune them without rebuilds.
type Taxonomy struct {
	// JobTitleWords are stripped from filename-derived candidate names and
	// rejected as standalone skills.
	JobTitleWords []string `yaml:"job_title_words"`
	// EducationWords score a block as education rather than work history.
	EducationWords []string `yaml:"education_words"`
	// WorkWords score a block as work history.
	WorkWords []string `yaml:"work_words"`
	// FillerPrepositions invalidate title/skill tokens that start with them.
	FillerPrepositions []string `yaml:"filler_prepositions"`
	// Languages recognized in language sections.
	Languages []string `yaml:"languages"`
	// CertificationWords recognized in certification lines.
	CertificationWords []string `yaml:"certification_words"`
	// FAANGCompanies set the has_faang flag.
	FAANGCompanies []string `yaml:"faang_companies"`
	// SuggestionSkills / SuggestionRoles feed suggestion placeholders.
	SuggestionSkills []string `yaml:"suggestion_skills"`
	SuggestionRoles  []string `yaml:"suggestion_roles"`
}

// DefaultTaxonomy returns the embedded taxonomy used when no YAML
// override is present.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		JobTitleWords: []string{
			"engineer", "developer", "manager", "director", "analyst",
			"consultant", "architect", "designer", "scientist", "specialist",
			"lead", "senior", "junior", "principal", "staff", "intern",
			"resume", "cv", "curriculum", "vitae", "profile", "backend",
			"frontend", "fullstack", "devops", "software", "data", "product",
		},
		EducationWords: []string{
			"university", "college", "school", "institute", "academy",
			"bachelor", "master", "phd", "doctorate", "degree", "diploma",
			"gpa", "graduated", "thesis", "coursework", "bsc", "msc", "mba",
		},
		WorkWords: []string{
			"managed", "developed", "led", "built", "designed", "implemented",
			"responsible", "delivered", "maintained", "launched", "shipped",
			"coordinated", "architected", "optimized", "migrated", "owned",
		},
		FillerPrepositions: []string{
			"at", "in", "of", "for", "with", "the", "and", "to", "on", "from",
			"as", "by",
		},
		Languages: []string{
			"english", "french", "spanish", "german", "italian", "portuguese",
			"dutch", "mandarin", "chinese", "cantonese", "japanese", "korean",
			"arabic", "russian", "hindi", "polish", "swedish", "norwegian",
			"danish", "turkish", "greek", "hebrew", "indonesian", "vietnamese",
		},
		CertificationWords: []string{
			"aws", "azure", "gcp", "google cloud", "kubernetes", "cka", "ckad",
			"pmp", "prince2", "scrum", "csm", "psm", "safe", "cissp", "ceh",
			"comptia", "ccna", "ccnp", "terraform", "databricks", "snowflake",
			"salesforce", "oracle", "itil", "six sigma", "togaf", "cfa", "cpa",
		},
		FAANGCompanies: []string{
			"facebook", "meta", "amazon", "apple", "netflix", "google",
			"alphabet", "microsoft",
		},
		SuggestionSkills: []string{
			"Python", "Go", "Java", "JavaScript", "TypeScript", "React",
			"Kubernetes", "Docker", "AWS", "SQL", "Terraform", "Machine Learning",
		},
		SuggestionRoles: []string{
			"Backend Developer", "Frontend Developer", "Full-Stack Developer",
			"Data Scientist", "DevOps Engineer", "Product Manager",
			"Engineering Manager", "QA Engineer",
		},
	}
}

// LoadTaxonomy loads the taxonomy from a YAML file, falling back to the
// embedded defaults when the file is absent. Lists present in the file
// replace the corresponding defaults; absent lists keep them.
func LoadTaxonomy(path string) (Taxonomy, error) {
	tax := DefaultTaxonomy()
	if path == "" {
		return tax, nil
	}
	b, err := os.ReadFile(path) // #nosec G304 -- configuration files are expected to be safe
	if err != nil {
		if os.IsNotExist(err) {
			return tax, nil
		}
		return tax, fmt.Errorf("op=config.LoadTaxonomy: %w", err)
	}
	var override Taxonomy
	if err := yaml.Unmarshal(b, &override); err != nil {
		return tax, fmt.Errorf("op=config.LoadTaxonomy parse: %w", err)
	}
	merge := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	merge(&tax.JobTitleWords, override.JobTitleWords)
	merge(&tax.EducationWords, override.EducationWords)
	merge(&tax.WorkWords, override.WorkWords)
	merge(&tax.FillerPrepositions, override.FillerPrepositions)
	merge(&tax.Languages, override.Languages)
	merge(&tax.CertificationWords, override.CertificationWords)
	merge(&tax.FAANGCompanies, override.FAANGCompanies)
	merge(&tax.SuggestionSkills, override.SuggestionSkills)
	merge(&tax.SuggestionRoles, override.SuggestionRoles)
	return tax, nil
}

// WordSet lowercases a list into a membership set.
func WordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
