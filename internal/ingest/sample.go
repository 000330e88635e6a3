package ingest

import (
	"context"
	"log/slog"

	"timesaver/internal/types"
)

// DefaultSampleClassification is the classification body used by the sample
// generator when the caller does not supply one.
var DefaultSampleClassification = map[string]any{
	"engineering": map[string]any{
		"devops":           8,
		"development_team": 8,
		"security":         3,
	},
}

// DefaultSampleTemplateRefs are placeholder template references for sample
// output when stored templates are not used.
var DefaultSampleTemplateRefs = []string{
	"template:default/create-github-project",
	"template:default/create-nodejs-service",
	"template:default/create-golang-service",
}

// DistinctLister supplies distinct column values from the savings table.
type DistinctLister interface {
	GetDistinctColumn(ctx context.Context, column string) ([]string, error)
}

// SampleGenerator produces a ready-to-edit backward-migration classification
// document, one entry per template reference.
type SampleGenerator struct {
	savings DistinctLister
	logger  *slog.Logger
}

// NewSampleGenerator wires a generator over the savings table.
func NewSampleGenerator(savings DistinctLister, logger *slog.Logger) *SampleGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleGenerator{savings: savings, logger: logger}
}

// Generate builds the sample document. A nil custom classification falls
// back to the default one; an empty non-nil one is rejected. When
// useStoredTemplates is set the template references come from the savings
// table instead of the built-in placeholders.
func (g *SampleGenerator) Generate(ctx context.Context, custom map[string]any, useStoredTemplates bool) ([]map[string]any, error) {
	if custom != nil && len(custom) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"custom classification cannot be an empty object",
			nil,
		)
	}

	classification := custom
	if classification == nil {
		classification = DefaultSampleClassification
	}

	refs := DefaultSampleTemplateRefs
	if useStoredTemplates {
		stored, err := g.savings.GetDistinctColumn(ctx, "template_name")
		if err != nil {
			return nil, err
		}
		refs = stored
	}

	g.logger.Debug("generating sample classification",
		"stored_templates", useStoredTemplates,
		"custom_classification", custom != nil,
	)

	entries := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		entry := make(map[string]any, len(classification)+1)
		entry[types.EntityRefKey] = ref
		for k, v := range classification {
			entry[k] = v
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
