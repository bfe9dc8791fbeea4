package querymodel

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
)

// Fingerprint returns a stable content hash of m. Models that render to
// the same text with the same parameter layout share a fingerprint;
// parameter values are excluded so one fingerprint covers every binding.
func Fingerprint(m *Model) (string, error) {
	if m == nil {
		return "", defectf("fingerprint of nil model")
	}
	shape := *m
	shape.Parameters = make([]Parameter, len(m.Parameters))
	for i, p := range m.Parameters {
		p.Value = nil
		shape.Parameters[i] = p
	}

	data, err := json.Marshal(&shape)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	doc, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return ir.HashCanonical(ir.DomainQueryModel, doc)
}

func defectf(format string, args ...any) error {
	return criteria.Defect(format, args...)
}
