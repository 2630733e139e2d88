package pipeline

import (
	"strings"

	"github.com/medbridge/satusehat-bridge/internal/domain"
	"github.com/medbridge/satusehat-bridge/internal/lis"
)

const loincSystem = "http://loinc.org"

// Assemble merges a lab order with its correlated result batch into one
// submission transaction.
//
// Rejections, both reported as skip conditions rather than transport errors:
//   - domain.ErrIncompleteOrder when the header is missing a patient,
//     encounter or practitioner identifier;
//   - domain.ErrNoEligibleItems when no item carries a LOINC code.
//
// The returned transaction never has an empty item list.
func Assemble(order domain.LabOrder, batch lis.ResultBatch) (*domain.BridgeTransaction, error) {
	if !order.HasCompleteReferences() {
		return nil, domain.ErrIncompleteOrder
	}

	items := make([]domain.LabItem, 0, len(batch.Items))
	for _, ri := range batch.Items {
		code := strings.TrimSpace(ri.LoincCode)
		if code == "" {
			continue
		}
		items = append(items, domain.LabItem{
			Coding: domain.Coding{
				System:  loincSystem,
				Code:    code,
				Display: strings.TrimSpace(ri.LoincDisplay),
			},
			ParameterName: strings.TrimSpace(ri.ParameterName),
			Value:         ri.Result,
			Unit:          ri.Unit,
		})
	}

	if len(items) == 0 {
		return nil, domain.ErrNoEligibleItems
	}

	return &domain.BridgeTransaction{Order: order, Items: items}, nil
}
