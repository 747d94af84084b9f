package fooddata

import (
	"context"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/utils/logging"
)

// ProductLookup fans a barcode out to the configured sources, one call
// per source. Records keep their data_source tag and are never
// deduplicated; the caller picks its preference order.
type ProductLookup struct {
	sources []BarcodeSearcher
}

// NewProductLookup combines barcode searchers in preference order.
func NewProductLookup(sources ...BarcodeSearcher) *ProductLookup {
	return &ProductLookup{sources: sources}
}

// SearchByBarcode queries the requested sources. An empty want set
// means all configured sources. A failing source is logged and skipped;
// absence of product data is a valid outcome.
func (p *ProductLookup) SearchByBarcode(ctx context.Context, code string, want ...model.DataSource) ([]model.ProductRecord, error) {
	if err := model.ValidateBarcode(code, guessSymbology(code)); err != nil {
		return nil, err
	}

	wanted := func(s model.DataSource) bool {
		if len(want) == 0 {
			return true
		}
		for _, w := range want {
			if w == s {
				return true
			}
		}
		return false
	}

	var records []model.ProductRecord
	for _, src := range p.sources {
		if !wanted(src.Source()) {
			continue
		}

		recs, err := src.SearchByBarcode(ctx, code)
		if err != nil {
			logging.From(ctx).Warn("barcode source lookup failed",
				"source", src.Source(), "barcode", code, "error", err)
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}

func guessSymbology(code string) model.Symbology {
	switch len(code) {
	case 13:
		return model.SymbologyEAN13
	case 12:
		return model.SymbologyUPCA
	case 8:
		return model.SymbologyEAN8
	case 6, 7:
		return model.SymbologyUPCE
	default:
		return model.SymbologyEAN13
	}
}
