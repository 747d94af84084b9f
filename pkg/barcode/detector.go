package barcode

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/foodlens/foodlens/pkg/model"
	"github.com/foodlens/foodlens/pkg/utils/logging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Detector finds and decodes 1D/2D barcodes in an image. Detection is
// local and deterministic; a malformed image or an image without
// barcodes both yield an empty list, never an error, since absence of
// barcodes is a valid outcome.
type Detector struct {
	readers []gozxing.Reader
}

// NewDetector creates a detector covering the retail 1D symbologies and
// QR codes.
func NewDetector() *Detector {
	return &Detector{
		readers: []gozxing.Reader{
			oned.NewMultiFormatUPCEANReader(nil),
			qrcode.NewQRCodeReader(),
		},
	}
}

// Detect decodes every barcode it can find in the image bytes.
// Duplicate payloads across readers are collapsed.
func (d *Detector) Detect(ctx context.Context, data []byte) []model.BarcodeDetection {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logging.From(ctx).Warn("barcode detection skipped, undecodable image", "error", err)
		return nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		logging.From(ctx).Warn("barcode detection skipped, binarization failed", "error", err)
		return nil
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	var detections []model.BarcodeDetection
	seen := map[string]bool{}

	for _, reader := range d.readers {
		result, err := reader.Decode(bmp, hints)
		if err != nil {
			// NotFoundException: this reader saw nothing
			continue
		}

		det := toDetection(result)
		if seen[det.Data] {
			continue
		}
		seen[det.Data] = true
		detections = append(detections, det)
	}

	return detections
}

func toDetection(result *gozxing.Result) model.BarcodeDetection {
	sym := toSymbology(result.GetBarcodeFormat())
	data := result.GetText()
	points := result.GetResultPoints()

	return model.BarcodeDetection{
		Data:          data,
		Symbology:     sym,
		Quality:       len(points),
		Orientation:   orientationOf(result),
		Region:        boundingRegion(points),
		IsFoodBarcode: model.IsFoodBarcode(data, sym),
		Formatted:     model.FormatBarcode(data, sym),
	}
}

func toSymbology(format gozxing.BarcodeFormat) model.Symbology {
	switch format {
	case gozxing.BarcodeFormat_EAN_13:
		return model.SymbologyEAN13
	case gozxing.BarcodeFormat_EAN_8:
		return model.SymbologyEAN8
	case gozxing.BarcodeFormat_UPC_A:
		return model.SymbologyUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return model.SymbologyUPCE
	case gozxing.BarcodeFormat_QR_CODE:
		return model.SymbologyQR
	default:
		return model.Symbology(format.String())
	}
}

func orientationOf(result *gozxing.Result) string {
	meta := result.GetResultMetadata()
	v, ok := meta[gozxing.ResultMetadataType_ORIENTATION]
	if !ok {
		return ""
	}

	deg, ok := v.(int)
	if !ok {
		return ""
	}
	switch ((deg % 360) + 360) % 360 {
	case 0:
		return "up"
	case 90:
		return "right"
	case 180:
		return "down"
	case 270:
		return "left"
	default:
		return ""
	}
}

func boundingRegion(points []gozxing.ResultPoint) model.Region {
	if len(points) == 0 {
		return model.Region{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		maxX = math.Max(maxX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxY = math.Max(maxY, p.GetY())
	}

	return model.Region{
		Left:   int(minX),
		Top:    int(minY),
		Width:  int(maxX - minX),
		Height: int(maxY - minY),
	}
}
