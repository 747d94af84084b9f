package model

// Symbology identifies the barcode format of a detection.
type Symbology string

const (
	SymbologyEAN13 Symbology = "EAN13"
	SymbologyEAN8  Symbology = "EAN8"
	SymbologyUPCA  Symbology = "UPCA"
	SymbologyUPCE  Symbology = "UPCE"
	SymbologyQR    Symbology = "QRCODE"
)

// Region is the axis-aligned bounding box of a detection in pixel
// coordinates.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BarcodeDetection is one decoded barcode found in an image.
type BarcodeDetection struct {
	Data          string    `json:"data"`
	Symbology     Symbology `json:"symbology"`
	Quality       int       `json:"quality"`
	Orientation   string    `json:"orientation,omitempty"`
	Region        Region    `json:"region"`
	IsFoodBarcode bool      `json:"is_food_barcode"`
	Formatted     string    `json:"formatted_data"`
}

// IsFoodBarcode applies the symbology and length heuristic used to
// decide whether a decoded code plausibly identifies a packaged food
// product. This is a best-effort filter, not content validation:
// payload shape checks belong to ValidateBarcode.
func IsFoodBarcode(data string, sym Symbology) bool {
	switch sym {
	case SymbologyEAN13, SymbologyUPCA:
		return len(data) == 12 || len(data) == 13
	case SymbologyEAN8, SymbologyUPCE:
		return len(data) == 7 || len(data) == 8
	default:
		return false
	}
}

// FormatBarcode renders a decoded code with conventional grouping for
// display (e.g. EAN-13 as 1-234567-890123).
func FormatBarcode(data string, sym Symbology) string {
	switch {
	case sym == SymbologyEAN13 && len(data) == 13:
		return data[:1] + "-" + data[1:7] + "-" + data[7:13]
	case sym == SymbologyUPCA && len(data) == 12:
		return data[:6] + "-" + data[6:12]
	case sym == SymbologyEAN8 && len(data) == 8:
		return data[:4] + "-" + data[4:8]
	default:
		return data
	}
}

// ValidateBarcode checks the payload shape against the symbology's
// expected length and character set.
func ValidateBarcode(data string, sym Symbology) error {
	lengths := map[Symbology][]int{
		SymbologyEAN13: {13},
		SymbologyEAN8:  {8},
		SymbologyUPCA:  {12},
		SymbologyUPCE:  {6, 7, 8},
	}

	expected, ok := lengths[sym]
	if !ok {
		return nil // variable-length symbology
	}

	valid := false
	for _, n := range expected {
		if len(data) == n {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidBarcode
	}
	if !allDigits(data) {
		return ErrInvalidBarcode
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
