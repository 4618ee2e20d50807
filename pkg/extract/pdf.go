package extract

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
)

// PDFDecoder extracts the embedded images of a PDF attachment. File names
// are deterministic (derived from page and object numbers), which is what
// keeps repeated extractions and cross-machine syncs in agreement.
type PDFDecoder struct{}

func NewPDFDecoder() *PDFDecoder {
	return &PDFDecoder{}
}

func (*PDFDecoder) ContentType() string {
	return "application/pdf"
}

func (*PDFDecoder) Decode(targetDir, sourcePath string) error {
	err := api.ExtractImagesFile(sourcePath, targetDir, nil, nil)
	return errors.Wrapf(err, "failed to extract images from %s", sourcePath)
}
