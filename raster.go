//go:build !nopdfium

package pdf2md

import (
	"fmt"
	"image"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/responses"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/sirupsen/logrus"
)

var (
	pdfiumPool     pdfium.Pool
	pdfiumPoolOnce sync.Once
	pdfiumPoolErr  error
)

func initPdfiumPool() {
	pdfiumPool, pdfiumPoolErr = webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
}

// document wraps one open PDF. pdfium is not reentrant per instance, so a
// document must never be driven concurrently; the orchestrator reads
// metadata before the render worker starts and all rendering happens on
// that one worker.
type document struct {
	instance pdfium.Pdfium
	doc      *responses.OpenDocument
	path     string
	count    int
}

// openDocument loads a PDF through pdfium, mapping load failures onto the
// password/corruption error taxonomy.
func openDocument(path, password string) (*document, error) {
	pdfiumPoolOnce.Do(initPdfiumPool)
	if pdfiumPoolErr != nil {
		return nil, &CorruptPDFError{Path: path, Detail: "init pdfium: " + pdfiumPoolErr.Error()}
	}

	instance, err := pdfiumPool.GetInstance(30 * time.Second)
	if err != nil {
		return nil, &CorruptPDFError{Path: path, Detail: "get pdfium instance: " + err.Error()}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		instance.Close()
		return nil, &FileNotFoundError{Path: path}
	}

	openReq := &requests.OpenDocument{File: &data}
	if password != "" {
		openReq.Password = &password
	}

	doc, err := instance.OpenDocument(openReq)
	if err != nil {
		instance.Close()
		// pdfium reports a bad or missing password with the same error
		// class; which one we surface depends on whether the caller
		// supplied a password at all.
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			if password != "" {
				return nil, &WrongPasswordError{Path: path}
			}
			return nil, &PasswordRequiredError{Path: path}
		}
		return nil, &CorruptPDFError{Path: path, Detail: err.Error()}
	}

	countResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, &CorruptPDFError{Path: path, Detail: "get page count: " + err.Error()}
	}

	log.WithFields(logrus.Fields{"path": path, "pages": countResp.PageCount}).Debug("PDF opened")

	return &document{
		instance: instance,
		doc:      doc,
		path:     path,
		count:    countResp.PageCount,
	}, nil
}

func (d *document) close() {
	d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc.Document})
	d.instance.Close()
}

// metadata reads document-level info without rendering any page.
func (d *document) metadata() DocumentMetadata {
	meta := DocumentMetadata{PageCount: d.count}

	if resp, err := d.instance.GetMetaData(&requests.GetMetaData{Document: d.doc.Document}); err == nil {
		for _, tag := range resp.Tags {
			switch tag.Tag {
			case "Title":
				meta.Title = tag.Value
			case "Author":
				meta.Author = tag.Value
			case "Subject":
				meta.Subject = tag.Value
			case "Keywords":
				meta.Keywords = tag.Value
			case "Creator":
				meta.Creator = tag.Value
			case "Producer":
				meta.Producer = tag.Value
			case "CreationDate":
				meta.CreationDate = tag.Value
			case "ModDate":
				meta.ModDate = tag.Value
			}
		}
	}

	if resp, err := d.instance.FPDF_GetFileVersion(&requests.FPDF_GetFileVersion{Document: d.doc.Document}); err == nil {
		meta.PDFVersion = fmt.Sprintf("%d.%d", resp.FileVersion/10, resp.FileVersion%10)
	}

	if resp, err := d.instance.FPDF_GetSecurityHandlerRevision(&requests.FPDF_GetSecurityHandlerRevision{Document: d.doc.Document}); err == nil {
		meta.Encrypted = resp.SecurityHandlerRevision != -1
	}

	// pdfium only exposes linearisation through the incremental
	// availability API; the header marker is equivalent and cheap.
	if head, err := os.ReadFile(d.path); err == nil {
		limit := len(head)
		if limit > 2048 {
			limit = 2048
		}
		meta.Linearized = strings.Contains(string(head[:limit]), "/Linearized")
	}

	return meta
}

// render rasterises one 0-indexed page at the given DPI, honouring the
// pixel cap on the longer side and normalising landscape pages upright.
func (d *document) render(pageIndex, dpi, maxPixels int) (image.Image, error) {
	page := requests.Page{
		ByIndex: &requests.PageByIndex{
			Document: d.doc.Document,
			Index:    pageIndex,
		},
	}

	sizeResp, err := d.instance.GetPageSize(&requests.GetPageSize{Page: page})
	if err != nil {
		return nil, fmt.Errorf("get page size: %w", err)
	}

	// Page size is in PDF points (1/72 inch).
	targetW := int(math.Ceil(sizeResp.Width / 72.0 * float64(dpi)))
	targetH := int(math.Ceil(sizeResp.Height / 72.0 * float64(dpi)))
	longest := targetW
	if targetH > longest {
		longest = targetH
	}
	if longest > maxPixels {
		scale := float64(maxPixels) / float64(longest)
		targetW = int(math.Ceil(float64(targetW) * scale))
		targetH = int(math.Ceil(float64(targetH) * scale))
	}
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}

	renderResp, err := d.instance.RenderPageInPixels(&requests.RenderPageInPixels{
		Page:   page,
		Width:  targetW,
		Height: targetH,
	})
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	img := copyRGBA(renderResp.Result.Image)
	renderResp.Cleanup()

	if b := img.Bounds(); b.Dx() > b.Dy() {
		img = rotate90(img)
	}

	log.WithFields(logrus.Fields{
		"page":   pageIndex + 1,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("page rendered")

	return img, nil
}

// copyRGBA detaches the pixel data from pdfium's buffer, which is reclaimed
// by the render response cleanup.
func copyRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// rotate90 turns a landscape bitmap a quarter turn clockwise so the VLM
// always sees upright pages.
func rotate90(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
