package parser

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Token is one positioned text run from the source document.
type Token struct {
	X    float64
	Y    float64
	Text string
}

// Page is the ordered token sequence of one document page. PP marks pages
// taken from the postponement list.
type Page struct {
	Texts []Token
	PP    bool
}

// Document is a positional-text document ready for parsing.
type Document struct {
	Pages []Page
}

// MarkPostponement flags every page as belonging to the postponement list.
func (d *Document) MarkPostponement() {
	for i := range d.Pages {
		d.Pages[i].PP = true
	}
}

type pdf2jsonRun struct {
	T string `json:"T"`
}

type pdf2jsonText struct {
	X float64       `json:"x"`
	Y float64       `json:"y"`
	R []pdf2jsonRun `json:"R"`
}

type pdf2jsonPage struct {
	Texts []pdf2jsonText `json:"Texts"`
}

type pdf2jsonImage struct {
	Pages []pdf2jsonPage `json:"Pages"`
}

type pdf2jsonRoot struct {
	FormImage *pdf2jsonImage `json:"formImage"`
	Pages     []pdf2jsonPage `json:"Pages"`
}

// DecodePDF2JSON decodes pdf2json output into a Document. It accepts the
// array-wrapped stream form, a {"formImage": ...} object, or a bare object
// with top-level Pages. Text runs are URL-unescaped.
func DecodePDF2JSON(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "parser: read token document")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, eris.New("parser: empty token document")
	}

	var root pdf2jsonRoot
	if raw[0] == '[' {
		var roots []pdf2jsonRoot
		if err := json.Unmarshal(raw, &roots); err != nil {
			return nil, eris.Wrap(err, "parser: decode token document")
		}
		if len(roots) == 0 {
			return &Document{}, nil
		}
		root = roots[0]
	} else if err := json.Unmarshal(raw, &root); err != nil {
		return nil, eris.Wrap(err, "parser: decode token document")
	}

	pages := root.Pages
	if root.FormImage != nil {
		pages = root.FormImage.Pages
	}

	doc := &Document{Pages: make([]Page, 0, len(pages))}
	for _, p := range pages {
		page := Page{Texts: make([]Token, 0, len(p.Texts))}
		for _, t := range p.Texts {
			tok := Token{X: t.X, Y: t.Y}
			if len(t.R) > 0 {
				tok.Text = unescape(t.R[0].T)
			}
			page.Texts = append(page.Texts, tok)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

// unescape decodes percent-encoded text, keeping the raw value when it is
// not valid percent-encoding.
func unescape(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
