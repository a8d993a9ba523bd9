package model

import (
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

// MinDocumentFieldLength is the minimum length of a document name and type
const MinDocumentFieldLength = 2

// Document is a supporting file linked to a risk
type Document struct {
	ID     int64  `json:"id"`
	RiskID int64  `json:"riskId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Type   string `json:"type"`
}

// DocumentPage is one page of documents of a risk
type DocumentPage struct {
	Data []*Document `json:"data"`
	Meta PageMeta    `json:"meta"`
}

// CreateDocumentInput is the body of POST /documents
type CreateDocumentInput struct {
	RiskID int64  `json:"riskId"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Type   string `json:"type"`
}

func (in CreateDocumentInput) Validate() error {
	if in.RiskID <= 0 {
		return goerr.Wrap(ErrInvalidRiskID, "risk ID is required", goerr.V(RiskIDKey, in.RiskID))
	}
	if !hasMinLength(in.Name, MinDocumentFieldLength) {
		return goerr.Wrap(ErrMissingRequired, "name is required", goerr.V(FieldKey, "name"))
	}
	if !IsAbsoluteURL(in.URL) {
		return goerr.Wrap(ErrInvalidURL, "document URL is invalid",
			goerr.V(FieldKey, "url"), goerr.V(FieldValueKey, in.URL))
	}
	if !hasMinLength(in.Type, MinDocumentFieldLength) {
		return goerr.Wrap(ErrMissingRequired, "type is required", goerr.V(FieldKey, "type"))
	}
	return nil
}

func hasMinLength(s string, n int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) >= n
}
