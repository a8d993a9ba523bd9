package riskapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

const (
	problemContentType = "application/problem+json"
	maxErrorBodySize   = 1 << 20
)

// Normalize maps a failed exchange to the client side error shape. It is
// total: a missing response gives a network error (status 0), a response with
// a problem document gives the parsed problem, anything else gives the status
// with a generic message.
func Normalize(resp *http.Response, transportErr error) *model.APIError {
	if resp == nil {
		msg := "no response received"
		if transportErr != nil {
			msg = transportErr.Error()
		}
		return &model.APIError{Status: 0, Message: msg}
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	}
	return normalizeBody(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func normalizeBody(status int, contentType string, body []byte) *model.APIError {
	apiErr := &model.APIError{
		Status: status,
		Title:  http.StatusText(status),
	}

	if problem := parseProblem(contentType, body); problem != nil {
		apiErr.Problem = problem
		if problem.Title != "" {
			apiErr.Title = problem.Title
		}
		apiErr.Message = apiErr.Title
		if apiErr.Message == "" {
			apiErr.Message = genericMessage(status)
		}
		return apiErr
	}

	apiErr.Message = genericMessage(status)
	return apiErr
}

func genericMessage(status int) string {
	return fmt.Sprintf("request failed with status %d", status)
}

// parseProblem accepts application/problem+json bodies, and plain JSON bodies
// that look like a problem document (have a title or a type)
func parseProblem(contentType string, body []byte) *model.ProblemDetails {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	isProblem := mediaType == problemContentType
	isJSON := isProblem || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
	if !isJSON {
		return nil
	}

	var problem model.ProblemDetails
	if err := json.Unmarshal(body, &problem); err != nil {
		return nil
	}
	if !isProblem && problem.Title == "" && problem.Type == "" {
		return nil
	}
	return &problem
}
