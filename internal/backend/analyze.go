// This file implements the analyze upload: one multipart image field, the
// slip bytes forwarded as-is.
package backend

import (
	"bytes"
	"context"
	"mime/multipart"

	"github.com/slipsight/slipsight/internal/domain"
)

// SlipUpload is a validated bet-slip screenshot ready for submission.
type SlipUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AnalyzeSlip submits a slip image for analysis.
//
// A 403 carrying the upgrade marker surfaces as an EPAYMENT domain error,
// which the orchestrator treats as authoritative over any local gate ALLOW.
func (c *Client) AnalyzeSlip(ctx context.Context, token string, upload SlipUpload) (*domain.BetAnalysis, error) {
	const op = "backend.analyze"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", upload.Filename)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to build upload body")
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, domain.Internal(err, op, "failed to build upload body")
	}
	if err := mw.Close(); err != nil {
		return nil, domain.Internal(err, op, "failed to build upload body")
	}

	var out domain.BetAnalysis
	if err := c.do(ctx, op, "POST", "/analyze", token, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
