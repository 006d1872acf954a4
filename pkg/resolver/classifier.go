// Package resolver drives automated claim resolution: a Classifier produces
// a verdict with a confidence score for a claim's text, and the Poller feeds
// those verdicts into the escrow engine. Low-confidence verdicts land in
// Disputed for a human arbiter; the classifier itself is always an external
// capability.
package resolver

import "context"

// Verdict is a classifier's judgment of a claim.
type Verdict struct {
	Verdict    bool   `json:"verdict"`
	Confidence uint8  `json:"confidence"` // 0-100
	Evidence   string `json:"evidence_cid,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Classifier judges whether a claim's text is true.
type Classifier interface {
	Classify(ctx context.Context, claimText string) (*Verdict, error)
}

// TextSource maps claim ids back to the raw claim text. The engine only ever
// stores the fingerprint, so the text has to come from whoever accepted the
// claim submission.
type TextSource interface {
	ClaimText(claimID string) (string, bool)
}
