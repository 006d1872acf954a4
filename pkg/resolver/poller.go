package resolver

import (
	"context"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/phenomenon0/claim-escrow/pkg/escrow"
)

// Engine is the slice of the escrow engine the poller drives.
type Engine interface {
	ClaimsInStatus(status escrow.ClaimStatus) []*escrow.Claim
	LockExpired(now time.Time) []common.Hash
	BeginResolution(claimID common.Hash) error
	ResolveAutomated(claimID common.Hash, v escrow.AutomatedVerdict) (bool, error)
}

// Poller periodically locks expired claims and runs the classifier over
// Locked ones. Resolution is always pushed from here; the engine never waits
// on a verdict.
type Poller struct {
	engine     Engine
	classifier Classifier
	texts      TextSource
	resolver   common.Address
	interval   time.Duration
}

// NewPoller creates a poller identifying itself as resolver on the
// resolutions it records.
func NewPoller(engine Engine, classifier Classifier, texts TextSource, resolver common.Address, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		engine:     engine,
		classifier: classifier,
		texts:      texts,
		resolver:   resolver,
		interval:   interval,
	}
}

// Run sweeps until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("[RESOLVER] Poller running (interval: %s)", p.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[RESOLVER] Poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: lock claims past their deadline, then classify
// every Locked claim whose text is known.
func (p *Poller) Sweep(ctx context.Context) {
	for _, id := range p.engine.LockExpired(time.Now()) {
		log.Printf("[RESOLVER] Locked expired claim %s", id.Hex())
	}

	// Resolving claims are retried: a crashed or failed classification run
	// must not strand them.
	pending := p.engine.ClaimsInStatus(escrow.StatusLocked)
	pending = append(pending, p.engine.ClaimsInStatus(escrow.StatusResolving)...)
	for _, claim := range pending {
		if ctx.Err() != nil {
			return
		}
		p.resolveOne(ctx, claim)
	}
}

func (p *Poller) resolveOne(ctx context.Context, claim *escrow.Claim) {
	if p.classifier == nil {
		return
	}

	text, ok := p.texts.ClaimText(claim.ID.Hex())
	if !ok {
		// No text registered for this claim; a human arbiter will have to
		// take it once it is disputed by other means.
		return
	}

	if claim.Status == escrow.StatusLocked {
		if err := p.engine.BeginResolution(claim.ID); err != nil {
			log.Printf("[RESOLVER] Skip claim %s: %v", claim.ID.Hex(), err)
			return
		}
	}

	verdict, err := p.classifier.Classify(ctx, text)
	if err != nil {
		log.Printf("[RESOLVER] Classify claim %s: %v", claim.ID.Hex(), err)
		return
	}

	resolved, err := p.engine.ResolveAutomated(claim.ID, escrow.AutomatedVerdict{
		Verdict:    verdict.Verdict,
		Confidence: verdict.Confidence,
		Resolver:   p.resolver,
		Evidence:   verdict.Evidence,
		Reason:     verdict.Reason,
	})
	if err != nil {
		log.Printf("[RESOLVER] Resolve claim %s: %v", claim.ID.Hex(), err)
		return
	}

	if resolved {
		log.Printf("[RESOLVER] Claim %s resolved (verdict=%v, confidence=%d)",
			claim.ID.Hex(), verdict.Verdict, verdict.Confidence)
	} else {
		log.Printf("[RESOLVER] Claim %s disputed (confidence=%d below threshold)",
			claim.ID.Hex(), verdict.Confidence)
	}
}
