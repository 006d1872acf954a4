// escrowd is the claim-escrow daemon. It serves the wagering escrow API,
// streams claim lifecycle events over WebSocket, exposes Prometheus metrics,
// and runs the automated resolver loop.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/phenomenon0/claim-escrow/pkg/escrow"
	"github.com/phenomenon0/claim-escrow/pkg/funds"
	"github.com/phenomenon0/claim-escrow/pkg/metrics"
	"github.com/phenomenon0/claim-escrow/pkg/resolver"
	"github.com/phenomenon0/claim-escrow/pkg/store"
	"github.com/phenomenon0/claim-escrow/pkg/streaming"
)

var (
	// Flags
	httpAddr        = flag.String("http", ":8080", "HTTP server address")
	dataDir         = flag.String("data", "", "Pebble data directory (empty = in-memory only)")
	treasuryAddr    = flag.String("treasury", "0x0000000000000000000000000000000000000Fee", "Protocol treasury address")
	resolverAddr    = flag.String("resolver", "0x0000000000000000000000000000000000000b07", "Identity recorded on automated resolutions")
	webhookURL      = flag.String("webhook", "", "Classifier webhook URL (or CLASSIFIER_WEBHOOK env)")
	openaiModel     = flag.String("openai-model", "", "OpenAI model for classification (requires OPENAI_API_KEY)")
	resolveInterval = flag.Duration("resolve-interval", 30*time.Second, "Resolver sweep interval")
	classifierRPS   = flag.Float64("classifier-rps", 0.5, "Classifier calls per second")
	faucetAmount    = flag.Uint64("faucet", 1_000_000_000, "Max units per faucet request (0 disables the faucet)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting claim-escrow daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	daemon, err := newDaemon()
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}
	defer daemon.close()

	go daemon.hub.Run()
	go daemon.poller.Run(ctx)
	go daemon.serveHTTP()

	log.Printf("Daemon running (http=%s, data=%q)", *httpAddr, *dataDir)
	log.Println("Press Ctrl+C to stop")

	<-sigCh
	log.Println("Shutting down...")
	cancel()

	counts := daemon.stateCounts()
	log.Printf("Final state: %v", counts)
	log.Println("Goodbye!")
}

// claimTexts maps claim ids to the raw claim text submitted at open time.
// The engine only ever keeps the fingerprint; the resolver needs the text.
type claimTexts struct {
	mu    sync.RWMutex
	texts map[string]string
}

func newClaimTexts() *claimTexts {
	return &claimTexts{texts: make(map[string]string)}
}

func (c *claimTexts) put(claimID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[claimID] = text
}

func (c *claimTexts) ClaimText(claimID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.texts[claimID]
	return text, ok
}

type escrowDaemon struct {
	bank    *funds.Bank
	engine  *escrow.Engine
	store   *store.ClaimStore
	hub     *streaming.Hub
	metrics *metrics.EscrowMetrics
	poller  *resolver.Poller
	texts   *claimTexts
}

func newDaemon() (*escrowDaemon, error) {
	d := &escrowDaemon{
		bank:    funds.NewBank(),
		hub:     streaming.NewHub(),
		metrics: metrics.NewEscrowMetrics(),
		texts:   newClaimTexts(),
	}

	treasury := common.HexToAddress(*treasuryAddr)
	d.engine = escrow.NewEngine(d.bank, treasury)

	if *dataDir != "" {
		s, err := store.Open(*dataDir)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		d.store = s
		d.engine.SetStore(s)

		claims, err := s.LoadClaims()
		if err != nil {
			return nil, fmt.Errorf("load claims: %w", err)
		}
		d.engine.Restore(claims)
		log.Printf("Restored %d claims from %s", len(claims), *dataDir)
	}

	// Engine callbacks feed the stream and the metrics.
	d.engine.OnClaim(func(c *escrow.Claim) {
		d.hub.BroadcastClaim(c)
		d.metrics.UpdateClaimStates(d.stateCounts())
	})
	d.engine.OnResolution(func(c *escrow.Claim) {
		d.hub.BroadcastResolution(c)
		d.metrics.UpdateClaimStates(d.stateCounts())
		if c.Resolution != nil {
			d.metrics.RecordResolution(c.Resolution.Method.String(), "resolved", c.Resolution.Confidence)
		} else {
			d.metrics.RecordResolution(escrow.MethodAutomated.String(), "disputed", 0)
		}
	})
	d.engine.OnPayout(func(c *escrow.Claim, receipt *escrow.PayoutReceipt) {
		d.hub.BroadcastPayout(receipt)
		d.metrics.RecordPayout(receipt.Side.String(), receipt.Net, receipt.Fee)
	})

	classifier, err := d.newClassifier()
	if err != nil {
		return nil, err
	}

	d.poller = resolver.NewPoller(
		d.engine,
		classifier,
		d.texts,
		common.HexToAddress(*resolverAddr),
		*resolveInterval,
	)

	return d, nil
}

func (d *escrowDaemon) newClassifier() (resolver.Classifier, error) {
	webhook := *webhookURL
	if webhook == "" {
		webhook = os.Getenv("CLASSIFIER_WEBHOOK")
	}
	if webhook != "" {
		log.Printf("Classifier: webhook (%s)", webhook)
		return d.instrument("webhook", resolver.NewWebhookClassifier(webhook, *classifierRPS)), nil
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c, err := resolver.NewOpenAIClassifier(key, *openaiModel, *classifierRPS)
		if err != nil {
			return nil, fmt.Errorf("create OpenAI classifier: %w", err)
		}
		log.Println("Classifier: OpenAI")
		return d.instrument("openai", c), nil
	}

	log.Println("No classifier configured - claims will wait for human arbitration")
	return nil, nil
}

// instrumentedClassifier wraps a classifier with latency and error metrics.
type instrumentedClassifier struct {
	backend string
	inner   resolver.Classifier
	metrics *metrics.EscrowMetrics
}

func (d *escrowDaemon) instrument(backend string, inner resolver.Classifier) resolver.Classifier {
	return &instrumentedClassifier{backend: backend, inner: inner, metrics: d.metrics}
}

func (ic *instrumentedClassifier) Classify(ctx context.Context, claimText string) (*resolver.Verdict, error) {
	start := time.Now()
	verdict, err := ic.inner.Classify(ctx, claimText)
	ic.metrics.RecordClassifierLatency(ic.backend, time.Since(start).Seconds())
	if err != nil {
		ic.metrics.RecordClassifierError(ic.backend)
	}
	return verdict, err
}

func (d *escrowDaemon) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("Close store: %v", err)
		}
	}
}

func (d *escrowDaemon) stateCounts() map[string]int {
	counts := make(map[string]int)
	for _, c := range d.engine.Claims() {
		counts[c.Status.String()]++
	}
	return counts
}

// --- HTTP API ---

func (d *escrowDaemon) serveHTTP() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /claims", d.handleOpenClaim)
	mux.HandleFunc("GET /claims", d.handleListClaims)
	mux.HandleFunc("GET /claims/{id}", d.handleGetClaim)
	mux.HandleFunc("GET /claims/{id}/stats", d.handleClaimStats)
	mux.HandleFunc("POST /claims/{id}/join", d.handleJoin)
	mux.HandleFunc("POST /claims/{id}/lock", d.handleLock)
	mux.HandleFunc("POST /claims/{id}/resolve", d.handleResolveHuman)
	mux.HandleFunc("POST /claims/{id}/payout", d.handlePayout)

	mux.HandleFunc("POST /faucet", d.handleFaucet)
	mux.HandleFunc("GET /balances/{account}", d.handleBalance)

	mux.Handle("/metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", d.hub.ServeWS)

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("HTTP server listening on %s", *httpAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

func (d *escrowDaemon) handleOpenClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator      string `json:"creator"`
		Text         string `json:"text"`
		Deadline     int64  `json:"deadline"` // unix seconds, 0 = none
		Category     string `json:"category"`
		Subcategory  string `json:"subcategory"`
		InitialStake uint64 `json:"initial_stake"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	creator, err := parseAddress(req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("claim text is required"))
		return
	}

	var deadline time.Time
	if req.Deadline > 0 {
		deadline = time.Unix(req.Deadline, 0)
	}

	claim, err := d.engine.OpenClaim(r.Context(), &escrow.OpenClaimRequest{
		Creator:      creator,
		Fingerprint:  escrow.Fingerprint(req.Text),
		Deadline:     deadline,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		InitialStake: req.InitialStake,
	})
	if err != nil {
		writeEscrowError(w, err)
		return
	}

	d.texts.put(claim.ID.Hex(), req.Text)
	d.metrics.RecordClaimOpened(claim.Category)
	d.metrics.RecordJoin(escrow.SideA.String(), req.InitialStake, escrow.OddsScale)

	writeJSON(w, http.StatusCreated, claim)
}

func (d *escrowDaemon) handleListClaims(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.engine.Claims())
}

func (d *escrowDaemon) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	claim, err := d.engine.GetClaim(id)
	if err != nil {
		writeEscrowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (d *escrowDaemon) handleClaimStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stats, err := d.engine.Stats(id)
	if err != nil {
		writeEscrowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *escrowDaemon) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Side        string `json:"side"`
		Participant string `json:"participant"`
		Amount      uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	participant, err := parseAddress(req.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	index, odds, err := d.engine.Join(r.Context(), id, side, participant, req.Amount)
	if err != nil {
		writeEscrowError(w, err)
		return
	}

	d.metrics.RecordJoin(side.String(), req.Amount, odds)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claim_id":    id.Hex(),
		"side":        side.String(),
		"entry_index": index,
		"odds":        odds,
	})
}

func (d *escrowDaemon) handleLock(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := d.engine.Lock(id); err != nil {
		writeEscrowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": escrow.StatusLocked.String()})
}

func (d *escrowDaemon) handleResolveHuman(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Verdict bool   `json:"verdict"`
		Arbiter string `json:"arbiter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	arbiter, err := parseAddress(req.Arbiter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := d.engine.ResolveHuman(id, req.Verdict, arbiter); err != nil {
		writeEscrowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": escrow.StatusResolved.String()})
}

func (d *escrowDaemon) handlePayout(w http.ResponseWriter, r *http.Request) {
	id, err := parseClaimID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req struct {
		Side       string `json:"side"`
		EntryIndex int    `json:"entry_index"`
		Caller     string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := d.engine.ClaimPayout(r.Context(), id, side, req.EntryIndex, caller)
	if err != nil {
		writeEscrowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (d *escrowDaemon) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if *faucetAmount == 0 {
		writeError(w, http.StatusForbidden, fmt.Errorf("faucet is disabled"))
		return
	}

	var req struct {
		Account string `json:"account"`
		Amount  uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount == 0 || req.Amount > *faucetAmount {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be 1..%d", *faucetAmount))
		return
	}

	d.bank.Deposit(account, req.Amount)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account.Hex(),
		"balance": d.bank.BalanceOf(account),
	})
}

func (d *escrowDaemon) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(r.PathValue("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": account.Hex(),
		"balance": d.bank.BalanceOf(account),
	})
}

// --- Helpers ---

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseClaimID(s string) (common.Hash, error) {
	b, err := decodeHash(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid claim id %q", s)
	}
	return b, nil
}

func decodeHash(s string) (common.Hash, error) {
	var h common.Hash
	if len(s) != 2+2*common.HashLength || s[:2] != "0x" {
		return h, fmt.Errorf("want 0x-prefixed 32-byte hex")
	}
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return h, err
	}
	return h, nil
}

func parseSide(s string) (escrow.Side, error) {
	switch s {
	case "A", "a":
		return escrow.SideA, nil
	case "B", "b":
		return escrow.SideB, nil
	default:
		return 0, fmt.Errorf("invalid side %q (want A or B)", s)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeEscrowError maps engine errors to HTTP status codes.
func writeEscrowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrClaimNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, escrow.ErrDuplicateClaim),
		errors.Is(err, escrow.ErrClaimNotOpen),
		errors.Is(err, escrow.ErrInvalidStatus),
		errors.Is(err, escrow.ErrNotResolved),
		errors.Is(err, escrow.ErrPayoutAlreadyClaimed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, escrow.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, escrow.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, funds.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
