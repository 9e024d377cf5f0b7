// Package gateway orchestrates a battle request end to end: prompt
// moderation and routing, matchup sampling, concurrent dispatch to two
// System Servers with one-resample-per-failing-side retry, blob/document
// persistence, and vote recording with a listen-time precondition.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/genclient"
	"github.com/musicarena/fabric/blobstore"
	"github.com/musicarena/fabric/docstore"
	"github.com/musicarena/fabric/matchup"
	"github.com/musicarena/fabric/o11y"
	"github.com/musicarena/fabric/promptpipeline"
	"github.com/musicarena/fabric/registry"
)

const battlesCollection = "battles"
const audioExt = "mp3"

// BattleRequest is the domain form of a POST /generate_battle request.
type BattleRequest struct {
	Session Session
	User    User
	Prompt  PromptRequest
}

// BattleResponse is the domain form of a POST /generate_battle response.
// Metadata is always redacted: the battle's true pair is revealed only on
// vote.
type BattleResponse struct {
	UUID           string                                   `json:"uuid"`
	AAudioURL      string                                    `json:"a_audio_url"`
	BAudioURL      string                                    `json:"b_audio_url"`
	AMetadata      registry.SystemMetadata                   `json:"a_metadata"`
	BMetadata      registry.SystemMetadata                   `json:"b_metadata"`
	PromptDetailed promptpipeline.DetailedTextToMusicPrompt `json:"prompt_detailed"`
}

// RecordVoteRequest is the domain form of a POST /record_vote request.
type RecordVoteRequest struct {
	BattleUUID string
	Vote       Vote
}

// RecordVoteResponse reveals the true pair once a vote is recorded.
type RecordVoteResponse struct {
	AMetadata    registry.SystemMetadata `json:"a_metadata"`
	BMetadata    registry.SystemMetadata `json:"b_metadata"`
	Acknowledged bool                    `json:"acknowledged"`
}

// Gateway composes the Registry, Prompt Pipeline, Matchup Sampler, Generator
// Clients, and Persistence Adapters into the two battle-lifecycle
// operations.
type Gateway struct {
	registry  *registry.Registry
	pipeline  *promptpipeline.Pipeline
	weights   matchup.Weights
	rand      matchup.Rand
	clients   map[registry.SystemKey]*genclient.Client
	blobs     blobstore.BlobStore
	docs      docstore.DocStore
	logger    *o11y.Logger

	minimumListenTime time.Duration
	flakiness         float64
	prebaked          map[string]PromptRequest

	mu sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMinimumListenTime overrides the default 5s minimum listen threshold.
func WithMinimumListenTime(d time.Duration) Option {
	return func(g *Gateway) { g.minimumListenTime = d }
}

// WithFlakiness sets the test-mode transient-error injection rate in [0,1].
func WithFlakiness(rate float64) Option {
	return func(g *Gateway) { g.flakiness = rate }
}

// WithPrebaked sets the prebaked prompt catalog served by GET /prebaked.
func WithPrebaked(prebaked map[string]PromptRequest) Option {
	return func(g *Gateway) { g.prebaked = prebaked }
}

// WithRand overrides the sampler's random source; tests use a deterministic
// source.
func WithRand(r matchup.Rand) Option {
	return func(g *Gateway) { g.rand = r }
}

// New creates a Gateway. clients must have an entry for every SystemKey the
// registry exposes.
func New(reg *registry.Registry, pipeline *promptpipeline.Pipeline, weights matchup.Weights, clients map[registry.SystemKey]*genclient.Client, blobs blobstore.BlobStore, docs docstore.DocStore, logger *o11y.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		registry:          reg,
		pipeline:          pipeline,
		weights:           weights,
		rand:              defaultRand,
		clients:           clients,
		blobs:             blobs,
		docs:              docs,
		logger:            logger,
		minimumListenTime: 5 * time.Second,
		prebaked:          make(map[string]PromptRequest),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultRand() float64 {
	return float64(time.Now().UnixNano()%1_000_000) / 1_000_000
}

// ListSystems returns every registered SystemKey as [system_tag, variant_tag]
// pairs, lexicographically ordered.
func (g *Gateway) ListSystems() [][2]string {
	keys := g.registry.All()
	out := make([][2]string, len(keys))
	for i, k := range keys {
		out[i] = [2]string{k.SystemTag, k.VariantTag}
	}
	return out
}

// Prebaked returns the configured prebaked prompt catalog.
func (g *Gateway) Prebaked() map[string]PromptRequest {
	return g.prebaked
}

// clientFor resolves the Generator Client for key. Every registry key must
// have a client wired at construction; a missing client is a configuration
// error surfaced as Unreachable rather than a panic.
func (g *Gateway) clientFor(key registry.SystemKey) (*genclient.Client, error) {
	c, ok := g.clients[key]
	if !ok {
		return nil, apperrors.Unreachable("gateway.clientFor", fmt.Errorf("no client configured for %s", key))
	}
	return c, nil
}

// candidateSet computes C = {k in Registry | k.Enabled && prompt_support(k, prompt) = SUPPORTED}.
func (g *Gateway) candidateSet(prompt promptpipeline.DetailedTextToMusicPrompt) []registry.SystemKey {
	wantsLyrics := !prompt.Instrumental
	var out []registry.SystemKey
	for _, k := range g.registry.All() {
		meta, ok := g.registry.Lookup(k)
		if !ok || !meta.Enabled {
			continue
		}
		if registry.PromptSupportLocal(meta, wantsLyrics, prompt.Duration) == registry.Supported {
			out = append(out, k)
		}
	}
	return out
}

// GenerateBattle runs the full POST /generate_battle pipeline.
func (g *Gateway) GenerateBattle(ctx context.Context, req BattleRequest) (*BattleResponse, error) {
	start := time.Now()
	defer func() { o11y.BattleGenerateDuration(ctx, float64(time.Since(start).Milliseconds())) }()

	if err := validateBattleRequest(req); err != nil {
		return nil, err
	}

	if g.flakiness > 0 && g.rand() < g.flakiness {
		return nil, apperrors.Unreachable("gateway.GenerateBattle", fmt.Errorf("injected transient error"))
	}

	moderation, err := g.pipeline.Moderate(ctx, req.Prompt.Prompt)
	if err != nil {
		return nil, err
	}
	if !moderation.Safe {
		return nil, apperrors.PromptRejected("gateway.GenerateBattle", moderation.Reason)
	}

	structuredRaw, err := g.pipeline.Route(ctx, req.Prompt.Prompt, req.Prompt.Duration, req.Prompt.Instrumental)
	if err != nil {
		return nil, err
	}
	structured := toGenclientPrompt(structuredRaw)

	candidates := g.candidateSet(structuredRaw)
	a, b, err := matchup.Sample(candidates, g.weights, g.rand)
	if err != nil {
		return nil, err
	}

	metaA, _ := g.registry.Lookup(a)
	metaB, _ := g.registry.Lookup(b)
	if (metaA.SupportsLyrics || metaB.SupportsLyrics) && !structuredRaw.Instrumental && structuredRaw.Lyrics == nil {
		lyrics, err := g.pipeline.GenerateLyrics(ctx, structuredRaw)
		if err != nil {
			return nil, err
		}
		structured.Lyrics = &lyrics
	}

	finalA, finalB, resultA, resultB, err := g.dispatchPair(ctx, a, b, candidates, structured)
	if err != nil {
		return nil, err
	}

	battleUUID := uuid.New().String()
	aURI, err := g.uploadAudio(ctx, battleUUID, "a", resultA.AudioB64)
	if err != nil {
		return nil, err
	}
	bURI, err := g.uploadAudio(ctx, battleUUID, "b", resultB.AudioB64)
	if err != nil {
		return nil, err
	}

	record := BattleRecord{
		UUID:       battleUUID,
		CreateTime: start,
		Session:    req.Session,
		User:       req.User,
		PromptFree: req.Prompt.Prompt,
		ASystemKey: finalA.String(),
		BSystemKey: finalB.String(),
		AAudioURI:  aURI,
		BAudioURI:  bURI,
		AGenMs:     resultA.Metadata.GenerateMs,
		BGenMs:     resultB.Metadata.GenerateMs,
	}
	doc, err := toDoc(record)
	if err != nil {
		return nil, apperrors.Internal("gateway.GenerateBattle", err)
	}
	if err := g.docs.Create(ctx, battlesCollection, battleUUID, doc); err != nil {
		return nil, err
	}

	finalMetaA, _ := g.registry.Lookup(finalA)
	finalMetaB, _ := g.registry.Lookup(finalB)
	return &BattleResponse{
		UUID:           battleUUID,
		AAudioURL:      aURI,
		BAudioURL:      bURI,
		AMetadata:      finalMetaA.Redacted(),
		BMetadata:      finalMetaB.Redacted(),
		PromptDetailed: structuredRaw,
	}, nil
}

func (g *Gateway) uploadAudio(ctx context.Context, battleUUID, side, audioB64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return "", apperrors.Internal("gateway.uploadAudio", err)
	}
	key := fmt.Sprintf("%s/%s.%s", battleUUID, side, audioExt)
	return g.blobs.Put(ctx, key, data, "audio/mpeg")
}

// dispatchPair runs generate(a) and generate(b) concurrently. If exactly one
// fails, it resamples the failing side once from candidates \ {a, b} and
// retries; if both fail, or the resample also fails, the battle fails.
func (g *Gateway) dispatchPair(ctx context.Context, a, b registry.SystemKey, candidates []registry.SystemKey, prompt genclient.DetailedTextToMusicPrompt) (registry.SystemKey, registry.SystemKey, *genclient.TextToMusicResponse, *genclient.TextToMusicResponse, error) {
	var wg sync.WaitGroup
	var resA, resB generateOutcome
	wg.Add(2)
	go func() { defer wg.Done(); resA = g.generateFor(ctx, a, prompt) }()
	go func() { defer wg.Done(); resB = g.generateFor(ctx, b, prompt) }()
	wg.Wait()

	aFailed := resA.err != nil
	bFailed := resB.err != nil

	switch {
	case !aFailed && !bFailed:
		return a, b, resA.response, resB.response, nil

	case aFailed && bFailed:
		return a, b, nil, nil, apperrors.GenerateFailed("gateway.dispatchPair", fmt.Errorf("both sides failed: a=%v b=%v", resA.err, resB.err))

	case aFailed:
		excluded := map[registry.SystemKey]bool{a: true, b: true}
		replacement, ok := pickReplacement(candidates, excluded)
		if !ok {
			return a, b, nil, nil, apperrors.GenerateFailed("gateway.dispatchPair", fmt.Errorf("side a failed and no replacement available: %w", resA.err))
		}
		retry := g.generateFor(ctx, replacement, prompt)
		if retry.err != nil {
			return a, b, nil, nil, apperrors.GenerateFailed("gateway.dispatchPair", fmt.Errorf("side a resample failed: %w", retry.err))
		}
		return replacement, b, retry.response, resB.response, nil

	default: // bFailed
		excluded := map[registry.SystemKey]bool{a: true, b: true}
		replacement, ok := pickReplacement(candidates, excluded)
		if !ok {
			return a, b, nil, nil, apperrors.GenerateFailed("gateway.dispatchPair", fmt.Errorf("side b failed and no replacement available: %w", resB.err))
		}
		retry := g.generateFor(ctx, replacement, prompt)
		if retry.err != nil {
			return a, b, nil, nil, apperrors.GenerateFailed("gateway.dispatchPair", fmt.Errorf("side b resample failed: %w", retry.err))
		}
		return a, replacement, resA.response, retry.response, nil
	}
}

type generateOutcome struct {
	response *genclient.TextToMusicResponse
	err      error
}

func (g *Gateway) generateFor(ctx context.Context, key registry.SystemKey, prompt genclient.DetailedTextToMusicPrompt) generateOutcome {
	client, err := g.clientFor(key)
	if err != nil {
		return generateOutcome{err: err}
	}
	resp, err := client.Generate(ctx, prompt)
	return generateOutcome{response: resp, err: err}
}

// pickReplacement deterministically picks the first candidate not in
// excluded, in the candidate set's existing (registry) order.
func pickReplacement(candidates []registry.SystemKey, excluded map[registry.SystemKey]bool) (registry.SystemKey, bool) {
	for _, c := range candidates {
		if !excluded[c] {
			return c, true
		}
	}
	return registry.SystemKey{}, false
}

// RecordVote runs the full POST /record_vote pipeline.
func (g *Gateway) RecordVote(ctx context.Context, req RecordVoteRequest) (*RecordVoteResponse, error) {
	doc, version, err := g.docs.Get(ctx, battlesCollection, req.BattleUUID)
	if err != nil {
		return nil, err
	}

	record, err := fromDoc(doc)
	if err != nil {
		return nil, apperrors.Internal("gateway.RecordVote", err)
	}

	asOf := req.Vote.PreferenceTime
	if asOf.IsZero() {
		asOf = time.Now()
	}
	aSeconds := listenSeconds(req.Vote.AListenData, asOf)
	bSeconds := listenSeconds(req.Vote.BListenData, asOf)
	minSeconds := g.minimumListenTime.Seconds()
	if aSeconds < minSeconds || bSeconds < minSeconds {
		return nil, apperrors.InsufficientListenTime("gateway.RecordVote")
	}

	record.Vote = &req.Vote
	patch, err := toDoc(record)
	if err != nil {
		return nil, apperrors.Internal("gateway.RecordVote", err)
	}

	if err := g.docs.Update(ctx, battlesCollection, req.BattleUUID, patch, version); err != nil {
		var appErr *apperrors.AppError
		if asAppError(err, &appErr) && appErr.Code == apperrors.CodeConflict {
			g.logger.Warn(ctx, "vote update raced with a concurrent write; applied last-writer-wins", "battle_uuid", req.BattleUUID)
		} else {
			return nil, err
		}
	}

	aKey, err := registry.ParseSystemKey(record.ASystemKey)
	if err != nil {
		return nil, apperrors.Internal("gateway.RecordVote", err)
	}
	bKey, err := registry.ParseSystemKey(record.BSystemKey)
	if err != nil {
		return nil, apperrors.Internal("gateway.RecordVote", err)
	}
	metaA, _ := g.registry.Lookup(aKey)
	metaB, _ := g.registry.Lookup(bKey)

	return &RecordVoteResponse{
		AMetadata:    metaA,
		BMetadata:    metaB,
		Acknowledged: true,
	}, nil
}

func asAppError(err error, out **apperrors.AppError) bool {
	type unwrapper interface{ Unwrap() error }
	for e := error(err); e != nil; {
		if ae, ok := e.(*apperrors.AppError); ok {
			*out = ae
			return true
		}
		u, ok := e.(unwrapper)
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func validateBattleRequest(req BattleRequest) error {
	if req.Prompt.Prompt == "" {
		return apperrors.Validation("gateway.GenerateBattle", "prompt must not be empty")
	}
	if !req.Session.AckToS {
		return apperrors.Validation("gateway.GenerateBattle", "session must acknowledge terms of service")
	}
	if req.Session.UUID == "" {
		return apperrors.Validation("gateway.GenerateBattle", "session uuid must not be empty")
	}
	return nil
}

func toGenclientPrompt(p promptpipeline.DetailedTextToMusicPrompt) genclient.DetailedTextToMusicPrompt {
	return genclient.DetailedTextToMusicPrompt{
		OverallPrompt: p.OverallPrompt,
		Duration:      p.Duration,
		Instrumental:  p.Instrumental,
		Lyrics:        p.Lyrics,
		LyricsTheme:   p.LyricsTheme,
		LyricsStyle:   p.LyricsStyle,
		Seed:          p.Seed,
	}
}

func toDoc(v any) (docstore.Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc docstore.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDoc(doc docstore.Doc) (BattleRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return BattleRecord{}, err
	}
	var record BattleRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return BattleRecord{}, err
	}
	return record, nil
}
