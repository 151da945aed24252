// Package pipeline wires the five decision-pipeline stages (biomarker
// normalization, safety gating, constraint translation, catalog governance
// and routing, matching) into the single-request orchestrator described by
// the data model, grounded on the teacher's top-level
// ClassifierService.ClassifyVariant orchestration pattern: validate,
// execute each stage in order, time the run, log structured fields after
// each stage and at the end.
package pipeline

import (
	"context"
	"time"

	"github.com/genomax/protocol-engine/internal/bloodwork"
	"github.com/genomax/protocol-engine/internal/catalogstore"
	"github.com/genomax/protocol-engine/internal/constraints"
	"github.com/genomax/protocol-engine/internal/domain"
	"github.com/genomax/protocol-engine/internal/governance"
	"github.com/genomax/protocol-engine/internal/matching"
	"github.com/genomax/protocol-engine/internal/obslog"
	"github.com/genomax/protocol-engine/internal/routing"
	"github.com/genomax/protocol-engine/internal/routingcache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RoutingCache is the narrow interface the pipeline needs from
// internal/routingcache.Cache: a lookup/store pair keyed by routing input
// hash, invalidated whenever the cached catalog version no longer matches
// the active snapshot. A nil RoutingCache disables the optimization without
// changing the computed result.
type RoutingCache interface {
	Get(ctx context.Context, inputHash, catalogVersion string) (domain.RoutingResult, bool, error)
	Set(ctx context.Context, inputHash, catalogVersion string, result domain.RoutingResult) error
}

// Pipeline holds the process-wide, read-only stage implementations plus a
// handle to the catalog store. A Pipeline is safe for concurrent use: each
// request runs single-threaded through stages A through E with no shared
// mutable request-path state, per the concurrency model.
type Pipeline struct {
	log         *logrus.Logger
	normalizer  *bloodwork.Normalizer
	gates       *bloodwork.GateEngine
	translator  *constraints.Translator
	validator   *governance.Validator
	router      *routing.Router
	matcher     *matching.Matcher
	catalog     *catalogstore.Store
	routeCache  RoutingCache
}

// New builds a Pipeline with no routing-result cache. gateEngine
// construction can fail at startup if the gate registry references an
// unknown marker; that failure must propagate to process boot, never to a
// request.
func New(log *logrus.Logger, catalog *catalogstore.Store) (*Pipeline, error) {
	return NewWithCache(log, catalog, nil)
}

// NewWithCache builds a Pipeline backed by an optional Redis routing-result
// cache (internal/routingcache). Passing a nil cache is equivalent to New;
// routing still runs in full on every request, just without memoization of
// previously-seen (valid-SKU-set, translated-constraints) pairs.
func NewWithCache(log *logrus.Logger, catalog *catalogstore.Store, cache RoutingCache) (*Pipeline, error) {
	gateEngine, err := bloodwork.NewGateEngine(log)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		log:        log,
		normalizer: bloodwork.NewNormalizer(log),
		gates:      gateEngine,
		translator: constraints.NewTranslator(),
		validator:  governance.NewValidator(),
		router:     routing.NewRouter(),
		matcher:    matching.NewMatcher(),
		catalog:    catalog,
		routeCache: cache,
	}, nil
}

// Run executes stages A through E for one request. It never returns a
// partial protocol: any deadline expiry or invariant violation aborts the
// request with a typed error instead.
func (p *Pipeline) Run(ctx context.Context, req domain.PipelineRequest) (*domain.PipelineResult, error) {
	runID := uuid.NewString()
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	age := 0
	if req.User.Age != nil {
		age = *req.User.Age
	}

	if err := checkDeadline(ctx, runID); err != nil {
		return nil, err
	}

	// Stage A: biomarker normalization.
	normResult := p.normalizer.Normalize(req.Panel, req.User.Sex, age)
	p.log.WithFields(obslog.StageFields(runID, "normalize", domain.StableHash(normResult.Normalized))).WithFields(logrus.Fields{
		"normalized": len(normResult.Normalized), "unknown": len(normResult.Unknown),
	}).Info("stage complete")

	if err := checkDeadline(ctx, runID); err != nil {
		return nil, err
	}

	// Stage B: safety gate evaluation.
	gateResult := p.gates.Evaluate(normResult.Normalized, req.User.Sex, age)
	p.log.WithFields(obslog.StageFields(runID, "gates", domain.StableHash(gateResult.ConstraintCodes))).WithFields(logrus.Fields{
		"active_gates": len(gateResult.ActiveGates), "constraint_codes": len(gateResult.ConstraintCodes),
	}).Info("stage complete")

	if err := checkDeadline(ctx, runID); err != nil {
		return nil, err
	}

	// Stage C: pure constraint translation.
	translated := p.translator.Translate(gateResult.ConstraintCodes, req.User.Sex)
	if err := verifyDominanceInvariant(translated); err != nil {
		return nil, err.WithRunID(runID)
	}
	p.log.WithFields(obslog.StageFields(runID, "translate", translated.OutputHash)).WithFields(logrus.Fields{
		"blocked_ingredients": len(translated.BlockedIngredients), "recommended_ingredients": len(translated.RecommendedIngredients),
	}).Info("stage complete")

	if err := checkDeadline(ctx, runID); err != nil {
		return nil, err
	}

	// Stage D: catalog governance + routing.
	snapshot, err := p.catalog.Snapshot(ctx)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrCatalogUnavailable, err.Error()).WithRunID(runID)
	}

	governanceResult := p.validator.ValidateSnapshot(activeSkus(snapshot))

	validSkuIDs := make([]string, 0, len(governanceResult.Valid))
	for _, sku := range governanceResult.Valid {
		validSkuIDs = append(validSkuIDs, sku.SkuID)
	}
	routingInputHash := routingcache.InputHash(validSkuIDs, translated.OutputHash, req.Requirements)

	routingResult, fromCache := p.lookupRoutingCache(ctx, routingInputHash, snapshot.Version)
	if !fromCache {
		routingResult = p.router.Route(governanceResult.Valid, translated, req.Requirements)
		p.storeRoutingCache(ctx, routingInputHash, snapshot.Version, routingResult)
	}
	if err := verifyRoutingInvariant(routingResult, translated); err != nil {
		return nil, err.WithRunID(runID)
	}
	p.log.WithFields(obslog.StageFields(runID, "routing", routingResult.RoutingHash)).WithFields(logrus.Fields{
		"allowed": routingResult.Audit.AllowedCount, "blocked": routingResult.Audit.BlockedCount, "from_cache": fromCache,
	}).Info("stage complete")

	if err := checkDeadline(ctx, runID); err != nil {
		return nil, err
	}

	// Stage E: matching.
	matchResult := p.matcher.Match(routingResult.Allowed, req.Intents, req.User, req.Requirements)
	if err := verifyProtocolInvariant(matchResult, routingResult); err != nil {
		return nil, err.WithRunID(runID)
	}
	p.log.WithFields(obslog.StageFields(runID, "matching", matchResult.MatchHash)).WithFields(logrus.Fields{
		"protocol_size": len(matchResult.Protocol), "unmatched": len(matchResult.UnmatchedIntents),
	}).Info("stage complete")

	versions := domain.VersionSet{
		ReferenceRanges: bloodwork.RulesetVersion,
		GateRegistry:    bloodwork.GateRegistryVersion,
		Mapping:         constraints.MappingVersion,
		Catalog:         snapshot.Version,
		Routing:         "routing_v1",
		Matching:        "matching_v1",
	}

	pipelineHash := domain.StableHash(map[string]interface{}{
		"output_hash":  translated.OutputHash,
		"routing_hash": routingResult.RoutingHash,
		"match_hash":   matchResult.MatchHash,
	})

	result := &domain.PipelineResult{
		RunID:                   runID,
		NormalizedMarkers:       normResult.Normalized,
		UnknownMarkers:          normResult.Unknown,
		ComputedMarkers:         normResult.Computed,
		ActiveGates:             gateResult.ActiveGates,
		ConstraintCodes:         gateResult.ConstraintCodes,
		TranslatedConstraints:   translated,
		Routing:                 routingResult,
		Protocol:                matchResult.Protocol,
		UnmatchedIntents:        matchResult.UnmatchedIntents,
		RequirementsUnfulfilled: matchResult.RequirementsUnfulfilled,
		PipelineHash:            pipelineHash,
		Versions:                versions,
		ProcessingTime:          time.Since(start),
	}

	p.log.WithFields(logrus.Fields{
		"run_id": runID, "pipeline_hash": pipelineHash, "duration_ms": result.ProcessingTime.Milliseconds(),
	}).Info("pipeline run complete")

	return result, nil
}

// lookupRoutingCache consults the optional routing-result cache. A cache
// miss, a nil cache, or a lookup error (logged, not fatal) all route
// through the router itself; the cache is purely an optimization and never
// changes the computed result, since it is invalidated whenever the stored
// catalog version diverges from the active snapshot.
func (p *Pipeline) lookupRoutingCache(ctx context.Context, inputHash, catalogVersion string) (domain.RoutingResult, bool) {
	if p.routeCache == nil {
		return domain.RoutingResult{}, false
	}
	result, hit, err := p.routeCache.Get(ctx, inputHash, catalogVersion)
	if err != nil {
		p.log.WithError(err).Warn("routing cache lookup failed, falling back to live routing")
		return domain.RoutingResult{}, false
	}
	return result, hit
}

func (p *Pipeline) storeRoutingCache(ctx context.Context, inputHash, catalogVersion string, result domain.RoutingResult) {
	if p.routeCache == nil {
		return
	}
	if err := p.routeCache.Set(ctx, inputHash, catalogVersion, result); err != nil {
		p.log.WithError(err).Warn("routing cache store failed")
	}
}

func activeSkus(snapshot catalogstore.Snapshot) []domain.CatalogSKU {
	var out []domain.CatalogSKU
	for _, sku := range snapshot.Skus {
		if sku.GovernanceStatus == domain.GovernanceActive {
			out = append(out, sku)
		}
	}
	return out
}

func checkDeadline(ctx context.Context, runID string) error {
	select {
	case <-ctx.Done():
		return domain.NewPipelineError(domain.ErrDeadlineExceeded, "request deadline exceeded").WithRunID(runID)
	default:
		return nil
	}
}

func validateRequest(req domain.PipelineRequest) error {
	if req.User.Sex != "male" && req.User.Sex != "female" && req.User.Sex != "" {
		return domain.NewPipelineError(domain.ErrInvalidInput, "user.sex must be male or female").WithField("user.sex")
	}
	for i, entry := range req.Panel {
		if entry.Code == "" {
			return domain.NewPipelineError(domain.ErrInvalidInput, "panel entry missing code").WithField(indexedField("panel", i, "code"))
		}
	}
	for i, intent := range req.Intents {
		if intent.Code == "" {
			return domain.NewPipelineError(domain.ErrInvalidInput, "intent missing code").WithField(indexedField("intents", i, "code"))
		}
		if intent.Priority < 1 {
			return domain.NewPipelineError(domain.ErrInvalidInput, "intent priority must be >= 1").WithField(indexedField("intents", i, "priority"))
		}
	}
	return nil
}

func indexedField(collection string, idx int, field string) string {
	return collection + "[" + itoa(idx) + "]." + field
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// verifyDominanceInvariant guards §8 invariant 4: blocked and recommended
// ingredient sets must never overlap after translation.
func verifyDominanceInvariant(t domain.TranslatedConstraints) *domain.PipelineError {
	if len(domain.SetIntersect(t.BlockedIngredients, t.RecommendedIngredients)) > 0 {
		return domain.NewPipelineError(domain.ErrInternalInvariant, "blocked and recommended ingredient sets overlap after translation")
	}
	return nil
}

// verifyRoutingInvariant guards §8 invariant 2: any SKU whose ingredient
// tags intersect the blocked-ingredient set must appear in routing.blocked,
// never in routing.allowed.
func verifyRoutingInvariant(result domain.RoutingResult, t domain.TranslatedConstraints) *domain.PipelineError {
	blockedLower := domain.ToLowerSet(t.BlockedIngredients)
	for _, sku := range result.Allowed {
		if len(domain.SetIntersect(blockedLower, domain.ToLowerSet(sku.IngredientTags))) > 0 {
			return domain.NewPipelineError(domain.ErrInternalInvariant, "allowed SKU carries a blocked ingredient tag")
		}
	}
	return nil
}

// verifyProtocolInvariant guards §8 invariant 3: every protocol item's
// sku_id must be present in routing.allowed.
func verifyProtocolInvariant(match domain.MatchingResult, routing domain.RoutingResult) *domain.PipelineError {
	allowedIDs := make(map[string]struct{}, len(routing.Allowed))
	for _, sku := range routing.Allowed {
		allowedIDs[sku.SkuID] = struct{}{}
	}
	for _, item := range match.Protocol {
		if _, ok := allowedIDs[item.SkuID]; !ok {
			return domain.NewPipelineError(domain.ErrInternalInvariant, "protocol item not present in routing.allowed")
		}
	}
	return nil
}

// AuditRecords builds the per-stage append-only audit rows for a completed
// run. The pipeline only produces these value types; persisting them is the
// transport layer's job, performed after the response is already formed per
// §5's fire-and-forget audit-write rule.
func AuditRecords(result *domain.PipelineResult) []domain.AuditRecord {
	now := time.Now().UTC()
	return []domain.AuditRecord{
		{
			RunID:      result.RunID,
			Stage:      "normalize",
			InputHash:  "",
			OutputHash: domain.StableHash(result.NormalizedMarkers),
			Counts: map[string]int{
				"normalized": len(result.NormalizedMarkers),
				"unknown":    len(result.UnknownMarkers),
				"computed":   len(result.ComputedMarkers),
			},
			CreatedAt: now,
		},
		{
			RunID:      result.RunID,
			Stage:      "gates",
			OutputHash: domain.StableHash(result.ConstraintCodes),
			Counts: map[string]int{
				"active_gates":     len(result.ActiveGates),
				"constraint_codes": len(result.ConstraintCodes),
			},
			CreatedAt: now,
		},
		{
			RunID:      result.RunID,
			Stage:      "translate",
			InputHash:  result.TranslatedConstraints.InputHash,
			OutputHash: result.TranslatedConstraints.OutputHash,
			Counts: map[string]int{
				"blocked_ingredients": len(result.TranslatedConstraints.BlockedIngredients),
				"caution_flags":       len(result.TranslatedConstraints.CautionFlags),
			},
			CreatedAt: now,
		},
		{
			RunID:      result.RunID,
			Stage:      "routing",
			OutputHash: result.Routing.RoutingHash,
			Counts: map[string]int{
				"allowed": len(result.Routing.Allowed),
				"blocked": len(result.Routing.Blocked),
			},
			CreatedAt: now,
		},
		{
			RunID:      result.RunID,
			Stage:      "matching",
			OutputHash: result.PipelineHash,
			Counts: map[string]int{
				"protocol":          len(result.Protocol),
				"unmatched_intents": len(result.UnmatchedIntents),
			},
			CreatedAt: now,
		},
	}
}
