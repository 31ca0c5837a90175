package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tracebrief/internal/config"
	"tracebrief/internal/logger"
	"tracebrief/internal/telemetry"
	"tracebrief/models"
)

// Generator is the slice of the model client the brief service needs
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// MalformedResponseError is returned when the model's output still cannot
// be parsed after the corrective re-request. Raw carries the model output
// verbatim so routes can surface it instead of swallowing it.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return "model returned malformed brief JSON"
}

// briefPayload mirrors the JSON contract the prompt asks for
type briefPayload struct {
	Summary struct {
		HighLevelSummary string `json:"high_level_summary"`
		Sections         []struct {
			Title     string `json:"title"`
			KeyPoints []struct {
				Statement string   `json:"statement"`
				SourceIDs []string `json:"source_ids"`
				RiskType  string   `json:"risk_type"`
				Details   string   `json:"details"`
				Rationale string   `json:"rationale"`
			} `json:"key_points"`
		} `json:"sections"`
	} `json:"summary"`
	MetaAnalysis *briefMeta `json:"meta_analysis"`
	// Some model versions emit the meta block under this key instead.
	AltMetaAnalysis *briefMeta `json:"json_meta_analysis"`
}

type briefMeta struct {
	OmittedThemes []struct {
		Theme             string `json:"theme"`
		ReasonForOmission string `json:"reason_for_omission"`
		ImpactScore       string `json:"impact_score"`
	} `json:"omitted_themes"`
	GlobalRetentionRationale string `json:"global_retention_rationale"`
}

type BriefService struct {
	config *config.Config
	gen    Generator
	briefs *mongo.Collection
	rdb    *redis.Client
}

func NewBriefService(cfg *config.Config, gen Generator, briefs *mongo.Collection, rdb *redis.Client) *BriefService {
	return &BriefService{
		config: cfg,
		gen:    gen,
		briefs: briefs,
		rdb:    rdb,
	}
}

func buildBriefPrompt(taggedCorpus string) string {
	return "You are an expert analyst. Your task is to compress the provided document into a structured summary.\n" +
		"Input text contains source tags like [[P1_1]], [[P2_5]] at the start of blocks.\n" +
		"You MUST preserve these tags in your output for traceability.\n\n" +
		"Output Format (JSON):\n" +
		"{\n" +
		"  \"summary\": {\n" +
		"    \"high_level_summary\": \"A concise 2-3 sentence overview of the entire document.\",\n" +
		"    \"sections\": [\n" +
		"      {\n" +
		"        \"title\": \"Section/Chapter Title\",\n" +
		"        \"key_points\": [\n" +
		"          {\n" +
		"            \"statement\": \"Key fact or claim.\",\n" +
		"            \"source_ids\": [\"[[P1_1]]\", \"[[P1_2]]\"],\n" +
		"            \"risk_type\": \"None/Operational/Financial/Legal\",\n" +
		"            \"details\": \"A comprehensive 3-5 sentence deep-dive. Include background context, specific figures, dates, exceptions, and potential implications. This is for users who need the full story behind the bullet point.\",\n" +
		"            \"rationale\": \"Why this retention is critical.\"\n" +
		"          }\n" +
		"        ]\n" +
		"      }\n" +
		"    ]\n" +
		"  },\n" +
		"  \"meta_analysis\": {\n" +
		"    \"omitted_themes\": [\n" +
		"      {\n" +
		"        \"theme\": \"Description of omitted topic\",\n" +
		"        \"reason_for_omission\": \"Why it was removed.\",\n" +
		"        \"impact_score\": \"Low/Medium/High\"\n" +
		"      }\n" +
		"    ],\n" +
		"    \"global_retention_rationale\": \"Overall strategy.\"\n" +
		"  }\n" +
		"}\n\n" +
		"Requirements:\n" +
		"1. Capture ALL key facts, exceptions, and risks.\n" +
		"2. EVERY 'statement' must include at least one 'source_id'.\n" +
		"3. The 'details' field MUST be elaborate and comprehensive (not just a rephrasing).\n" +
		"4. Fill 'meta_analysis' to explain what was removed and why.\n\n" +
		"Document Content:\n" + taggedCorpus
}

func buildCorrectivePrompt(taggedCorpus, badResponse string) string {
	return buildBriefPrompt(taggedCorpus) +
		"\n\nYour previous response was not valid JSON matching the required format. " +
		"Respond again with ONLY the JSON object, no prose and no code fences. " +
		"Previous response started with:\n" + truncate(badResponse, 500)
}

var codeFencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// stripCodeFences removes a wrapping markdown code fence. Models sometimes
// fence their output even when asked for raw JSON.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

// parseBrief decodes model output into a validated Brief. Claims citing
// beacons missing from the index are kept and flagged unverifiable; the
// brief never silently drops or upgrades a claim.
func parseBrief(raw string, index *BeaconIndex) (*models.Brief, error) {
	cleaned := stripCodeFences(raw)

	var payload briefPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if payload.Summary.HighLevelSummary == "" && len(payload.Summary.Sections) == 0 {
		return nil, fmt.Errorf("response missing summary content")
	}

	brief := &models.Brief{
		HighLevelSummary: payload.Summary.HighLevelSummary,
		GeneratedAt:      time.Now(),
	}

	for _, s := range payload.Summary.Sections {
		section := models.Section{Title: s.Title}
		for _, kp := range s.KeyPoints {
			if strings.TrimSpace(kp.Statement) == "" {
				continue
			}
			claim := models.Claim{
				Statement: kp.Statement,
				Details:   kp.Details,
				Rationale: kp.Rationale,
				Category:  models.NormalizeRiskCategory(kp.RiskType),
			}
			for _, src := range kp.SourceIDs {
				src = strings.TrimSpace(src)
				if src == "" {
					continue
				}
				if _, ok := index.Lookup(src); ok {
					claim.SourceIDs = append(claim.SourceIDs, canonicalBeacon(src))
				} else {
					claim.UnknownSources = append(claim.UnknownSources, src)
				}
			}
			claim.Unverifiable = len(claim.SourceIDs) == 0
			section.KeyPoints = append(section.KeyPoints, claim)
		}
		brief.Sections = append(brief.Sections, section)
	}

	meta := payload.MetaAnalysis
	if meta == nil {
		meta = payload.AltMetaAnalysis
	}
	if meta != nil {
		for _, ot := range meta.OmittedThemes {
			if strings.TrimSpace(ot.Theme) == "" {
				continue
			}
			brief.OmittedThemes = append(brief.OmittedThemes, models.OmittedTheme{
				Theme:  ot.Theme,
				Reason: ot.ReasonForOmission,
				Impact: models.NormalizeImpactScore(ot.ImpactScore),
			})
		}
		brief.RetentionRationale = meta.GlobalRetentionRationale
	}

	return brief, nil
}

func canonicalBeacon(src string) string {
	if !strings.HasPrefix(src, "[[") {
		return "[[" + src + "]]"
	}
	return src
}

// Generate produces a validated brief for a document. A malformed first
// response gets exactly one corrective re-request; if that also fails to
// parse, the raw response is surfaced via MalformedResponseError.
func (s *BriefService) Generate(ctx context.Context, doc *models.Document) (*models.Brief, error) {
	tracer := otel.Tracer("brief-service")
	ctx, span := tracer.Start(ctx, "brief.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", doc.ID.Hex()),
		attribute.Int("document.paragraphs", len(doc.Paragraphs)),
	)

	corpus := BuildTaggedCorpus(doc.Paragraphs)
	index := NewBeaconIndex(doc.Paragraphs)

	raw, err := s.gen.GenerateJSON(ctx, buildBriefPrompt(corpus))
	if err != nil {
		telemetry.RecordBriefGeneration(s.config.GeminiModel, "error")
		return nil, err
	}

	brief, parseErr := parseBrief(raw, index)
	if parseErr != nil {
		logger.Warn("Brief response malformed, requesting correction", "document_id", doc.ID.Hex(), "error", parseErr)
		span.SetAttributes(attribute.Bool("brief.corrective_retry", true))

		raw2, err := s.gen.GenerateJSON(ctx, buildCorrectivePrompt(corpus, raw))
		if err != nil {
			telemetry.RecordBriefGeneration(s.config.GeminiModel, "error")
			return nil, err
		}
		brief, parseErr = parseBrief(raw2, index)
		if parseErr != nil {
			telemetry.RecordBriefGeneration(s.config.GeminiModel, "parse_failed")
			return nil, &MalformedResponseError{Raw: raw2}
		}
	}

	brief.DocumentID = doc.ID
	brief.Model = s.config.GeminiModel
	telemetry.RecordBriefGeneration(s.config.GeminiModel, "completed")

	var verified, unverifiable int64
	for _, claim := range brief.Claims() {
		if claim.Unverifiable {
			unverifiable++
		} else {
			verified++
		}
	}
	telemetry.RecordCitationCheck(true, verified)
	telemetry.RecordCitationCheck(false, unverifiable)

	return brief, nil
}

// GenerateAndStore runs Generate behind a Redis cache keyed by file hash
// and model, then persists the result. force bypasses the cache.
func (s *BriefService) GenerateAndStore(ctx context.Context, doc *models.Document, force bool) (*models.Brief, bool, error) {
	cacheKey := "brief:" + doc.FileHash + ":" + s.config.GeminiModel

	if !force && s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var brief models.Brief
			if err := json.Unmarshal([]byte(cached), &brief); err == nil {
				brief.DocumentID = doc.ID
				telemetry.RecordCacheLookup(true)
				return &brief, true, nil
			}
		}
		telemetry.RecordCacheLookup(false)
	}

	brief, err := s.Generate(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	res, err := s.briefs.InsertOne(ctx, brief)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store brief: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		brief.ID = oid
	}

	if s.rdb != nil {
		if data, err := json.Marshal(brief); err == nil {
			ttl := time.Duration(s.config.BriefCacheTTL) * time.Minute
			if err := s.rdb.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
				logger.Warn("Failed to cache brief", "error", err)
			}
		}
	}

	return brief, false, nil
}

// Latest returns the most recent brief stored for a document
func (s *BriefService) Latest(ctx context.Context, documentID primitive.ObjectID) (*models.Brief, error) {
	var brief models.Brief
	err := s.briefs.FindOne(ctx,
		bson.M{"document_id": documentID},
		options.FindOne().SetSort(bson.D{{Key: "generated_at", Value: -1}}),
	).Decode(&brief)
	if err != nil {
		return nil, err
	}
	return &brief, nil
}

// DeleteForDocument removes all briefs for a document (retention sweep)
func (s *BriefService) DeleteForDocument(ctx context.Context, documentID primitive.ObjectID) error {
	_, err := s.briefs.DeleteMany(ctx, bson.M{"document_id": documentID})
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
