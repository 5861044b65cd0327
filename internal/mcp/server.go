// Package mcp registers the redflag operator tools on an MCP server.
// Clients connect over stdio (`redflag mcp`).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/redflag/internal/catalog"
	"github.com/hazyhaar/redflag/internal/identity"
	"github.com/hazyhaar/redflag/internal/scoring"
	"github.com/hazyhaar/redflag/internal/steps"
	"github.com/hazyhaar/redflag/internal/summary"
	"github.com/hazyhaar/redflag/internal/survey"
	"github.com/hazyhaar/redflag/pkg/audit"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// actorName identifies MCP callers in the audit trail.
const actorName = "mcp-client"

// ErrBadArgument is returned for missing or malformed tool arguments.
var ErrBadArgument = errors.New("bad argument")

// Catalog is the read side of the question catalog used by score_preview.
type Catalog interface {
	Filters(ctx context.Context) ([]catalog.FilterQuestion, error)
	Weighted(ctx context.Context) ([]catalog.WeightedQuestion, error)
}

// Tools holds the dependencies of every tool. Each method is the body of
// one tool and is callable without a server.
type Tools struct {
	survey  *survey.Service
	catalog Catalog
}

func NewTools(svc *survey.Service, cat Catalog) *Tools {
	return &Tools{survey: svc, catalog: cat}
}

// NewServer creates an MCPServer with every operator tool registered.
// Mutating tools are audited when auditLog is non-nil.
func NewServer(t *Tools, auditLog audit.Logger) *server.MCPServer {
	srv := server.NewMCPServer(
		"redflag",
		Version,
		server.WithToolCapabilities(true),
	)

	registerPopulationSummary(srv, t)
	registerScorePreview(srv, t)
	registerDeriveIdentity(srv, t)
	registerDeleteSession(srv, t, auditLog)
	registerRecomputeSummary(srv, t, auditLog)

	return srv
}

// audited tags the caller as an MCP client and records the call.
func audited(auditLog audit.Logger, action string, ep kit.Endpoint) kit.Endpoint {
	wrapped := audit.Middleware(auditLog, action)(audit.Endpoint(ep))
	return func(ctx context.Context, request any) (any, error) {
		return wrapped(audit.WithActor(ctx, audit.TransportMCP, actorName), request)
	}
}

// --- population_summary ---

func (t *Tools) PopulationSummary(ctx context.Context) (summary.Summary, error) {
	return t.survey.LoadSummary(ctx)
}

func registerPopulationSummary(srv *server.MCPServer, t *Tools) {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	tool := mcp.NewToolWithRawSchema("population_summary", "Current population statistics: count, average, min and max toxic score, filter violations", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, _ any) (any, error) {
		return t.PopulationSummary(ctx)
	}, func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	})
}

// --- score_preview ---

// PreviewRequest carries answers in the same scales the survey accepts.
// A null weighted answer means not applicable.
type PreviewRequest struct {
	Weighted map[string]*int `json:"weighted"`
	Filters  map[string]int  `json:"filters"`
}

type PreviewResult struct {
	Score            scoring.Score   `json:"score"`
	Percent          decimal.Decimal `json:"percent"`
	Comparison       decimal.Decimal `json:"comparison"`
	Exceeds          bool            `json:"exceeds_average"`
	FilterViolations int             `json:"filter_violations"`
}

// ScorePreview scores answers against the live catalog without storing
// anything. Unknown keys are rejected.
func (t *Tools) ScorePreview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	weighted, err := t.catalog.Weighted(ctx)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("loading weighted questions: %w", err)
	}
	modes := make(map[string]catalog.ScoringMode, len(weighted))
	for _, q := range weighted {
		modes[q.Key()] = q.Mode
	}
	answers := make(map[string]scoring.Answer, len(req.Weighted))
	for key, v := range req.Weighted {
		mode, ok := modes[key]
		if !ok {
			return PreviewResult{}, fmt.Errorf("%w: unknown question %s", ErrBadArgument, key)
		}
		a, valid := steps.WeightedAnswer(mode, v)
		if !valid {
			return PreviewResult{}, fmt.Errorf("%w: %s out of range", ErrBadArgument, key)
		}
		answers[key] = a
	}
	score, err := scoring.ScoreWeighted(answers, weighted)
	if err != nil {
		return PreviewResult{}, err
	}
	out := PreviewResult{Score: score, Percent: score.Percent()}

	if len(req.Filters) > 0 {
		filters, err := t.catalog.Filters(ctx)
		if err != nil {
			return PreviewResult{}, fmt.Errorf("loading filter questions: %w", err)
		}
		if out.FilterViolations, err = scoring.ScoreFilters(req.Filters, filters); err != nil {
			return PreviewResult{}, err
		}
	}
	out.Comparison = t.survey.Comparison(ctx)
	out.Exceeds = score.Exceeds(out.Comparison)
	return out, nil
}

func registerScorePreview(srv *server.MCPServer, t *Tools) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"weighted": map[string]any{
				"type":                 "object",
				"description":          "Weighted answers keyed Q{id}: 0-10 for range questions, 1/0 for YES/NO, null for not applicable",
				"additionalProperties": map[string]any{"type": []string{"integer", "null"}},
			},
			"filters": map[string]any{
				"type":                 "object",
				"description":          "Optional filter answers keyed F{id}: option index or 1/0",
				"additionalProperties": map[string]string{"type": "integer"},
			},
		},
		"required": []string{"weighted"},
	})
	tool := mcp.NewToolWithRawSchema("score_preview", "Compute the weighted toxic score for a set of answers against the current catalog", schema)

	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		return t.ScorePreview(ctx, *request.(*PreviewRequest))
	}, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := decodeArgs[PreviewRequest](req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	})
}

// --- derive_identity ---

type PairRequest struct {
	UserID      string `json:"user_id"`
	PartnerName string `json:"partner_name"`
}

type IdentityResult struct {
	Derived  int64 `json:"derived"`
	Resolved int64 `json:"resolved"`
}

// DeriveIdentity reports the raw derived identity and the one the pair
// would be stored under after collision resolution.
func (t *Tools) DeriveIdentity(ctx context.Context, req PairRequest) (IdentityResult, error) {
	if err := req.validate(); err != nil {
		return IdentityResult{}, err
	}
	resolved, err := t.survey.ResolveIdentity(ctx, req.UserID, req.PartnerName)
	if err != nil {
		return IdentityResult{}, err
	}
	return IdentityResult{Derived: identity.Derive(req.UserID, req.PartnerName), Resolved: resolved}, nil
}

func (r PairRequest) validate() error {
	if strings.TrimSpace(r.UserID) == "" || strings.TrimSpace(r.PartnerName) == "" {
		return fmt.Errorf("%w: user_id and partner_name are required", ErrBadArgument)
	}
	return nil
}

func pairSchema() json.RawMessage {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":      map[string]string{"type": "string", "description": "Survey user id"},
			"partner_name": map[string]string{"type": "string", "description": "Partner name as entered"},
		},
		"required": []string{"user_id", "partner_name"},
	})
	return schema
}

func decodePair(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	return &kit.MCPDecodeResult{Request: &PairRequest{
		UserID:      stringArg(args, "user_id"),
		PartnerName: stringArg(args, "partner_name"),
	}}, nil
}

func registerDeriveIdentity(srv *server.MCPServer, t *Tools) {
	tool := mcp.NewToolWithRawSchema("derive_identity", "Show the session identity a (user, partner) pair maps to", pairSchema())
	kit.RegisterMCPTool(srv, tool, func(ctx context.Context, request any) (any, error) {
		return t.DeriveIdentity(ctx, *request.(*PairRequest))
	}, decodePair)
}

// --- delete_session ---

func (t *Tools) DeleteSession(ctx context.Context, req PairRequest) (survey.DeleteReport, error) {
	if err := req.validate(); err != nil {
		return survey.DeleteReport{}, err
	}
	return t.survey.DeleteSession(ctx, req.UserID, req.PartnerName)
}

func registerDeleteSession(srv *server.MCPServer, t *Tools, auditLog audit.Logger) {
	tool := mcp.NewToolWithRawSchema("delete_session", "Delete a pair's round from every session table and reverse its summary contribution", pairSchema())
	kit.RegisterMCPTool(srv, tool, audited(auditLog, "delete_session", func(ctx context.Context, request any) (any, error) {
		return t.DeleteSession(ctx, *request.(*PairRequest))
	}), decodePair)
}

// --- recompute_summary ---

type RecomputeResult struct {
	Summary summary.Summary `json:"summary"`
	Drifted bool            `json:"drifted"`
}

func (t *Tools) RecomputeSummary(ctx context.Context) (RecomputeResult, error) {
	sum, drifted, err := t.survey.RecomputeSummary(ctx)
	if err != nil {
		return RecomputeResult{}, err
	}
	return RecomputeResult{Summary: sum, Drifted: drifted}, nil
}

func registerRecomputeSummary(srv *server.MCPServer, t *Tools, auditLog audit.Logger) {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	tool := mcp.NewToolWithRawSchema("recompute_summary", "Rebuild the population summary from the stored session rows", schema)
	kit.RegisterMCPTool(srv, tool, audited(auditLog, "recompute_summary", func(ctx context.Context, _ any) (any, error) {
		return t.RecomputeSummary(ctx)
	}), func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	})
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// decodeArgs round-trips the loosely typed arguments through JSON into T.
func decodeArgs[T any](req mcp.CallToolRequest) (*T, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	return &out, nil
}
