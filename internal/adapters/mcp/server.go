package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/crop-advisor/internal/adapters/view"
	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/core/ports"
)

const (
	ToolRecommendCrop  = "recommend_crop"
	ToolListCategories = "list_categories"
)

type Server struct {
	recommender   ports.CropRecommender
	catalog       ports.CategoryCatalog
	minConfidence float64
}

func NewServer(recommender ports.CropRecommender, catalog ports.CategoryCatalog, minConfidence float64) *Server {
	return &Server{
		recommender:   recommender,
		catalog:       catalog,
		minConfidence: minConfidence,
	}
}

// MCPServer registers the crop tools on a new tool server.
func (s *Server) MCPServer(name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	srv.AddTool(s.recommendTool(), s.recommendCrop)
	srv.AddTool(mcp.NewTool(ToolListCategories,
		mcp.WithDescription("List the allowed values of every categorical field and the valid numeric ranges."),
	), s.listCategories)
	return srv
}

func (s *Server) recommendTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Recommend the best crop and up to three alternatives for a field's soil, climate and farm attributes."),
	}
	for _, f := range domain.NumericFields {
		desc := fmt.Sprintf("%s, between %g and %g", f.Name, f.Lo, f.Hi)
		if f.Unit != "" {
			desc += " " + f.Unit
		}
		opts = append(opts, mcp.WithNumber(f.Name, mcp.Required(), mcp.Description(desc)))
	}
	table := s.catalog.Categories()
	for _, name := range domain.CategoricalFields {
		desc := strings.ReplaceAll(name, "_", " ")
		if values := table[name]; len(values) > 0 {
			desc += ", one of: " + strings.Join(values, ", ")
		}
		opts = append(opts, mcp.WithString(name, mcp.Required(), mcp.Description(desc)))
	}
	return mcp.NewTool(ToolRecommendCrop, opts...)
}

func (s *Server) recommendCrop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := domain.RawInputFromMap(request.GetArguments())

	rec, err := s.recommender.Recommend(ctx, in)
	if err != nil {
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			slog.Error("mcp_recommend_failed", "kind", view.Kind(err), "error", err)
		}
		return mcp.NewToolResultError(domain.ErrorText(err)), nil
	}

	return jsonResult(view.NewRecommendation(rec, s.minConfidence))
}

func (s *Server) listCategories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"categorical": s.catalog.Categories(),
		"numeric":     domain.NumericFields,
	})
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
