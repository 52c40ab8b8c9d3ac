package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/imaging"
	"github.com/ironsheep/lake-growth-mcp/internal/pipeline"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "mask_growth", "raster_info").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// WorkflowResult is what the workflow tools return: the structured report
// and the console text the CLI would have printed.
type WorkflowResult struct {
	Report  *pipeline.Report    `json:"report"`
	Console string              `json:"console"`
	Preview *imaging.CropResult `json:"preview,omitempty"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(context.Background(), params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each workflow handler:
//  1. Unmarshals arguments from JSON
//  2. Copies the server configuration and applies the arguments to it
//  3. Runs the pipeline workflow with the shared raster cache
//  4. Returns the report and console output, or the error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Raster Information
	case "raster_info":
		return s.handleRasterInfo(args)
	case "measure_distance":
		return s.handleMeasureDistance(args)
	case "mask_preview":
		return s.handleMaskPreview(args)

	// NDWI
	case "ndwi_stats":
		return s.handleNDWIStats(args)
	case "ndwi_growth_scan":
		return s.handleNDWIGrowthScan(ctx, args)

	// Mask Growth
	case "mask_growth":
		return s.handleMaskGrowth(ctx, args)
	case "mask_growth_save":
		return s.handleMaskGrowthSave(ctx, args)
	case "growth_visualize":
		return s.handleGrowthVisualize(ctx, args)
	case "growth_overlay":
		return s.handleGrowthOverlay(ctx, args)
	case "detect_lakes":
		return s.handleDetectLakes(ctx, args)

	// Model
	case "model_predict":
		return s.handleModelPredict(ctx, args)

	// History
	case "analysis_history":
		return s.handleAnalysisHistory(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// callConfig returns a copy of the server configuration for one tool call.
func (s *Server) callConfig() *config.Config {
	cfg := *s.cfg
	return &cfg
}

// newPipeline returns a pipeline over cfg that prints into the returned
// buffer, reads through the raster cache, and records into the history.
func (s *Server) newPipeline(cfg *config.Config) (*pipeline.Pipeline, *bytes.Buffer) {
	var buf bytes.Buffer
	p := pipeline.New(cfg, &buf)
	p.Loader = s.cache
	if s.history != nil {
		p.History = s.history
	}
	return p, &buf
}

func workflowResult(rep *pipeline.Report, console *bytes.Buffer, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return &WorkflowResult{Report: rep, Console: console.String()}, nil
}

// === Raster Information Handlers ===

type rasterPathArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleRasterInfo(args json.RawMessage) (interface{}, error) {
	var a rasterPathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadRasterInfo(s.cache, a.Path)
}

type measureDistanceArgs struct {
	Path string `json:"path"`
	X1   int    `json:"x1"`
	Y1   int    `json:"y1"`
	X2   int    `json:"x2"`
	Y2   int    `json:"y2"`
}

func (s *Server) handleMeasureDistance(args json.RawMessage) (interface{}, error) {
	var a measureDistanceArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	r, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.MeasureDistance(r, a.X1, a.Y1, a.X2, a.Y2)
}

type maskPreviewArgs struct {
	Path   string  `json:"path"`
	Region string  `json:"region"`
	Scale  float64 `json:"scale"`
}

func (s *Server) handleMaskPreview(args json.RawMessage) (interface{}, error) {
	var a maskPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	return preview(a.Path, a.Region, a.Scale)
}

func preview(path, region string, scale float64) (*imaging.CropResult, error) {
	img, err := imaging.OpenImage(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	x1, y1, x2, y2, err := imaging.RegionBounds(region, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return imaging.Preview(img, x1, y1, x2, y2, scale)
}

// === NDWI Handlers ===

type ndwiStatsArgs struct {
	Green     string   `json:"green"`
	NIR       string   `json:"nir"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func (s *Server) handleNDWIStats(args json.RawMessage) (interface{}, error) {
	var a ndwiStatsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := s.callConfig()
	if a.Threshold != nil {
		cfg.NDWIThreshold = *a.Threshold
	}
	p, _ := s.newPipeline(cfg)
	return p.NDWIStats(a.Green, a.NIR)
}

type ndwiGrowthScanArgs struct {
	EarlierGreen string   `json:"earlier_green"`
	EarlierNIR   string   `json:"earlier_nir"`
	LaterGreen   string   `json:"later_green"`
	LaterNIR     string   `json:"later_nir"`
	OutputDir    string   `json:"output_dir"`
	Start        *float64 `json:"start,omitempty"`
	Stop         *float64 `json:"stop,omitempty"`
	Step         *float64 `json:"step,omitempty"`
}

func (s *Server) handleNDWIGrowthScan(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a ndwiGrowthScanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg := s.callConfig()
	cfg.Inputs.MayGreen = a.EarlierGreen
	cfg.Inputs.MayNIR = a.EarlierNIR
	cfg.Inputs.JuneGreen = a.LaterGreen
	cfg.Inputs.JuneNIR = a.LaterNIR
	if a.OutputDir != "" {
		cfg.Outputs.Dir = a.OutputDir
	}
	if a.Start != nil {
		cfg.Scan.Start = *a.Start
	}
	if a.Stop != nil {
		cfg.Scan.Stop = *a.Stop
	}
	if a.Step != nil {
		cfg.Scan.Step = *a.Step
	}

	p, console := s.newPipeline(cfg)
	rep, err := p.NDWIGrowth(ctx)
	return workflowResult(rep, console, err)
}

// === Mask Growth Handlers ===

type maskPairArgs struct {
	EarlierMask string   `json:"earlier_mask"`
	LaterMask   string   `json:"later_mask"`
	Threshold   *float64 `json:"threshold,omitempty"`
}

// maskConfig applies the mask pair arguments to a copy of the configuration.
func (s *Server) maskConfig(a maskPairArgs) (*config.Config, error) {
	if a.EarlierMask == "" || a.LaterMask == "" {
		return nil, fmt.Errorf("earlier_mask and later_mask are required")
	}
	cfg := s.callConfig()
	cfg.Inputs.MayMask = a.EarlierMask
	cfg.Inputs.JuneMask = a.LaterMask
	if a.Threshold != nil {
		if *a.Threshold < 0 || *a.Threshold > 1 {
			return nil, fmt.Errorf("threshold must be within [0,1], got %g", *a.Threshold)
		}
		cfg.MaskThreshold = *a.Threshold
	}
	return cfg, nil
}

func (s *Server) handleMaskGrowth(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a maskPairArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.maskConfig(a)
	if err != nil {
		return nil, err
	}
	p, console := s.newPipeline(cfg)
	rep, err := p.ModelGrowth(ctx)
	return workflowResult(rep, console, err)
}

type maskOutputArgs struct {
	maskPairArgs
	Output string `json:"output"`
}

func (s *Server) handleMaskGrowthSave(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a maskOutputArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.maskConfig(a.maskPairArgs)
	if err != nil {
		return nil, err
	}
	if a.Output == "" {
		return nil, fmt.Errorf("output is required")
	}
	cfg.Outputs.GrowthMask = a.Output
	p, console := s.newPipeline(cfg)
	rep, err := p.GrowthMask(ctx)
	return workflowResult(rep, console, err)
}

type growthVisualizeArgs struct {
	maskOutputArgs
	Outline bool `json:"outline"`
	Preview bool `json:"preview"`
}

func (s *Server) handleGrowthVisualize(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a growthVisualizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.maskConfig(a.maskPairArgs)
	if err != nil {
		return nil, err
	}
	if a.Output == "" {
		return nil, fmt.Errorf("output is required")
	}
	cfg.Outputs.GrowthRGB = a.Output
	p, console := s.newPipeline(cfg)
	rep, err := p.Visualize(ctx, a.Outline)
	if err != nil {
		return nil, err
	}
	res := &WorkflowResult{Report: rep, Console: console.String()}
	if a.Preview {
		if res.Preview, err = preview(rep.Outputs[0], "full", 1.0); err != nil {
			return nil, err
		}
	}
	return res, nil
}

type growthOverlayArgs struct {
	maskOutputArgs
	BaseImage string   `json:"base_image"`
	Color     string   `json:"color"`
	Opacity   *float64 `json:"opacity,omitempty"`
}

func (s *Server) handleGrowthOverlay(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a growthOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.maskConfig(a.maskPairArgs)
	if err != nil {
		return nil, err
	}
	if a.BaseImage == "" || a.Output == "" {
		return nil, fmt.Errorf("base_image and output are required")
	}
	if a.Color == "" {
		a.Color = "#FF0000"
	}
	opacity := 0.6
	if a.Opacity != nil {
		opacity = *a.Opacity
	}
	p, console := s.newPipeline(cfg)
	rep, err := p.Overlay(ctx, a.BaseImage, a.Output, a.Color, opacity)
	return workflowResult(rep, console, err)
}

type detectLakesArgs struct {
	maskPairArgs
	MinPixels *int `json:"min_pixels,omitempty"`
}

func (s *Server) handleDetectLakes(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectLakesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	cfg, err := s.maskConfig(a.maskPairArgs)
	if err != nil {
		return nil, err
	}
	if a.MinPixels != nil {
		cfg.MinLakePixels = *a.MinPixels
	}
	p, console := s.newPipeline(cfg)
	rep, err := p.Lakes(ctx)
	return workflowResult(rep, console, err)
}

// === Model Handlers ===

type modelPredictArgs struct {
	Image     string `json:"image"`
	Model     string `json:"model"`
	Output    string `json:"output"`
	Patches   bool   `json:"patches"`
	PatchSize int    `json:"patch_size"`
}

func (s *Server) handleModelPredict(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a modelPredictArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Image == "" || a.Output == "" {
		return nil, fmt.Errorf("image and output are required")
	}
	cfg := s.callConfig()
	cfg.Inputs.Image = a.Image
	if a.Model != "" {
		cfg.Inputs.Model = a.Model
	}
	cfg.Outputs.PredictedMask = a.Output
	if a.PatchSize > 0 {
		cfg.Patches.Size = a.PatchSize
	}

	p, console := s.newPipeline(cfg)
	if a.Patches {
		rep, err := p.PredictPatches(ctx)
		return workflowResult(rep, console, err)
	}
	rep, err := p.Predict(ctx)
	return workflowResult(rep, console, err)
}

// === History Handlers ===

type analysisHistoryArgs struct {
	Limit       int    `json:"limit"`
	AlertStatus string `json:"alert_status"`
}

// HistoryResult lists recorded analyses and alerts.
type HistoryResult struct {
	Analyses []store.Analysis `json:"analyses"`
	Alerts   []store.Alert    `json:"alerts"`
}

func (s *Server) handleAnalysisHistory(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.history == nil {
		return nil, fmt.Errorf("analysis history is not enabled; set store.path or LAKEGROWTH_STORE_PATH")
	}
	var a analysisHistoryArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}
	if a.Limit <= 0 {
		a.Limit = 20
	}
	status := store.StatusOpen
	switch a.AlertStatus {
	case "", store.StatusOpen:
	case store.StatusAcknowledged:
		status = store.StatusAcknowledged
	case "all":
		status = ""
	default:
		return nil, fmt.Errorf("invalid alert_status %q", a.AlertStatus)
	}

	analyses, err := s.history.ListAnalyses(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	alerts, err := s.history.ListAlerts(ctx, status)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Analyses: analyses, Alerts: alerts}, nil
}
