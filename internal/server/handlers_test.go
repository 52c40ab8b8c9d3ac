package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/lake-growth-mcp/internal/config"
	"github.com/ironsheep/lake-growth-mcp/internal/raster"
	"github.com/ironsheep/lake-growth-mcp/internal/segment"
	"github.com/ironsheep/lake-growth-mcp/internal/store"
)

var testRef = raster.Georef{
	Transform:    raster.Affine{A: 10, C: 500000, E: -10, F: 3100000},
	HasTransform: true,
}

// writeTestBand writes a single-band 8-bit GeoTIFF with 10m pixels.
func writeTestBand(t *testing.T, path string, w, h int, pix []uint8) {
	t.Helper()

	if err := raster.WriteGeoTIFF(path, w, h, pix, testRef); err != nil {
		t.Fatalf("failed to write GeoTIFF: %v", err)
	}
}

// writeTestPNG encodes img to path.
func writeTestPNG(t *testing.T, path string, img image.Image) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
}

func filled(n int, v uint8) []uint8 {
	out := make([]uint8, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// createMaskPair writes a 4x4 earlier GeoTIFF mask with water in the
// top-left 2x2 block and an 8x8 later PNG mask with water in its top half.
// Resampled onto the earlier grid, the later mask gains 4 pixels of water.
func createMaskPair(t *testing.T, dir string) (earlier, later string) {
	t.Helper()

	earlier = filepath.Join(dir, "may_mask.tif")
	later = filepath.Join(dir, "june_mask_pred.png")

	pix := make([]uint8, 16)
	pix[0], pix[1], pix[4], pix[5] = 1, 1, 1, 1
	writeTestBand(t, earlier, 4, 4, pix)

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	writeTestPNG(t, later, img)
	return earlier, later
}

// callTool runs a tools/call request and decodes the text content.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()

	resp := callToolResponse(t, s, name, args)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %v (%v)", name, resp.Error.Message, resp.Error.Data)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content: got %#v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v, want text", content[0]["type"])
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &decoded); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
	return decoded
}

func callToolResponse(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

func growthOf(t *testing.T, result map[string]interface{}) map[string]interface{} {
	t.Helper()

	report, ok := result["report"].(map[string]interface{})
	if !ok {
		t.Fatalf("result has no report: %v", result)
	}
	g, ok := report["growth"].(map[string]interface{})
	if !ok {
		t.Fatalf("report has no growth: %v", report)
	}
	return g
}

func TestHandleToolsCall_RasterInfo(t *testing.T) {
	s := New(nil, nil)
	path := filepath.Join(t.TempDir(), "band.tif")
	writeTestBand(t, path, 6, 4, filled(24, 7))

	result := callTool(t, s, "raster_info", map[string]interface{}{"path": path})

	tests := []struct {
		key  string
		want interface{}
	}{
		{"width", float64(6)},
		{"height", float64(4)},
		{"bands", float64(1)},
		{"format", "geotiff"},
		{"georeferenced", true},
		{"pixel_area_km2", 0.0001},
	}
	for _, tt := range tests {
		if result[tt.key] != tt.want {
			t.Errorf("%s: got %v, want %v", tt.key, result[tt.key], tt.want)
		}
	}

	if s.cache.Len() != 1 {
		t.Errorf("cache length: got %d, want 1", s.cache.Len())
	}
}

func TestHandleToolsCall_MeasureDistance(t *testing.T) {
	s := New(nil, nil)
	path := filepath.Join(t.TempDir(), "band.tif")
	writeTestBand(t, path, 8, 8, filled(64, 0))

	result := callTool(t, s, "measure_distance", map[string]interface{}{
		"path": path, "x1": 0, "y1": 0, "x2": 3, "y2": 4,
	})

	if result["distance_pixels"] != 5.0 {
		t.Errorf("distance_pixels: got %v, want 5", result["distance_pixels"])
	}
	if result["distance_ground"] != 50.0 {
		t.Errorf("distance_ground: got %v, want 50", result["distance_ground"])
	}
}

func TestHandleToolsCall_MeasureDistance_OutOfBounds(t *testing.T) {
	s := New(nil, nil)
	path := filepath.Join(t.TempDir(), "band.tif")
	writeTestBand(t, path, 4, 4, filled(16, 0))

	resp := callToolResponse(t, s, "measure_distance", map[string]interface{}{
		"path": path, "x1": 0, "y1": 0, "x2": 9, "y2": 0,
	})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected tool failure, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_MaskPreview(t *testing.T) {
	s := New(nil, nil)
	path := filepath.Join(t.TempDir(), "render.png")
	writeTestPNG(t, path, image.NewGray(image.Rect(0, 0, 20, 10)))

	tests := []struct {
		region string
		scale  float64
		wantW  float64
		wantH  float64
	}{
		{"full", 1.0, 20, 10},
		{"top-left", 1.0, 10, 5},
		{"right-half", 2.0, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			result := callTool(t, s, "mask_preview", map[string]interface{}{
				"path": path, "region": tt.region, "scale": tt.scale,
			})
			if result["width"] != tt.wantW || result["height"] != tt.wantH {
				t.Errorf("size: got %vx%v, want %vx%v", result["width"], result["height"], tt.wantW, tt.wantH)
			}
			if result["mime_type"] != "image/png" {
				t.Errorf("mime_type: got %v", result["mime_type"])
			}
		})
	}
}

func TestHandleToolsCall_NDWIStats(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()
	green := filepath.Join(dir, "b2.tif")
	nir := filepath.Join(dir, "b3.tif")

	// Left half water (green > nir), right half land.
	g := filled(16, 100)
	n := filled(16, 200)
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			g[y*4+x], n[y*4+x] = 200, 100
		}
	}
	writeTestBand(t, green, 4, 4, g)
	writeTestBand(t, nir, 4, 4, n)

	result := callTool(t, s, "ndwi_stats", map[string]interface{}{"green": green, "nir": nir})

	if result["water_ratio"] != 0.5 {
		t.Errorf("water_ratio: got %v, want 0.5", result["water_ratio"])
	}
	if result["valid_pixels"] != float64(16) {
		t.Errorf("valid_pixels: got %v, want 16", result["valid_pixels"])
	}
}

func TestHandleToolsCall_NDWIGrowthScan(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()

	paths := map[string]string{}
	for _, name := range []string{"earlier_green", "earlier_nir", "later_green", "later_nir"} {
		paths[name] = filepath.Join(dir, name+".tif")
	}
	writeTestBand(t, paths["earlier_green"], 4, 4, filled(16, 100))
	writeTestBand(t, paths["earlier_nir"], 4, 4, filled(16, 200))
	g := filled(16, 100)
	n := filled(16, 200)
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			g[y*4+x], n[y*4+x] = 200, 100
		}
	}
	writeTestBand(t, paths["later_green"], 4, 4, g)
	writeTestBand(t, paths["later_nir"], 4, 4, n)

	args := map[string]interface{}{"output_dir": filepath.Join(dir, "out")}
	for k, v := range paths {
		args[k] = v
	}
	result := callTool(t, s, "ndwi_growth_scan", args)

	report := result["report"].(map[string]interface{})
	if report["threshold"] != -0.05 {
		t.Errorf("threshold: got %v, want -0.05", report["threshold"])
	}
	g2 := growthOf(t, result)
	if g2["pixels"] != float64(8) {
		t.Errorf("growth pixels: got %v, want 8", g2["pixels"])
	}
	if math.Abs(g2["area_km2"].(float64)-0.0008) > 1e-12 {
		t.Errorf("growth area: got %v, want 0.0008", g2["area_km2"])
	}
	if !strings.Contains(result["console"].(string), "Best NDWI Threshold: -0.050") {
		t.Errorf("console missing best threshold:\n%s", result["console"])
	}

	outputs := report["outputs"].([]interface{})
	for _, o := range outputs {
		if _, err := os.Stat(o.(string)); err != nil {
			t.Errorf("output %v not written: %v", o, err)
		}
	}
}

func TestHandleToolsCall_MaskGrowth(t *testing.T) {
	s := New(nil, nil)
	earlier, later := createMaskPair(t, t.TempDir())

	result := callTool(t, s, "mask_growth", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
	})

	g := growthOf(t, result)
	if g["pixels"] != float64(4) {
		t.Errorf("growth pixels: got %v, want 4", g["pixels"])
	}
	if math.Abs(g["area_km2"].(float64)-0.0004) > 1e-12 {
		t.Errorf("growth area: got %v, want 0.0004", g["area_km2"])
	}
	if !strings.Contains(result["console"].(string), "Resizing June mask from (8, 8) to (4, 4)") {
		t.Errorf("console missing resize note:\n%s", result["console"])
	}
}

func TestHandleToolsCall_MaskGrowth_Threshold(t *testing.T) {
	s := New(nil, nil)
	earlier, later := createMaskPair(t, t.TempDir())

	resp := callToolResponse(t, s, "mask_growth", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
		"threshold":    1.5,
	})
	if resp.Error == nil || !strings.Contains(resp.Error.Data.(string), "threshold") {
		t.Fatalf("expected threshold error, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_MaskGrowth_MissingMask(t *testing.T) {
	s := New(nil, nil)
	resp := callToolResponse(t, s, "mask_growth", map[string]interface{}{
		"earlier_mask": "/nonexistent/may.tif",
		"later_mask":   "/nonexistent/june.png",
	})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected tool failure, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_MaskGrowthSave(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()
	earlier, later := createMaskPair(t, dir)
	out := filepath.Join(dir, "growth.tif")

	callTool(t, s, "mask_growth_save", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
		"output":       out,
	})

	written, err := raster.ReadGeoTIFF(out)
	if err != nil {
		t.Fatalf("failed to read growth mask: %v", err)
	}
	band, err := written.Band(1)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, v := range band.Data {
		if v == 1 {
			count++
		}
	}
	if count != 4 {
		t.Errorf("growth pixels in file: got %d, want 4", count)
	}
	if written.Transform != testRef.Transform {
		t.Errorf("transform: got %+v, want %+v", written.Transform, testRef.Transform)
	}
}

func TestHandleToolsCall_GrowthVisualize(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()
	earlier, later := createMaskPair(t, dir)
	out := filepath.Join(dir, "growth_rgb.png")

	result := callTool(t, s, "growth_visualize", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
		"output":       out,
		"preview":      true,
	})

	preview, ok := result["preview"].(map[string]interface{})
	if !ok {
		t.Fatal("result should carry a preview")
	}
	if preview["width"] != float64(4) || preview["height"] != float64(4) {
		t.Errorf("preview size: got %vx%v, want 4x4", preview["width"], preview["height"])
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("visualization not written: %v", err)
	}
}

func TestHandleToolsCall_GrowthOverlay(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()
	earlier, later := createMaskPair(t, dir)

	base := filepath.Join(dir, "scene.png")
	bg := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range bg.Pix {
		bg.Pix[i] = 255
	}
	writeTestPNG(t, base, bg)
	out := filepath.Join(dir, "overlay.png")

	callTool(t, s, "growth_overlay", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
		"base_image":   base,
		"output":       out,
		"opacity":      1.0,
	})

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("overlay not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	// (2,0) is new water and painted red; (0,0) was already water.
	r, g, b, _ := img.At(2, 0).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("growth pixel: got (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}
	r, g, b, _ = img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("unchanged pixel: got (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestHandleToolsCall_DetectLakes(t *testing.T) {
	s := New(nil, nil)
	earlier, later := createMaskPair(t, t.TempDir())

	result := callTool(t, s, "detect_lakes", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
	})

	report := result["report"].(map[string]interface{})
	lakes := report["lakes"].(map[string]interface{})
	if lakes["count"] != float64(1) {
		t.Errorf("lake count: got %v, want 1", lakes["count"])
	}
	// The single later lake overlaps earlier water, so it is not new.
	newLakes := report["new_lakes"].(map[string]interface{})
	if newLakes["count"] != float64(0) {
		t.Errorf("new lake count: got %v, want 0", newLakes["count"])
	}
}

func TestHandleToolsCall_ModelPredict(t *testing.T) {
	s := New(nil, nil)
	dir := t.TempDir()

	modelPath := filepath.Join(dir, "model.msgpack")
	if err := segment.Save(segment.NewConvNet(3, 4, 7), modelPath); err != nil {
		t.Fatal(err)
	}
	imgPath := filepath.Join(dir, "scene.png")
	img := image.NewNRGBA(image.Rect(0, 0, 10, 7))
	for y := 0; y < 7; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	writeTestPNG(t, imgPath, img)

	tests := []struct {
		name    string
		patches bool
	}{
		{"whole", false},
		{"patches", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+"_mask.png")
			callTool(t, s, "model_predict", map[string]interface{}{
				"image":      imgPath,
				"model":      modelPath,
				"output":     out,
				"patches":    tt.patches,
				"patch_size": 4,
			})

			f, err := os.Open(out)
			if err != nil {
				t.Fatalf("mask not written: %v", err)
			}
			defer f.Close()
			cfg, err := png.DecodeConfig(f)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != 10 || cfg.Height != 7 {
				t.Errorf("mask size: got %dx%d, want 10x7", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestHandleToolsCall_AnalysisHistory_Disabled(t *testing.T) {
	s := New(nil, nil)
	resp := callToolResponse(t, s, "analysis_history", map[string]interface{}{})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("expected tool failure without a store, got %+v", resp.Error)
	}
}

func TestHandleToolsCall_AnalysisHistory(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	cfg := config.Default()
	cfg.AlertThresholdKm2 = 0.0001
	s := New(cfg, st)
	earlier, later := createMaskPair(t, dir)

	result := callTool(t, s, "mask_growth", map[string]interface{}{
		"earlier_mask": earlier,
		"later_mask":   later,
	})
	report := result["report"].(map[string]interface{})
	if report["analysis_id"] == nil || report["alert_id"] == nil {
		t.Fatalf("analysis and alert should be recorded: %v", report)
	}

	tests := []struct {
		status     string
		wantAlerts int
	}{
		{"", 1},
		{"open", 1},
		{"acknowledged", 0},
		{"all", 1},
	}

	for _, tt := range tests {
		t.Run("status="+tt.status, func(t *testing.T) {
			history := callTool(t, s, "analysis_history", map[string]interface{}{"alert_status": tt.status})

			analyses := history["analyses"].([]interface{})
			if len(analyses) != 1 {
				t.Errorf("analyses: got %d, want 1", len(analyses))
			}
			alerts := history["alerts"].([]interface{})
			if len(alerts) != tt.wantAlerts {
				t.Errorf("alerts: got %d, want %d", len(alerts), tt.wantAlerts)
			}
		})
	}

	resp := callToolResponse(t, s, "analysis_history", map[string]interface{}{"alert_status": "closed"})
	if resp.Error == nil {
		t.Error("expected error for invalid alert_status")
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(nil, nil)
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name": 42}`),
	}

	resp := s.handleRequest(req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error for invalid params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := New(nil, nil)
	resp := callToolResponse(t, s, "image_ocr_full", map[string]interface{}{})

	if resp.Error == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Data.(string), "unknown tool") {
		t.Errorf("Error data: got %v", resp.Error.Data)
	}
}

func TestExecuteTool_BadArguments(t *testing.T) {
	s := New(nil, nil)
	tools := []string{
		"raster_info",
		"measure_distance",
		"mask_preview",
		"ndwi_stats",
		"ndwi_growth_scan",
		"mask_growth",
		"mask_growth_save",
		"growth_visualize",
		"growth_overlay",
		"detect_lakes",
		"model_predict",
	}

	for _, name := range tools {
		t.Run(name, func(t *testing.T) {
			_, err := s.executeTool(context.Background(), name, json.RawMessage(`"not an object"`))
			if err == nil {
				t.Error("expected error for non-object arguments")
			}
		})
	}
}

func TestCallConfig_IsolatesCalls(t *testing.T) {
	s := New(nil, nil)
	c := s.callConfig()
	c.MaskThreshold = 0.9
	c.Inputs.MayMask = "other.tif"

	if s.cfg.MaskThreshold != 0.5 {
		t.Errorf("server threshold changed to %v", s.cfg.MaskThreshold)
	}
	if s.cfg.Inputs.MayMask == "other.tif" {
		t.Error("server inputs changed")
	}
}
