package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// maskPairProperties are the inputs shared by the mask growth tools.
func maskPairProperties() map[string]interface{} {
	return map[string]interface{}{
		"earlier_mask": map[string]interface{}{
			"type":        "string",
			"description": "Path to the earlier water mask (GeoTIFF; supplies pixel size and georeferencing)",
		},
		"later_mask": map[string]interface{}{
			"type":        "string",
			"description": "Path to the later water mask (PNG or GeoTIFF). Resampled onto the earlier grid when sizes differ",
		},
		"threshold": map[string]interface{}{
			"type":        "number",
			"description": "Binarization threshold for mask values. Default 0.5",
		},
	}
}

func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Raster Information
		{
			Name:        "raster_info",
			Description: "Load a GeoTIFF or image and return its size, band count, sample range, affine transform, and ground pixel size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raster file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "measure_distance",
			Description: "Measure the distance between two pixels, in pixels and, for georeferenced rasters, in ground units.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the raster file",
					},
					"x1": map[string]interface{}{"type": "integer", "description": "First point X"},
					"y1": map[string]interface{}{"type": "integer", "description": "First point Y"},
					"x2": map[string]interface{}{"type": "integer", "description": "Second point X"},
					"y2": map[string]interface{}{"type": "integer", "description": "Second point Y"},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},
		{
			Name:        "mask_preview",
			Description: "Return a named region of an image or mask PNG as base64-encoded PNG. Use this to look at growth renderings up close.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"region": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"full", "top-left", "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half", "left-half", "right-half", "center"},
						"description": "Named region to extract. Default full",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor. Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path"},
			},
		},

		// NDWI
		{
			Name:        "ndwi_stats",
			Description: "Compute NDWI = (green - nir) / (green + nir) for one acquisition and return min, max, mean, standard deviation, and the fraction of pixels above the water threshold.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"green": map[string]interface{}{
						"type":        "string",
						"description": "Path to the green band GeoTIFF",
					},
					"nir": map[string]interface{}{
						"type":        "string",
						"description": "Path to the near-infrared band GeoTIFF",
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Water threshold. Default from configuration (0)",
					},
				},
				"required": []string{"green", "nir"},
			},
		},
		{
			Name:        "ndwi_growth_scan",
			Description: "Compute NDWI for an earlier and a later acquisition, scan water thresholds, and report the threshold giving the largest lake growth. Writes the growth mask GeoTIFF, NDWI previews, and the NDWI change map.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"earlier_green": map[string]interface{}{"type": "string", "description": "Earlier green band"},
					"earlier_nir":   map[string]interface{}{"type": "string", "description": "Earlier near-infrared band"},
					"later_green":   map[string]interface{}{"type": "string", "description": "Later green band"},
					"later_nir":     map[string]interface{}{"type": "string", "description": "Later near-infrared band"},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for the output files. Default from configuration",
					},
					"start": map[string]interface{}{"type": "number", "description": "First threshold. Default -0.05"},
					"stop":  map[string]interface{}{"type": "number", "description": "Exclusive end of the scan. Default 0.05"},
					"step":  map[string]interface{}{"type": "number", "description": "Threshold step. Default 0.005"},
				},
				"required": []string{"earlier_green", "earlier_nir", "later_green", "later_nir"},
			},
		},

		// Mask Growth
		{
			Name:        "mask_growth",
			Description: "Measure lake growth between two water masks: pixels that are water in the later mask but not in the earlier one, and their area in km².",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": maskPairProperties(),
				"required":   []string{"earlier_mask", "later_mask"},
			},
		},
		{
			Name:        "mask_growth_save",
			Description: "Write the growth between two water masks as a single-band GeoTIFF with the earlier mask's georeferencing.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(maskPairProperties(), map[string]interface{}{
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Path of the GeoTIFF to write",
					},
				}),
				"required": []string{"earlier_mask", "later_mask", "output"},
			},
		},
		{
			Name:        "growth_visualize",
			Description: "Render both masks and the growth as an RGB PNG: red = new water, green = earlier water, blue = later water. Optionally returns an inline preview.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(maskPairProperties(), map[string]interface{}{
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Path of the PNG to write",
					},
					"outline": map[string]interface{}{
						"type":        "boolean",
						"description": "Draw the later shoreline in white",
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include the rendering as base64 PNG in the result",
					},
				}),
				"required": []string{"earlier_mask", "later_mask", "output"},
			},
		},
		{
			Name:        "growth_overlay",
			Description: "Paint the growth between two masks over a base image (for example a true-colour scene) and save it as PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(maskPairProperties(), map[string]interface{}{
					"base_image": map[string]interface{}{
						"type":        "string",
						"description": "Path to the image to paint over. Resized to the mask when sizes differ",
					},
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Path of the PNG to write",
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Hex color for growth pixels. Default #FF0000",
						"default":     "#FF0000",
					},
					"opacity": map[string]interface{}{
						"type":        "number",
						"description": "Blend opacity 0-1. Default 0.6",
						"default":     0.6,
					},
				}),
				"required": []string{"earlier_mask", "later_mask", "base_image", "output"},
			},
		},
		{
			Name:        "detect_lakes",
			Description: "Split the later water mask into connected lakes and list the lakes that did not exist in the earlier mask, with area, bounds, and centroid.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(maskPairProperties(), map[string]interface{}{
					"min_pixels": map[string]interface{}{
						"type":        "integer",
						"description": "Ignore water bodies smaller than this. Default from configuration (1)",
					},
				}),
				"required": []string{"earlier_mask", "later_mask"},
			},
		},

		// Model
		{
			Name:        "model_predict",
			Description: "Run the segmentation model over a 3-band image and write the predicted water mask. Large images can be processed as patches.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image": map[string]interface{}{
						"type":        "string",
						"description": "Path to the 3-band 8-bit image (GeoTIFF or PNG)",
					},
					"model": map[string]interface{}{
						"type":        "string",
						"description": "Path to the model weights. Default from configuration",
					},
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Path of the mask to write (.tif keeps georeferencing, otherwise PNG)",
					},
					"patches": map[string]interface{}{
						"type":        "boolean",
						"description": "Tile the image into patches and predict them in batches",
					},
					"patch_size": map[string]interface{}{
						"type":        "integer",
						"description": "Patch side in pixels. Default 256",
						"default":     256,
					},
				},
				"required": []string{"image", "output"},
			},
		},

		// History
		{
			Name:        "analysis_history",
			Description: "List recently recorded growth analyses, newest first, and the alerts raised for them.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum analyses to return. Default 20",
						"default":     20,
					},
					"alert_status": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"open", "acknowledged", "all"},
						"description": "Which alerts to include. Default open",
						"default":     "open",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
