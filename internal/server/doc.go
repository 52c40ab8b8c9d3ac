// Package server implements the MCP (Model Context Protocol) server for lake
// growth analysis.
//
// This package provides a JSON-RPC 2.0 server that exposes the NDWI and mask
// workflows through the MCP protocol, so an assistant can measure glacial
// lake growth between two acquisitions, inspect the rasters involved, and
// review earlier results.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Raster Information:
//   - raster_info: Size, bands, and georeferencing of a raster
//   - measure_distance: Pixel and ground distance between two points
//   - mask_preview: Inline PNG of a region of an image or mask
//
// NDWI:
//   - ndwi_stats: Index statistics for one acquisition
//   - ndwi_growth_scan: Threshold scan between two acquisitions
//
// Mask Growth:
//   - mask_growth: Growth area between two masks
//   - mask_growth_save: Growth mask written as a GeoTIFF
//   - growth_visualize: RGB rendering of both masks and the growth
//   - growth_overlay: Growth painted over a base image
//   - detect_lakes: Individual water bodies and the new ones
//
// Model:
//   - model_predict: Segmentation of an image, whole or in patches
//
// History:
//   - analysis_history: Recorded analyses and open alerts
//
// Tool arguments override the matching configuration values for that call
// only; omitted arguments fall back to the configuration.
//
// # Raster Caching
//
// Input rasters are cached by path and reused across tool calls. The cache
// persists for the lifetime of the server process, so a file rewritten in
// place is not re-read.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(cfg, history)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
