// Package detection finds individual water bodies in a binary water mask.
//
// A growth figure for a whole scene says how much water appeared; it does not
// say where. This package splits a mask into connected lakes so each one can
// be reported with its own size, position, and extent, and so lakes that are
// entirely new can be told apart from lakes that only grew.
//
// # Connectivity
//
// Lakes are 4-connected: two water pixels belong to the same lake only if
// they share an edge. Pixels touching only at a corner form separate lakes.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Limitations
//
// Lakes cut by the scene border are flagged with TouchesEdge; their measured
// area is only the part inside the scene. Noise in a thresholded mask tends
// to produce many one- or two-pixel bodies, which the minimum size filters.
package detection
