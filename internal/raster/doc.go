// Package raster holds the pixel grids read from satellite scenes and masks,
// together with the affine transform that maps pixel indices to ground
// coordinates.
//
// # Grids
//
// A Grid is a row-major slice of float64 samples. Index (x, y) lives at
// Data[y*Width+x], with (0,0) at the top-left corner.
//
// # Affine Transform
//
// Affine uses the rasterio coefficient order:
//
//	X = A*col + B*row + C
//	Y = D*col + E*row + F
//
// For a north-up raster A is the pixel width and E is the negative pixel
// height, so the ground area of one pixel is |A*E|.
//
// # File Formats
//
// GeoTIFF files are read and written through one of two backends:
//
//   - The default pure-Go backend decodes single-band and RGB(A) integer
//     TIFFs with golang.org/x/image/tiff (any supported compression), decodes
//     uncompressed float, signed-integer and multi-band stacks directly, and
//     reads the GeoTIFF tags (ModelPixelScale, ModelTiepoint,
//     ModelTransformation, GeoKeyDirectory, GDAL_NODATA) itself.
//   - Building with -tags gdal switches to GDAL via github.com/airbusgeo/godal,
//     which handles tiled, compressed float rasters and carries the CRS as WKT.
//
// PNG (and JPEG/GIF) files are decoded with github.com/disintegration/imaging.
// They carry no geospatial metadata.
//
// Written GeoTIFFs are always single-band uint8: the binary masks produced by
// the analysis.
package raster
