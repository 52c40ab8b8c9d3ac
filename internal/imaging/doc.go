// Package imaging is the image side of lake analysis: loading rasters for
// the server, rendering masks and index grids as PNGs, and small pixel-space
// measurements.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner, X increasing rightward and Y increasing downward. For
// regions, (x1,y1) is inclusive and (x2,y2) is exclusive. Ground coordinates
// come from the raster's affine transform and refer to pixel centres.
//
// # Renderings
//
//   - GrowthRGB: red = new water, green = earlier water, blue = later water
//   - NDWIImage: BrBG colormap over [-0.3, 0.3]
//   - DifferenceImage: coolwarm colormap over [-0.5, 0.5]
//   - GrowthRed: growth mask with the Reds colormap
//   - Overlay: growth painted over a base image with partial opacity
//
// Colormaps blend their stops in CIE L*a*b*, so gradients stay perceptually
// even.
//
// # Thread Safety
//
// RasterCache is safe for concurrent use. Rasters it returns are shared and
// must not be modified. The rendering functions are stateless.
package imaging
