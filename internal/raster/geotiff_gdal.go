//go:build gdal

package raster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

func readGeoTIFF(path string) (*Raster, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster: %w", err)
	}
	defer ds.Close()

	st := ds.Structure()
	r := &Raster{MaxValue: 1}

	if gt, err := ds.GeoTransform(); err == nil {
		r.Transform = FromGDAL(gt)
		r.HasTransform = true
	} else {
		r.Transform = Identity
	}
	r.WKT = ds.Projection()

	for i, band := range ds.Bands() {
		buf := make([]float64, st.SizeX*st.SizeY)
		if err := band.Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
			return nil, fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
		}
		r.Bands = append(r.Bands, &Grid{Width: st.SizeX, Height: st.SizeY, Data: buf})
		if i == 0 {
			if nd, ok := band.NoData(); ok {
				r.NoData = &nd
			}
		}
	}

	switch st.DataType {
	case godal.Byte:
		r.MaxValue = 255
	case godal.UInt16:
		r.MaxValue = 65535
	case godal.UInt32:
		r.MaxValue = 4294967295
	}
	return r, nil
}

func writeGeoTIFF(path string, width, height int, pix []uint8, ref Georef) error {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, width, height)
	if err != nil {
		return fmt.Errorf("failed to create raster: %w", err)
	}

	if ref.HasTransform {
		if err := ds.SetGeoTransform(ref.Transform.GDAL()); err != nil {
			ds.Close()
			return fmt.Errorf("failed to set geotransform: %w", err)
		}
	}
	if ref.WKT != "" {
		if err := ds.SetProjection(ref.WKT); err != nil {
			ds.Close()
			return fmt.Errorf("failed to set projection: %w", err)
		}
	}
	if err := ds.Bands()[0].Write(0, 0, pix, width, height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write mask band: %w", err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to close raster: %w", err)
	}
	return nil
}
