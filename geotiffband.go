package rastersample

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/maypok86/otter/v2"
	"golang.org/x/image/tiff/lzw"
)

// sridUserDefined is the GeoTIFF code for a user-defined CRS.
const sridUserDefined = 32767

var errShortRead = errors.New("short read")

// A GeoTIFFBand is a single-band, tiled, LZW-compressed float32 GeoTIFF
// opened as a raster [Band]. Pixel coordinates are band-local, with pixel
// (0, 0) in the top-left corner; georeferencing is exposed separately
// through [GeoTIFFBand.PixelScale], [GeoTIFFBand.Origin], and
// [GeoTIFFBand.SRID].
type GeoTIFFBand struct {
	file                      *os.File
	imageWidth                int
	imageLength               int
	tileWidth                 int
	tileLength                int
	tilesAcross               int
	tilesDown                 int
	tileOffsets               []uint64
	tileByteCounts            []uint64
	smallestTileByteCount     uint64
	tileSampleCount           int
	tileByteCountUncompressed int
	tileCacheSizeBytes        int
	tileSamplesCache          *otter.Cache[TileCoord, []float32]
	emptyTileBytes            []byte
	noData                    float32
	hasNoData                 bool
	scaleX                    float64
	scaleY                    float64
	originX                   float64
	originY                   float64
	srid                      int
}

// A GeoTIFFBandOption sets an option on a GeoTIFFBand.
type GeoTIFFBandOption func(*GeoTIFFBand)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal
// an IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALMetadata              string    `tiff:"field,tag=42112"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// NewGeoTIFFBand opens filename in fsys and returns it as a GeoTIFFBand.
func NewGeoTIFFBand(fsys fs.FS, filename string, options ...GeoTIFFBandOption) (*GeoTIFFBand, error) {
	var err error
	ok := false

	b := &GeoTIFFBand{
		tileCacheSizeBytes: 128 << 20, // 128MB.
	}
	for _, option := range options {
		option(b)
	}

	file, err := fsys.Open(filename)
	if err != nil {
		return nil, err
	}
	if _, ok := file.(*os.File); !ok {
		return nil, errors.ErrUnsupported
	}
	b.file = file.(*os.File)
	defer func() {
		if !ok {
			_ = b.file.Close()
		}
	}()

	tiffTIFF, err := tiff.Parse(b.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}

	if len(tiffTIFF.IFDs()) != 1 {
		return nil, fmt.Errorf("found %d IFDs, expected 1", len(tiffTIFF.IFDs()))
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	if ifd.BitsPerSample != 32 ||
		ifd.Compression != 5 ||
		ifd.PhotometricInterpretation != 1 ||
		ifd.SamplesPerPixel != 1 ||
		ifd.PlanarConfiguration != 1 ||
		ifd.Predictor != 1 ||
		ifd.SampleFormat != 3 ||
		len(ifd.ModelPixelScaleTag) != 3 || ifd.ModelPixelScaleTag[2] != 0 ||
		len(ifd.ModelTiepointTag) != 6 || ifd.ModelTiepointTag[2] != 0 || ifd.ModelTiepointTag[5] != 0 {
		return nil, errors.ErrUnsupported
	}

	if s := strings.TrimSpace(ifd.GDALNoData); s != "" {
		noData, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		b.noData = float32(noData)
		b.hasNoData = true
	}

	b.imageWidth = int(ifd.ImageWidth)
	b.imageLength = int(ifd.ImageLength)
	b.tileWidth = int(ifd.TileWidth)
	b.tileLength = int(ifd.TileLength)
	b.tilesAcross = (b.imageWidth + b.tileWidth - 1) / b.tileWidth
	b.tilesDown = (b.imageLength + b.tileLength - 1) / b.tileLength
	tilesPerImage := b.tilesAcross * b.tilesDown
	if len(ifd.TileByteCounts) != tilesPerImage || len(ifd.TileOffsets) != tilesPerImage {
		return nil, errors.New("incorrect number of tile byte counts or offsets")
	}
	b.tileOffsets = ifd.TileOffsets
	b.tileByteCounts = ifd.TileByteCounts
	b.smallestTileByteCount = slices.Min(ifd.TileByteCounts)
	b.tileSampleCount = b.tileWidth * b.tileLength
	b.tileByteCountUncompressed = b.tileSampleCount * int(ifd.BitsPerSample) / 8

	tileCacheCount := max(b.tileCacheSizeBytes/b.tileByteCountUncompressed, 1)
	b.tileSamplesCache, err = otter.New(&otter.Options[TileCoord, []float32]{
		MaximumSize: tileCacheCount,
	})
	if err != nil {
		return nil, err
	}

	if i, j, k := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1], ifd.ModelTiepointTag[2]; i != 0 || j != 0 || k != 0 {
		return nil, errors.ErrUnsupported
	}
	b.scaleX = ifd.ModelPixelScaleTag[0]
	b.scaleY = ifd.ModelPixelScaleTag[1]
	b.originX = ifd.ModelTiepointTag[3]
	b.originY = ifd.ModelTiepointTag[4]

	if directory := ifd.GeoKeyDirectoryTag; len(directory) > 0 {
		parsedGeoKeys, err := ParseGeoKeys(directory, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return nil, err
		}
		b.srid = parsedGeoKeys.SRID()
	}

	ok = true
	return b, nil
}

func WithTileCacheSize(tileCacheSize int) GeoTIFFBandOption {
	return func(b *GeoTIFFBand) {
		b.tileCacheSizeBytes = tileCacheSize
	}
}

func (b *GeoTIFFBand) Close() error {
	return b.file.Close()
}

// Bounds returns b's width and height in pixels.
func (b *GeoTIFFBand) Bounds() (int, int) {
	return b.imageWidth, b.imageLength
}

// PixelScale returns the width and height of one pixel in CRS units.
func (b *GeoTIFFBand) PixelScale() (float64, float64) {
	return b.scaleX, b.scaleY
}

// Origin returns the CRS coordinate of b's top-left outer corner.
func (b *GeoTIFFBand) Origin() (float64, float64) {
	return b.originX, b.originY
}

// SRID returns b's CRS code from its geokeys, or 0 if the CRS is unknown
// or user-defined.
func (b *GeoTIFFBand) SRID() int {
	return b.srid
}

// Sample returns the sample at a single pixel coordinate. Coordinates
// outside the band and no-data pixels are returned as NaN.
func (b *GeoTIFFBand) Sample(ctx context.Context, coord Coord) (float64, error) {
	tileCoord, ok := b.tileCoord(coord)
	if !ok {
		return math.NaN(), nil
	}
	switch tileSamples, err := b.getTileSamplesCached(ctx, tileCoord); {
	case errors.Is(err, otter.ErrNotFound):
		return math.NaN(), nil
	case err != nil:
		return 0, err
	default:
		return b.tileSample(tileSamples, coord), nil
	}
}

// Samples returns the samples at coords. It is significantly faster than
// calling [GeoTIFFBand.Sample] for each coordinate as it reads each
// required tile only once.
func (b *GeoTIFFBand) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by tile coord.
	indexesByTileCoord := make(map[TileCoord][]int)
	for index, coord := range coords {
		tileCoord, ok := b.tileCoord(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		indexesByTileCoord[tileCoord] = append(indexesByTileCoord[tileCoord], index)
	}

	// Populate samples one tile at a time.
	for tileCoord, indexes := range indexesByTileCoord {
		slices.Sort(indexes)
		switch tileSamples, err := b.getTileSamplesCached(ctx, tileCoord); {
		case errors.Is(err, otter.ErrNotFound):
			for _, index := range indexes {
				samples[index] = math.NaN()
			}
		case err != nil:
			return nil, err
		default:
			for _, index := range indexes {
				samples[index] = b.tileSample(tileSamples, coords[index])
			}
		}
	}

	return samples, nil
}

// getCompressedTileData returns the compressed tile data at tileCoord. If
// the tile is known to be empty, it returns the error otter.ErrNotFound.
func (b *GeoTIFFBand) getCompressedTileData(tileCoord TileCoord) ([]byte, error) {
	tileIndex := tileCoord.C + b.tilesAcross*tileCoord.R
	tileByteCount := b.tileByteCounts[tileIndex]
	tileOffset := b.tileOffsets[tileIndex]
	compressedData := make([]byte, tileByteCount)
	switch n, err := b.file.ReadAt(compressedData, int64(tileOffset)); {
	case err != nil:
		return nil, err
	case n != int(tileByteCount):
		return nil, errShortRead
	case b.emptyTileBytes != nil && bytes.Equal(compressedData, b.emptyTileBytes):
		return nil, otter.ErrNotFound
	default:
		return compressedData, nil
	}
}

// decompressTileData decompresses the tile data in compressedData.
func (b *GeoTIFFBand) decompressTileData(compressedData []byte) ([]byte, error) {
	tileData := make([]byte, b.tileByteCountUncompressed)
	r := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
	for bytesRead := 0; bytesRead < b.tileByteCountUncompressed; {
		n, err := r.Read(tileData[bytesRead:])
		if err != nil {
			return nil, err
		}
		bytesRead += n
	}
	return tileData, nil
}

// decodeTileData decodes tileData.
func (b *GeoTIFFBand) decodeTileData(tileData []byte) []float32 {
	tileSamples := make([]float32, b.tileSampleCount)
	for i := range b.tileSampleCount {
		bits := binary.LittleEndian.Uint32(tileData[i*4 : (i+1)*4])
		tileSamples[i] = math.Float32frombits(bits)
	}
	return tileSamples
}

// getTileSamples returns the tile samples at tileCoord.
func (b *GeoTIFFBand) getTileSamples(ctx context.Context, tileCoord TileCoord) ([]float32, error) {
	// Retrieve the compressed tile data.
	compressedTileData, err := b.getCompressedTileData(tileCoord)
	if err != nil {
		return nil, err
	}

	// Decompress the tile data and decode it.
	tileData, err := b.decompressTileData(compressedTileData)
	if err != nil {
		return nil, err
	}
	tileSamples := b.decodeTileData(tileData)

	// If we do not know what an empty tile looks like compressed, check to
	// see if this is an empty tile, and, if so, use its bytes to detect
	// empty tiles before they are decompressed. We assume that the empty
	// tile is the smallest tile.
	if b.hasNoData && b.emptyTileBytes == nil && len(compressedTileData) == int(b.smallestTileByteCount) {
		isEmptyTile := true
		for _, sample := range tileSamples {
			if sample != b.noData {
				isEmptyTile = false
				break
			}
		}
		if isEmptyTile {
			b.emptyTileBytes = compressedTileData
			return nil, otter.ErrNotFound
		}
	}

	return tileSamples, nil
}

// getTileSamplesCached returns the tile samples at tileCoord using b's
// cache.
func (b *GeoTIFFBand) getTileSamplesCached(ctx context.Context, tileCoord TileCoord) ([]float32, error) {
	return b.tileSamplesCache.Get(ctx, tileCoord, otter.LoaderFunc[TileCoord, []float32](b.getTileSamples))
}

// tileCoord returns the tile coord containing the pixel coordinate coord.
func (b *GeoTIFFBand) tileCoord(coord Coord) (TileCoord, bool) {
	if coord.X < 0 || b.imageWidth <= coord.X || coord.Y < 0 || b.imageLength <= coord.Y {
		return TileCoord{}, false
	}
	return TileCoord{
		C: coord.X / b.tileWidth,
		R: coord.Y / b.tileLength,
	}, true
}

// tileSample returns the sample from tileSamples at the pixel coordinate
// coord.
func (b *GeoTIFFBand) tileSample(tileSamples []float32, coord Coord) float64 {
	sample := tileSamples[coord.X%b.tileWidth+(coord.Y%b.tileLength)*b.tileWidth]
	if b.hasNoData && sample == b.noData {
		return math.NaN()
	}
	return float64(sample)
}
