package rastersample

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	missingTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersample_missing_tile_cache_hits_total",
		Help: "The total number of hits on the missing tile cache",
	})
	missingTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersample_missing_tile_cache_misses_total",
		Help: "The total number of misses on the missing tile cache",
	})
	openTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersample_open_tile_cache_hits_total",
		Help: "The total number of hits on the open tile cache",
	})
	openTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersample_open_tile_cache_misses_total",
		Help: "The total number of misses on the open tile cache",
	})
	openTileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rastersample_open_tile_cache_evictions_total",
		Help: "The total number of evictions from the open tile cache",
	})
)

// A TileCoordFunc returns the tile coordinate containing a pixel
// coordinate.
type TileCoordFunc func(Coord) (TileCoord, bool)

// A TileFilenameFunc returns the tile filename for a tile coordinate.
type TileFilenameFunc func(TileCoord) string

// A TileSet presents a mosaic of GeoTIFF tiles as a single virtual
// raster [Band]. The tile set has its own pixel grid, defined by an
// extent, an origin, and a pixel scale; pixel coordinates are mapped onto
// each tile's local grid through the tiles' georeferencing.
type TileSet struct {
	mutex              sync.Mutex
	fsys               fs.FS
	srid               int
	width              int
	height             int
	scaleX             float64
	scaleY             float64
	originX            float64
	originY            float64
	tileCoordFunc      TileCoordFunc
	tileFilenameFunc   TileFilenameFunc
	missingTiles       sync.Map
	geoTIFFBandOptions []GeoTIFFBandOption
	canaryFilename     string
	cacheSize          int
	openTileCache      *lru.Cache[TileCoord, *GeoTIFFBand]
}

// A TileSetOption sets an option on a TileSet.
type TileSetOption func(*TileSet)

// NewTileSet returns a new TileSet with the given options.
func NewTileSet(options ...TileSetOption) (*TileSet, error) {
	s := &TileSet{
		cacheSize: 32,
	}
	for _, option := range options {
		option(s)
	}

	var err error
	s.openTileCache, err = lru.NewWithEvict(s.cacheSize, func(key TileCoord, value *GeoTIFFBand) {
		if value != nil {
			value.Close()
		}
	})
	if err != nil {
		return nil, err
	}

	if s.canaryFilename != "" {
		canary, err := NewGeoTIFFBand(s.fsys, s.canaryFilename, s.geoTIFFBandOptions...)
		if err != nil {
			return nil, err
		}
		if err := canary.Close(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func WithCacheSize(cacheSize int) TileSetOption {
	return func(s *TileSet) {
		s.cacheSize = cacheSize
	}
}

// WithCanaryFilename sets a tile filename that must be openable when the
// TileSet is constructed, catching misconfigured data directories early.
func WithCanaryFilename(canaryFilename string) TileSetOption {
	return func(s *TileSet) {
		s.canaryFilename = canaryFilename
	}
}

func WithExtent(width, height int) TileSetOption {
	return func(s *TileSet) {
		s.width = width
		s.height = height
	}
}

func WithFS(fsys fs.FS) TileSetOption {
	return func(s *TileSet) {
		s.fsys = fsys
	}
}

func WithGeoTIFFBandOptions(geoTIFFBandOptions ...GeoTIFFBandOption) TileSetOption {
	return func(s *TileSet) {
		s.geoTIFFBandOptions = geoTIFFBandOptions
	}
}

func WithOrigin(originX, originY float64) TileSetOption {
	return func(s *TileSet) {
		s.originX = originX
		s.originY = originY
	}
}

func WithScale(scaleX, scaleY float64) TileSetOption {
	return func(s *TileSet) {
		s.scaleX = scaleX
		s.scaleY = scaleY
	}
}

func WithSRID(srid int) TileSetOption {
	return func(s *TileSet) {
		s.srid = srid
	}
}

func WithTileCoordFunc(tileCoordFunc TileCoordFunc) TileSetOption {
	return func(s *TileSet) {
		s.tileCoordFunc = tileCoordFunc
	}
}

func WithTileFilenameFunc(tileFilenameFunc TileFilenameFunc) TileSetOption {
	return func(s *TileSet) {
		s.tileFilenameFunc = tileFilenameFunc
	}
}

// Bounds returns s's width and height in pixels.
func (s *TileSet) Bounds() (int, int) {
	return s.width, s.height
}

// Origin returns the CRS coordinate of s's top-left outer corner.
func (s *TileSet) Origin() (float64, float64) {
	return s.originX, s.originY
}

// Scale returns the width and height of one pixel in CRS units.
func (s *TileSet) Scale() (float64, float64) {
	return s.scaleX, s.scaleY
}

// SRID returns s's SRID.
func (s *TileSet) SRID() int {
	return s.srid
}

// PixelCoord returns the continuous pixel coordinate of the CRS
// coordinate (x, y).
func (s *TileSet) PixelCoord(x, y float64) (float64, float64) {
	return (x - s.originX) / s.scaleX, (s.originY - y) / s.scaleY
}

// Samples returns the samples at coords. Missing samples are represented
// by NaNs.
func (s *TileSet) Samples(ctx context.Context, coords []Coord) ([]float64, error) {
	samples := make([]float64, len(coords))

	// Group indexes by tile coord.
	type groupStruct struct {
		coords  []Coord
		indexes []int
	}
	groupsByTileCoord := make(map[TileCoord]groupStruct)
	for index, coord := range coords {
		if coord.X < 0 || s.width <= coord.X || coord.Y < 0 || s.height <= coord.Y {
			samples[index] = math.NaN()
			continue
		}
		tileCoord, ok := s.tileCoordFunc(coord)
		if !ok {
			samples[index] = math.NaN()
			continue
		}
		group := groupsByTileCoord[tileCoord]
		group.coords = append(group.coords, coord)
		group.indexes = append(group.indexes, index)
		groupsByTileCoord[tileCoord] = group
	}

	// Populate samples one tile at a time.
	for tileCoord, group := range groupsByTileCoord {
		tile, err := s.getTileCached(tileCoord)
		if err != nil {
			return nil, err
		}
		if tile == nil {
			for _, index := range group.indexes {
				samples[index] = math.NaN()
			}
			continue
		}
		localCoords := make([]Coord, len(group.coords))
		for i, coord := range group.coords {
			localCoords[i] = s.localCoord(tile, coord)
		}
		localSamples, err := tile.Samples(ctx, localCoords)
		if err != nil {
			return nil, err
		}
		for localIndex, index := range group.indexes {
			samples[index] = localSamples[localIndex]
		}
	}

	return samples, nil
}

// localCoord returns coord in tile's local pixel grid.
func (s *TileSet) localCoord(tile *GeoTIFFBand, coord Coord) Coord {
	tileOriginX, tileOriginY := tile.Origin()
	offsetX := int(math.Round((tileOriginX - s.originX) / s.scaleX))
	offsetY := int(math.Round((s.originY - tileOriginY) / s.scaleY))
	return Coord{
		X: coord.X - offsetX,
		Y: coord.Y - offsetY,
	}
}

// getTile opens the tile at the given tile coordinate.
func (s *TileSet) getTile(tileCoord TileCoord) (*GeoTIFFBand, error) {
	filename := s.tileFilenameFunc(tileCoord)
	switch tile, err := NewGeoTIFFBand(s.fsys, filename, s.geoTIFFBandOptions...); {
	case errors.Is(err, fs.ErrNotExist):
		s.missingTiles.Store(tileCoord, struct{}{})
		missingTileCacheMisses.Inc()
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return tile, nil
	}
}

// getTileCached returns the tile at the given tile coordinate, using the
// cache if possible.
func (s *TileSet) getTileCached(tileCoord TileCoord) (*GeoTIFFBand, error) {
	if _, ok := s.missingTiles.Load(tileCoord); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.openTileCache.Get(tileCoord); ok {
		openTileCacheHits.Inc()
		return tile, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.missingTiles.Load(tileCoord); ok {
		missingTileCacheHits.Inc()
		return nil, nil
	}

	if tile, ok := s.openTileCache.Get(tileCoord); ok {
		openTileCacheHits.Inc()
		return tile, nil
	}

	openTileCacheMisses.Inc()

	tile, err := s.getTile(tileCoord)
	if err != nil {
		return nil, err
	}

	if eviction := s.openTileCache.Add(tileCoord, tile); eviction {
		openTileCacheEvictions.Inc()
	}

	return tile, nil
}
