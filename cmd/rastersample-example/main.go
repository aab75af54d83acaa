package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/twpayne/go-rastersample"
)

func run() error {
	euDEM := flag.String("eu_dem-path", os.Getenv("EU_DEM_PATH"), "path to EU DEM data")
	methodName := flag.String("method", "bilinear", "interpolation method (nearest, bilinear, or cubicspline)")
	flag.Parse()

	if flag.NArg() != 2 {
		return errors.New("syntax: rastersample-example latitude longitude")
	}
	lat, err := strconv.ParseFloat(flag.Arg(0), 64)
	if err != nil {
		return err
	}
	lon, err := strconv.ParseFloat(flag.Arg(1), 64)
	if err != nil {
		return err
	}
	method, err := rastersample.ParseMethod(*methodName)
	if err != nil {
		return err
	}

	es, err := rastersample.NewEUDEMElevationService(
		os.DirFS(*euDEM),
		rastersample.WithCanaryFilename("eu_dem_v11_E40N30.TIF"),
	)
	if err != nil {
		return err
	}

	coords := [][]float64{{lon, lat}}
	elevations, err := es.Elevation4326(context.Background(), coords, method)
	if err != nil {
		return err
	}
	fmt.Println(elevations[0])

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
