package services

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteGeoJSON renders a sequenced route for the dashboard map: one
// LineString in visit order starting at the origin, plus a Point per stop.
func (rs *RouteSequencer) RouteGeoJSON(origin Location, originAddress string, result SequenceResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	// orb points are [lng, lat]
	line := orb.LineString{orb.Point{origin.Longitude, origin.Latitude}}
	for _, stop := range result.Sequenced {
		line = append(line, orb.Point{*stop.Longitude, *stop.Latitude})
	}

	route := geojson.NewFeature(line)
	route.Properties["kind"] = "route"
	route.Properties["stops"] = len(result.Sequenced)
	route.Properties["total_distance_km"] = rs.TotalDistanceKm(origin, result)
	fc.Append(route)

	start := geojson.NewFeature(orb.Point{origin.Longitude, origin.Latitude})
	start.Properties["kind"] = "origin"
	start.Properties["address"] = originAddress
	fc.Append(start)

	for _, stop := range result.Sequenced {
		f := geojson.NewFeature(orb.Point{*stop.Longitude, *stop.Latitude})
		f.ID = stop.ID
		f.Properties["kind"] = string(stop.Kind)
		f.Properties["label"] = stop.Label
		f.Properties["address"] = stop.Address
		f.Properties["order"] = stop.Order
		f.Properties["distance_from_origin_km"] = stop.DistanceFromOrigin
		fc.Append(f)
	}

	return fc
}
