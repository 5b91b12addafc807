package scalars

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Spatial reference ids understood by Neo4j.
const (
	SRIDWGS84       uint32 = 4326
	SRIDWGS843D     uint32 = 4979
	SRIDCartesian   uint32 = 7203
	SRIDCartesian3D uint32 = 9157
)

// Point is a geographic point. Input and output are maps with longitude,
// latitude and optional height.
func Point() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Point",
		Description: "WGS-84 point as {longitude, latitude, height}.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case dbtype.Point2D:
				return map[string]interface{}{"longitude": v.X, "latitude": v.Y, "height": nil, "srid": int(v.SpatialRefId), "crs": "wgs-84"}
			case dbtype.Point3D:
				return map[string]interface{}{"longitude": v.X, "latitude": v.Y, "height": v.Z, "srid": int(v.SpatialRefId), "crs": "wgs-84-3d"}
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return parsePoint(value, "longitude", "latitude", "height", SRIDWGS84, SRIDWGS843D)
		},
		ParseLiteral: objectLiteral(func(m map[string]interface{}) interface{} {
			return parsePoint(m, "longitude", "latitude", "height", SRIDWGS84, SRIDWGS843D)
		}),
	})
}

// CartesianPoint is a point in a cartesian plane or space.
func CartesianPoint() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "CartesianPoint",
		Description: "Cartesian point as {x, y, z}.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case dbtype.Point2D:
				return map[string]interface{}{"x": v.X, "y": v.Y, "z": nil, "srid": int(v.SpatialRefId), "crs": "cartesian"}
			case dbtype.Point3D:
				return map[string]interface{}{"x": v.X, "y": v.Y, "z": v.Z, "srid": int(v.SpatialRefId), "crs": "cartesian-3d"}
			default:
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return parsePoint(value, "x", "y", "z", SRIDCartesian, SRIDCartesian3D)
		},
		ParseLiteral: objectLiteral(func(m map[string]interface{}) interface{} {
			return parsePoint(m, "x", "y", "z", SRIDCartesian, SRIDCartesian3D)
		}),
	})
}

func parsePoint(value interface{}, xKey, yKey, zKey string, srid2D, srid3D uint32) interface{} {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	x, okX := toFloat(m[xKey])
	y, okY := toFloat(m[yKey])
	if !okX || !okY {
		return nil
	}
	if raw, present := m[zKey]; present && raw != nil {
		z, okZ := toFloat(raw)
		if !okZ {
			return nil
		}
		return dbtype.Point3D{X: x, Y: y, Z: z, SpatialRefId: srid3D}
	}
	return dbtype.Point2D{X: x, Y: y, SpatialRefId: srid2D}
}

func objectLiteral(parse func(map[string]interface{}) interface{}) graphql.ParseLiteralFn {
	return func(valueAST ast.Value) interface{} {
		obj, ok := valueAST.(*ast.ObjectValue)
		if !ok {
			return nil
		}
		m := make(map[string]interface{}, len(obj.Fields))
		for _, field := range obj.Fields {
			switch v := field.Value.(type) {
			case *ast.IntValue:
				m[field.Name.Value], _ = strconv.ParseFloat(v.Value, 64)
			case *ast.FloatValue:
				m[field.Name.Value], _ = strconv.ParseFloat(v.Value, 64)
			}
		}
		return parse(m)
	}
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

var isoDurationPattern = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseISODuration parses an ISO-8601 duration into the driver's duration value.
func ParseISODuration(raw string) (dbtype.Duration, error) {
	match := isoDurationPattern.FindStringSubmatch(raw)
	if match == nil || raw == "P" || strings.HasSuffix(raw, "T") {
		return dbtype.Duration{}, fmt.Errorf("invalid ISO-8601 duration %q", raw)
	}
	num := func(s string) int64 {
		if s == "" {
			return 0
		}
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	months := num(match[2])*12 + num(match[3])
	days := num(match[4])*7 + num(match[5])
	seconds := num(match[6])*3600 + num(match[7])*60
	var nanos int
	if match[8] != "" {
		f, err := strconv.ParseFloat(match[8], 64)
		if err != nil {
			return dbtype.Duration{}, fmt.Errorf("invalid ISO-8601 duration %q: %w", raw, err)
		}
		whole := math.Floor(f)
		seconds += int64(whole)
		nanos = int(math.Round((f - whole) * 1e9))
	}
	if match[1] == "-" {
		months, days, seconds, nanos = -months, -days, -seconds, -nanos
	}
	return dbtype.Duration{Months: months, Days: days, Seconds: seconds, Nanos: nanos}, nil
}

// FormatISODuration renders a duration in ISO-8601 form.
func FormatISODuration(d dbtype.Duration) string {
	var b strings.Builder
	b.WriteString("P")
	if years := d.Months / 12; years != 0 {
		fmt.Fprintf(&b, "%dY", years)
	}
	if months := d.Months % 12; months != 0 {
		fmt.Fprintf(&b, "%dM", months)
	}
	if d.Days != 0 {
		fmt.Fprintf(&b, "%dD", d.Days)
	}
	hours := d.Seconds / 3600
	minutes := (d.Seconds % 3600) / 60
	seconds := d.Seconds % 60
	if hours != 0 || minutes != 0 || seconds != 0 || d.Nanos != 0 {
		b.WriteString("T")
		if hours != 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes != 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds != 0 || d.Nanos != 0 {
			if d.Nanos != 0 {
				frac := strings.TrimRight(fmt.Sprintf("%09d", abs(d.Nanos)), "0")
				fmt.Fprintf(&b, "%d.%sS", seconds, frac)
			} else {
				fmt.Fprintf(&b, "%dS", seconds)
			}
		}
	}
	if b.Len() == 1 {
		return "PT0S"
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
