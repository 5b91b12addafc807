package scalars

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntScalar(t *testing.T) {
	scalar := BigInt()

	assert.Equal(t, "9223372036854775807", scalar.Serialize(int64(9223372036854775807)))

	parsed := scalar.ParseValue("42")
	require.IsType(t, int64(0), parsed)
	assert.Equal(t, int64(42), parsed)

	assert.Nil(t, scalar.ParseValue("not-a-number"))
	assert.Nil(t, scalar.ParseValue(1.5))
	assert.Equal(t, int64(7), scalar.ParseLiteral(&ast.StringValue{Value: "7"}))
}

func TestDateTimeScalar(t *testing.T) {
	scalar := DateTime()

	parsed := scalar.ParseValue("2024-01-15T10:30:00Z")
	require.IsType(t, time.Time{}, parsed)
	assert.Equal(t, "2024-01-15T10:30:00.000Z", scalar.Serialize(parsed))

	offset := scalar.ParseValue("2024-01-15T12:30:00+02:00")
	assert.Equal(t, "2024-01-15T10:30:00.000Z", scalar.Serialize(offset))

	assert.Nil(t, scalar.ParseValue("yesterday"))
}

func TestDateScalar(t *testing.T) {
	scalar := Date()

	parsed := scalar.ParseValue("2024-01-02")
	require.IsType(t, dbtype.Date{}, parsed)
	assert.Equal(t, "2024-01-02", scalar.Serialize(parsed))

	fromRFC := scalar.ParseValue("2024-01-02T11:12:13Z")
	require.IsType(t, dbtype.Date{}, fromRFC)
	assert.Equal(t, 0, time.Time(fromRFC.(dbtype.Date)).Hour())

	assert.Nil(t, scalar.ParseValue("10000-01-01"))
}

func TestLocalTemporalScalars(t *testing.T) {
	localTime := LocalTime()
	parsed := localTime.ParseValue("12:34:56.5")
	require.IsType(t, dbtype.LocalTime{}, parsed)
	assert.Equal(t, "12:34:56.5", localTime.Serialize(parsed))

	localDateTime := LocalDateTime()
	parsedLDT := localDateTime.ParseValue("2024-03-01T08:00:00")
	require.IsType(t, dbtype.LocalDateTime{}, parsedLDT)
	assert.Equal(t, "2024-03-01T08:00:00", localDateTime.Serialize(parsedLDT))

	offsetTime := Time()
	parsedTime := offsetTime.ParseValue("08:15:00+01:00")
	require.IsType(t, dbtype.Time{}, parsedTime)
	assert.Equal(t, "08:15:00+01:00", offsetTime.Serialize(parsedTime))
}

func TestDurationScalar(t *testing.T) {
	tests := []struct {
		input    string
		expected dbtype.Duration
		format   string
	}{
		{"P1Y2M3DT4H5M6S", dbtype.Duration{Months: 14, Days: 3, Seconds: 4*3600 + 5*60 + 6}, "P1Y2M3DT4H5M6S"},
		{"P2W", dbtype.Duration{Days: 14}, "P14D"},
		{"PT1.5S", dbtype.Duration{Seconds: 1, Nanos: 500000000}, "PT1.5S"},
		{"PT0S", dbtype.Duration{}, "PT0S"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, err := ParseISODuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed)
			assert.Equal(t, tt.format, FormatISODuration(parsed))
		})
	}

	_, err := ParseISODuration("P")
	assert.Error(t, err)
	_, err = ParseISODuration("1 day")
	assert.Error(t, err)

	scalar := Duration()
	assert.Equal(t, "P1D", scalar.Serialize(scalar.ParseValue("P1D")))
}

func TestPointScalars(t *testing.T) {
	point := Point()

	parsed := point.ParseValue(map[string]interface{}{"longitude": 1.5, "latitude": 50.0})
	assert.Equal(t, dbtype.Point2D{X: 1.5, Y: 50, SpatialRefId: SRIDWGS84}, parsed)

	parsed3D := point.ParseValue(map[string]interface{}{"longitude": 1.5, "latitude": 50.0, "height": 10})
	assert.Equal(t, dbtype.Point3D{X: 1.5, Y: 50, Z: 10, SpatialRefId: SRIDWGS843D}, parsed3D)

	serialized := point.Serialize(parsed).(map[string]interface{})
	assert.Equal(t, 1.5, serialized["longitude"])
	assert.Equal(t, 50.0, serialized["latitude"])
	assert.Nil(t, serialized["height"])

	assert.Nil(t, point.ParseValue(map[string]interface{}{"longitude": "east"}))

	cartesian := CartesianPoint()
	assert.Equal(t, dbtype.Point2D{X: 1, Y: 2, SpatialRefId: SRIDCartesian}, cartesian.ParseValue(map[string]interface{}{"x": 1, "y": 2}))
}

func TestRegistry(t *testing.T) {
	registry := Default()

	parsed, err := registry.Parse("Date", []interface{}{"2024-01-01", "2024-01-02"})
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, []interface{}{"2024-01-01", "2024-01-02"}, registry.Serialize("Date", parsed))

	_, err = registry.Parse("DateTime", "not a date")
	assert.EqualError(t, err, "invalid DateTime value not a date")

	passthrough, err := registry.Parse("Genre", "ACTION")
	require.NoError(t, err)
	assert.Equal(t, "ACTION", passthrough)

	assert.Equal(t, 5, registry.Serialize("Int", int64(5)))

	nilValue, err := registry.Parse("Int", nil)
	require.NoError(t, err)
	assert.Nil(t, nilValue)
}
