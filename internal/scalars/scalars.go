package scalars

import (
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const (
	dateLayout          = "2006-01-02"
	localTimeLayout     = "15:04:05.999999999"
	timeLayout          = "15:04:05.999999999Z07:00"
	localDateTimeLayout = "2006-01-02T15:04:05.999999999"
	dateTimeLayout      = "2006-01-02T15:04:05.000Z07:00"
)

// BigInt is a 64-bit integer serialized as a string.
func BigInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigInt",
		Description: "64-bit integer value serialized as a string.",
		Serialize: func(value interface{}) interface{} {
			if parsed, ok := coerceInt64(value); ok {
				return strconv.FormatInt(parsed, 10)
			}
			return nil
		},
		ParseValue: func(value interface{}) interface{} {
			if parsed, ok := coerceInt64(value); ok {
				return parsed
			}
			return nil
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				return parseInt64(v.Value)
			case *ast.StringValue:
				return parseInt64(v.Value)
			default:
				return nil
			}
		},
	})
}

// DateTime is a zoned instant serialized as ISO-8601 with millisecond precision.
func DateTime() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return parsed
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "DateTime",
		Description: "Zoned date and time serialized as an ISO-8601 string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(dateTimeLayout)
			case dbtype.LocalDateTime:
				return time.Time(v).UTC().Format(dateTimeLayout)
			case string:
				return v
			default:
				return nil
			}
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

// Date is a calendar date serialized as YYYY-MM-DD.
func Date() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case dbtype.Date:
			return v
		case time.Time:
			return dbtype.Date(time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC))
		case string:
			if parsed, err := time.Parse(dateLayout, v); err == nil {
				return dbtype.Date(parsed)
			}
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				return dbtype.Date(time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC))
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Date",
		Description: "Date value serialized as YYYY-MM-DD.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case dbtype.Date:
				return time.Time(v).Format(dateLayout)
			case time.Time:
				return v.UTC().Format(dateLayout)
			default:
				return nil
			}
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

// Time is a time of day with a UTC offset.
func Time() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case dbtype.Time:
			return v
		case string:
			if parsed, err := time.Parse(timeLayout, v); err == nil {
				return dbtype.Time(parsed)
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Time",
		Description: "Time of day with offset serialized as HH:MM:SS[.fff]Z.",
		Serialize: func(value interface{}) interface{} {
			if v, ok := value.(dbtype.Time); ok {
				return time.Time(v).Format(timeLayout)
			}
			return nil
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

// LocalTime is a time of day without offset.
func LocalTime() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case dbtype.LocalTime:
			return v
		case string:
			if parsed, err := time.Parse(localTimeLayout, v); err == nil {
				return dbtype.LocalTime(parsed)
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "LocalTime",
		Description: "Time of day without offset serialized as HH:MM:SS[.fff].",
		Serialize: func(value interface{}) interface{} {
			if v, ok := value.(dbtype.LocalTime); ok {
				return time.Time(v).Format(localTimeLayout)
			}
			return nil
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

// LocalDateTime is a date and time without zone.
func LocalDateTime() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case dbtype.LocalDateTime:
			return v
		case string:
			if parsed, err := time.Parse(localDateTimeLayout, v); err == nil {
				return dbtype.LocalDateTime(parsed)
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "LocalDateTime",
		Description: "Date and time without zone serialized as YYYY-MM-DDTHH:MM:SS[.fff].",
		Serialize: func(value interface{}) interface{} {
			if v, ok := value.(dbtype.LocalDateTime); ok {
				return time.Time(v).Format(localDateTimeLayout)
			}
			return nil
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

// Duration is an ISO-8601 duration such as P1Y2M3DT4H.
func Duration() *graphql.Scalar {
	parse := func(value interface{}) interface{} {
		switch v := value.(type) {
		case dbtype.Duration:
			return v
		case string:
			if parsed, err := ParseISODuration(v); err == nil {
				return parsed
			}
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Duration",
		Description: "ISO-8601 duration.",
		Serialize: func(value interface{}) interface{} {
			if v, ok := value.(dbtype.Duration); ok {
				return FormatISODuration(v)
			}
			return nil
		},
		ParseValue:   parse,
		ParseLiteral: stringLiteral(parse),
	})
}

func stringLiteral(parse func(interface{}) interface{}) graphql.ParseLiteralFn {
	return func(valueAST ast.Value) interface{} {
		if sv, ok := valueAST.(*ast.StringValue); ok {
			return parse(sv.Value)
		}
		return nil
	}
}

func parseInt64(raw string) interface{} {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return parsed
}

func coerceInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
