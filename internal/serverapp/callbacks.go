package serverapp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"neo4j-graphql/internal/mutation"

	"github.com/google/uuid"
)

// builtinCallbacks are the @callback implementations the server ships.
var builtinCallbacks = map[string]mutation.Callback{
	"uuid": func(context.Context, map[string]any, mutation.CallbackInfo) (any, error) {
		return uuid.NewString(), nil
	},
	"timestamp": func(context.Context, map[string]any, mutation.CallbackInfo) (any, error) {
		return time.Now().UTC().Format(time.RFC3339Nano), nil
	},
	"slug": slugCallback,
}

// resolveCallbacks selects the named built-in callbacks. No names selects
// every built-in.
func resolveCallbacks(names []string) (map[string]mutation.Callback, error) {
	if len(names) == 0 {
		out := make(map[string]mutation.Callback, len(builtinCallbacks))
		for name, cb := range builtinCallbacks {
			out[name] = cb
		}
		return out, nil
	}
	out := make(map[string]mutation.Callback, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		cb, ok := builtinCallbacks[name]
		if !ok {
			return nil, fmt.Errorf("unknown callback %q (available: %s)", name, strings.Join(callbackNames(builtinCallbacks), ", "))
		}
		out[name] = cb
	}
	return out, nil
}

func callbackNames(callbacks map[string]mutation.Callback) []string {
	names := make([]string, 0, len(callbacks))
	for name := range callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// slugCallback derives a URL slug from the title or name of the object.
func slugCallback(_ context.Context, parent map[string]any, info mutation.CallbackInfo) (any, error) {
	for _, key := range []string{"title", "name"} {
		if value, ok := parent[key].(string); ok && value != "" {
			return slugify(value), nil
		}
	}
	return nil, fmt.Errorf("slug for %s.%s needs a title or name", info.Type, info.Field)
}

func slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
