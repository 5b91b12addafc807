package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	authCtx := &Context{
		JWT: map[string]any{
			"sub":   "u1",
			"roles": []any{"admin"},
			"org":   map[string]any{"id": "o1"},
		},
		Values: map[string]any{"region": "eu"},
	}
	authCtx.JWT["https://example.com/tenant"] = "t1"

	tests := []struct {
		name  string
		input any
		want  any
	}{
		{"claim", "$jwt.sub", "u1"},
		{"nested claim", "$jwt.org.id", "o1"},
		{"dotted claim name", "$jwt.https://example.com/tenant", "t1"},
		{"missing claim", "$jwt.email", nil},
		{"context value", "$context.region", "eu"},
		{"literal", "plain", "plain"},
		{"embedded token is literal", "id-$jwt.sub", "id-$jwt.sub"},
		{"list", []any{"$jwt.sub", 1}, []any{"u1", 1}},
		{"map", map[string]any{"id": "$jwt.sub"}, map[string]any{"id": "u1"}},
		{"number", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, authCtx.Substitute(tt.input))
		})
	}
}

func TestAnonymousContext(t *testing.T) {
	anon := Anonymous()
	assert.False(t, anon.IsAuthenticated())
	assert.Nil(t, anon.Substitute("$jwt.sub"))

	var nilCtx *Context
	assert.False(t, nilCtx.IsAuthenticated())
	assert.Nil(t, nilCtx.Substitute("$context.x"))

	assert.True(t, FromClaims(nil).IsAuthenticated())
}

func TestContextRoundTrip(t *testing.T) {
	assert.False(t, FromContext(context.Background()).IsAuthenticated())

	ctx := WithContext(context.Background(), FromClaims(map[string]any{"sub": "u2"}))
	got := FromContext(ctx)
	require.True(t, got.IsAuthenticated())
	assert.Equal(t, "u2", got.Claim("sub"))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Unauthenticated", ErrUnauthenticated.Error())
	assert.Equal(t, "Forbidden", ErrForbidden.Error())
	assert.True(t, IsForbiddenSentinel("Failed to invoke procedure: @neo4j-graphql/FORBIDDEN"))
	assert.False(t, IsForbiddenSentinel("constraint violation"))
}
