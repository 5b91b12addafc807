package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neo4j-graphql/internal/auth"
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/schema/schematest"
)

func newAuthorizer(t *testing.T, typeDefs string, authCtx *auth.Context) (*Authorizer, *schema.Model) {
	model := schematest.Build(t, typeDefs)
	return New(filter.NewCompiler(model, authCtx, nil)), model
}

func TestFilterRules(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		a, model := newAuthorizer(t, schematest.Secured, auth.FromClaims(map[string]any{"sub": "u1"}))
		user := schematest.Entity(t, model, "User")

		pred, err := a.Filter(user, schema.OpRead)
		require.NoError(t, err)
		assert.Equal(t, &filter.Comparison{
			Scope:    filter.ScopeNode,
			Field:    "id",
			Property: "id",
			Semantic: schema.SemanticID,
			Operator: filter.OpEqual,
			Value:    "u1",
		}, pred)
	})

	t.Run("unauthenticated matches nothing", func(t *testing.T) {
		a, model := newAuthorizer(t, schematest.Secured, auth.Anonymous())
		user := schematest.Entity(t, model, "User")

		pred, err := a.Filter(user, schema.OpRead)
		require.NoError(t, err)
		assert.False(t, filter.Evaluate(pred, nil, nil))
	})

	t.Run("no rules", func(t *testing.T) {
		a, model := newAuthorizer(t, schematest.Secured, auth.Anonymous())
		post := schematest.Entity(t, model, "Post")

		pred, err := a.Filter(post, schema.OpRead)
		require.NoError(t, err)
		assert.Nil(t, pred)
	})
}

func TestValidateRules(t *testing.T) {
	editor := auth.FromClaims(map[string]any{"sub": "u1", "roles": []any{"editor"}})
	viewer := auth.FromClaims(map[string]any{"sub": "u1", "roles": []any{"viewer"}})

	tests := []struct {
		name    string
		authCtx *auth.Context
		entity  string
		op      schema.Operation
		when    schema.When
		wantErr error
		wantNil bool
	}{
		{"node predicate", editor, "User", schema.OpUpdate, schema.WhenBefore, nil, false},
		{"rule not applicable", editor, "User", schema.OpCreate, schema.WhenAfter, nil, true},
		{"claims satisfied", editor, "Post", schema.OpCreateRelationship, schema.WhenAfter, nil, true},
		{"claims rejected", viewer, "Post", schema.OpCreateRelationship, schema.WhenAfter, auth.ErrForbidden, true},
		{"unauthenticated", auth.Anonymous(), "Post", schema.OpDeleteRelationship, schema.WhenBefore, auth.ErrUnauthenticated, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, model := newAuthorizer(t, schematest.Secured, tt.authCtx)
			entity := schematest.Entity(t, model, tt.entity)

			pred, err := a.Validate(entity, tt.op, tt.when)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, pred)
			} else {
				assert.NotNil(t, pred)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	const typeDefs = `
		type Secret @node @authentication(jwt: { roles_INCLUDES: "admin" }) { value: String }
	` + schematest.Secured

	tests := []struct {
		name    string
		authCtx *auth.Context
		entity  string
		op      schema.Operation
		wantErr error
	}{
		{"anonymous read", auth.Anonymous(), "AdminNote", schema.OpRead, auth.ErrUnauthenticated},
		{"authenticated read", auth.FromClaims(map[string]any{"sub": "u1"}), "AdminNote", schema.OpRead, nil},
		{"operation not covered", auth.Anonymous(), "AdminNote", schema.OpDelete, nil},
		{"jwt predicate rejected", auth.FromClaims(map[string]any{"roles": []any{"user"}}), "Secret", schema.OpRead, auth.ErrForbidden},
		{"jwt predicate satisfied", auth.FromClaims(map[string]any{"roles": []any{"admin"}}), "Secret", schema.OpUpdate, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, model := newAuthorizer(t, typeDefs, tt.authCtx)
			err := a.Authenticate(schematest.Entity(t, model, tt.entity), tt.op)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAttributeRules(t *testing.T) {
	const typeDefs = `
		type Employee @node {
			name: String
			salary: Int @authorization(validate: [{ where: { jwt: { roles_INCLUDES: "hr" } } }])
			manager: Employee @relationship(type: "REPORTS_TO", direction: OUT)
		}
	`

	hr, model := newAuthorizer(t, typeDefs, auth.FromClaims(map[string]any{"roles": []any{"hr"}}))
	employee := schematest.Entity(t, model, "Employee")
	salary, _ := employee.Attribute("salary")
	name, _ := employee.Attribute("name")

	pred, err := hr.Attribute(employee, salary, schema.OpRead, schema.WhenBefore)
	require.NoError(t, err)
	assert.Nil(t, pred)

	staff, model := newAuthorizer(t, typeDefs, auth.FromClaims(map[string]any{"roles": []any{"staff"}}))
	employee = schematest.Entity(t, model, "Employee")
	salary, _ = employee.Attribute("salary")
	_, err = staff.Attribute(employee, salary, schema.OpRead, schema.WhenBefore)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	pred, err = staff.Attribute(employee, name, schema.OpRead, schema.WhenBefore)
	require.NoError(t, err)
	assert.Nil(t, pred)
}

func TestRuleCombinators(t *testing.T) {
	const typeDefs = `
		type Doc @node @authorization(filter: [{
			requireAuthentication: false
			where: { OR: [{ jwt: { roles_INCLUDES: "admin" } }, { node: { public: true } }] }
		}]) {
			public: Boolean
		}
	`

	admin, model := newAuthorizer(t, typeDefs, auth.FromClaims(map[string]any{"roles": []any{"admin"}}))
	doc := schematest.Entity(t, model, "Doc")
	pred, err := admin.Filter(doc, schema.OpRead)
	require.NoError(t, err)
	assert.Nil(t, pred)

	anon, model := newAuthorizer(t, typeDefs, auth.Anonymous())
	doc = schematest.Entity(t, model, "Doc")
	pred, err = anon.Filter(doc, schema.OpRead)
	require.NoError(t, err)
	cmp, ok := pred.(*filter.Comparison)
	require.True(t, ok)
	assert.Equal(t, "public", cmp.Property)
	assert.Equal(t, true, cmp.Value)
}
