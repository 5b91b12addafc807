// Package mutation plans create, update and delete operations as ordered,
// nested step lists over the schema model.
package mutation

import (
	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/plan"
	"neo4j-graphql/internal/schema"
)

// RestrictSentinel prefixes the error a statement raises when a node with
// RESTRICT relationships is deleted.
const RestrictSentinel = "@neo4j-graphql/RESTRICT"

// Kind is the root mutation kind.
type Kind int

const (
	KindCreate Kind = iota
	KindUpdate
	KindDelete
)

// StepKind identifies one write.
type StepKind int

const (
	StepCreateNode StepKind = iota
	StepCreateRelationship
	StepConnect
	StepConnectOrCreate
	StepUpdateNode
	StepUpdateRelationship
	StepDisconnect
	StepDeleteRelationship
	StepDeleteNode
)

var stepNames = map[StepKind]string{
	StepCreateNode:         "CreateNode",
	StepCreateRelationship: "CreateRelationship",
	StepConnect:            "Connect",
	StepConnectOrCreate:    "ConnectOrCreate",
	StepUpdateNode:         "UpdateNodeProperties",
	StepUpdateRelationship: "UpdateRelationshipProperties",
	StepDisconnect:         "Disconnect",
	StepDeleteRelationship: "DeleteRelationship",
	StepDeleteNode:         "DeleteNode",
}

func (k StepKind) String() string { return stepNames[k] }

// Phase orders sibling steps within one node context: connect and create
// first, then updates, then disconnects, then deletes.
func (k StepKind) Phase() int {
	switch k {
	case StepCreateNode, StepCreateRelationship, StepConnect, StepConnectOrCreate:
		return 0
	case StepUpdateNode, StepUpdateRelationship:
		return 1
	case StepDisconnect, StepDeleteRelationship:
		return 2
	}
	return 3
}

// Step is one write. Steps hanging off another node name it in Parent and
// traverse Relationship; their nested steps run in the scope of Var.
type Step struct {
	Kind StepKind
	// Path is the input path the step was planned from.
	Path         string
	Entity       *schema.Entity
	Var          string
	Parent       string
	Relationship *schema.Relationship
	RelVar       string
	Properties   *schema.RelationshipProperties
	// Where selects existing nodes (and relationships) for matching steps.
	Where filter.Predicate
	// Set holds node assignments; for relationship steps, edge assignments.
	Set []Assignment
	// Merge holds the identifying properties of ConnectOrCreate.
	Merge            []Assignment
	CreateDuplicates bool
	Before           []Guard
	After            []Guard
	// Restrict lists RESTRICT relationships that must be empty before a
	// node is deleted.
	Restrict []*schema.Relationship
	Steps    []*Step
}

// Guard is an authorization predicate bound to statement variables.
type Guard struct {
	Var    string
	RelVar string
	Pred   filter.Predicate
}

// AssignOp is how an assignment combines with the stored value.
type AssignOp string

const (
	AssignSet       AssignOp = "SET"
	AssignIncrement AssignOp = "INCREMENT"
	AssignDecrement AssignOp = "DECREMENT"
	AssignAdd       AssignOp = "ADD"
	AssignSubtract  AssignOp = "SUBTRACT"
	AssignMultiply  AssignOp = "MULTIPLY"
	AssignDivide    AssignOp = "DIVIDE"
	AssignPush      AssignOp = "PUSH"
	AssignPop       AssignOp = "POP"
)

// ValueSource says where an assigned value comes from.
type ValueSource int

const (
	SourceInput ValueSource = iota
	SourceTimestamp
	SourceUUID
)

// Assignment writes one property.
type Assignment struct {
	Field    string
	Property string
	Semantic schema.Semantic
	Op       AssignOp
	Source   ValueSource
	Value    any
}

// Counters are statement write counts.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
}

// Plan is a planned root mutation.
type Plan struct {
	Kind   Kind
	Entity *schema.Entity
	Steps  []*Step
	// Estimate counts the writes the plan is certain to make. Matching
	// steps may add more.
	Estimate Counters
	// Projections select the returned nodes, one per requested alias of the
	// response list.
	Projections []*plan.Node
}

// Walk visits steps depth first in execution order.
func Walk(steps []*Step, visit func(*Step)) {
	for _, s := range steps {
		visit(s)
		Walk(s.Steps, visit)
	}
}
