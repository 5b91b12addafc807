package mutation

import (
	"context"

	"neo4j-graphql/internal/filter"
	"neo4j-graphql/internal/schema"
	"neo4j-graphql/internal/validation"
)

// createNode plans a new node of a concrete entity and its nested
// relationship input.
func (p *Planner) createNode(ctx context.Context, entity *schema.Entity, input map[string]any, path string) (*Step, error) {
	if entity.IsAbstract() {
		return nil, validation.Errorf(path, "cannot create abstract type %s", entity.Name)
	}
	if err := p.authz.Authenticate(entity, schema.OpCreate); err != nil {
		return nil, err
	}
	rels, err := relationshipKeys(entity, input, path, false)
	if err != nil {
		return nil, err
	}
	step := &Step{Kind: StepCreateNode, Path: path, Entity: entity, Var: p.names.Next("this")}
	if step.Set, err = p.createSet(ctx, entity.Name, entity, attributeInput(entity, input), path); err != nil {
		return nil, err
	}
	if err := p.validateGuard(step, entity, schema.OpCreate, schema.WhenAfter, &step.After); err != nil {
		return nil, err
	}
	if err := p.attributeGuards(step, schema.OpCreate); err != nil {
		return nil, err
	}
	for _, rel := range rels {
		relPath := validation.Join(path, rel.Name)
		members, err := p.members(rel, input[rel.Name], relPath)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			ops, err := asMap(m.value, m.path)
			if err != nil {
				return nil, err
			}
			if err := checkKeys(ops, m.path, opConnect, opConnectOrCreate, opCreate); err != nil {
				return nil, err
			}
			for _, op := range sortedKeys(ops) {
				steps, err := p.memberOp(ctx, step, rel, m.entity, op, ops[op], validation.Join(m.path, op))
				if err != nil {
					return nil, err
				}
				step.Steps = append(step.Steps, steps...)
			}
		}
	}
	return step, nil
}

// updateNode applies the property and relationship input of an update to
// a matched node. Callers have already attached the BEFORE guard.
func (p *Planner) updateNode(ctx context.Context, step *Step, input map[string]any, path string) error {
	entity := step.Entity
	rels, err := relationshipKeys(entity, input, path, true)
	if err != nil {
		return err
	}
	if step.Set, err = p.updateSet(ctx, entity.Name, entity, attributeInput(entity, input), path); err != nil {
		return err
	}
	if err := p.validateGuard(step, entity, schema.OpUpdate, schema.WhenAfter, &step.After); err != nil {
		return err
	}
	if err := p.attributeGuards(step, schema.OpUpdate); err != nil {
		return err
	}
	for _, rel := range rels {
		steps, err := p.updateItems(ctx, step, rel, input[rel.Name], validation.Join(path, rel.Name))
		if err != nil {
			return err
		}
		step.Steps = append(step.Steps, steps...)
	}
	return nil
}

// updateItems plans `rel: [{where, update, connect, disconnect, create,
// delete, connectOrCreate}]` inside an update. where selects the related
// nodes the update item applies to.
func (p *Planner) updateItems(ctx context.Context, parent *Step, rel *schema.Relationship, value any, path string) ([]*Step, error) {
	members, err := p.members(rel, value, path)
	if err != nil {
		return nil, err
	}
	var steps []*Step
	for _, m := range members {
		items, paths, err := objects(m.value, m.path)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			itemPath := paths[i]
			if err := checkKeys(item, itemPath, keyWhere, opUpdate, opConnect, opDisconnect, opCreate, opDelete, opConnectOrCreate); err != nil {
				return nil, err
			}
			if raw, ok := item[opUpdate]; ok {
				where, err := asMap(item[keyWhere], validation.Join(itemPath, keyWhere))
				if err != nil {
					return nil, err
				}
				update, err := asMap(raw, validation.Join(itemPath, opUpdate))
				if err != nil {
					return nil, err
				}
				out, err := p.nestedUpdate(ctx, parent, rel, m.entity, where, update, itemPath)
				if err != nil {
					return nil, err
				}
				steps = append(steps, out...)
			}
			for _, op := range []string{opConnect, opCreate, opConnectOrCreate, opDisconnect, opDelete} {
				raw, ok := item[op]
				if !ok {
					continue
				}
				out, err := p.memberOp(ctx, parent, rel, m.entity, op, raw, validation.Join(itemPath, op))
				if err != nil {
					return nil, err
				}
				steps = append(steps, out...)
			}
		}
	}
	return steps, nil
}

// relationshipOp plans a top-level update argument such as
// `connect: {rel: [...]}` for one relationship.
func (p *Planner) relationshipOp(ctx context.Context, parent *Step, rel *schema.Relationship, op string, value any, path string) ([]*Step, error) {
	members, err := p.members(rel, value, path)
	if err != nil {
		return nil, err
	}
	var steps []*Step
	for _, m := range members {
		out, err := p.memberOp(ctx, parent, rel, m.entity, op, m.value, m.path)
		if err != nil {
			return nil, err
		}
		steps = append(steps, out...)
	}
	return steps, nil
}

// memberOp plans every item of one nested operation against target.
func (p *Planner) memberOp(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, op string, value any, path string) ([]*Step, error) {
	items, paths, err := objects(value, path)
	if err != nil {
		return nil, err
	}
	var steps []*Step
	for i, item := range items {
		var out []*Step
		switch op {
		case opCreate:
			var step *Step
			step, err = p.nestedCreate(ctx, parent, rel, target, item, paths[i])
			out = []*Step{step}
		case opConnect:
			out, err = p.connect(ctx, parent, rel, target, item, paths[i])
		case opConnectOrCreate:
			var step *Step
			step, err = p.connectOrCreate(ctx, parent, rel, target, item, paths[i])
			out = []*Step{step}
		case opDisconnect:
			out, err = p.disconnect(ctx, parent, rel, target, item, paths[i])
		case opDelete:
			out, err = p.deleteRelated(ctx, parent, rel, target, item, paths[i])
		default:
			return nil, validation.Errorf(path, "unknown operation %s", op)
		}
		if err != nil {
			return nil, err
		}
		steps = append(steps, out...)
	}
	return steps, nil
}

// nestedCreate plans `{node, edge}`: a new node attached to parent.
// Interface targets name the implementation inside node.
func (p *Planner) nestedCreate(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, item map[string]any, path string) (*Step, error) {
	if err := checkKeys(item, path, keyNode, keyEdge); err != nil {
		return nil, err
	}
	nodePath := validation.Join(path, keyNode)
	input, err := asMap(item[keyNode], nodePath)
	if err != nil {
		return nil, err
	}
	concrete := target
	if target.Kind == schema.KindInterface {
		if len(input) != 1 {
			return nil, validation.Errorf(nodePath, "expected exactly one implementation of %s", target.Name)
		}
		name := sortedKeys(input)[0]
		impl, ok := p.model.Entity(name)
		if !ok || impl.IsAbstract() || !p.model.Implements(impl, target.Name) {
			return nil, validation.Errorf(validation.Join(nodePath, name), "%s does not implement %s", name, target.Name)
		}
		concrete = impl
		nodePath = validation.Join(nodePath, name)
		if input, err = asMap(input[name], nodePath); err != nil {
			return nil, err
		}
	}
	step, err := p.createNode(ctx, concrete, input, nodePath)
	if err != nil {
		return nil, err
	}
	step.Path = path
	step.Parent = parent.Var
	step.Relationship = rel
	link, err := p.link(ctx, parent, rel, step, item[keyEdge], validation.Join(path, keyEdge))
	if err != nil {
		return nil, err
	}
	step.RelVar = link.RelVar
	step.Steps = append([]*Step{link}, step.Steps...)
	return step, nil
}

// connect plans `{where: {node}, edge, connect, createDuplicates}`. Each
// concrete target matched becomes a Connect step.
func (p *Planner) connect(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, item map[string]any, path string) ([]*Step, error) {
	if err := checkKeys(item, path, keyWhere, keyEdge, opConnect, keyCreateDuplicates); err != nil {
		return nil, err
	}
	wherePath := validation.Join(path, keyWhere)
	where, err := asMap(item[keyWhere], wherePath)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(where, wherePath, keyNode); err != nil {
		return nil, err
	}
	nodeWhere, err := asMap(where[keyNode], validation.Join(wherePath, keyNode))
	if err != nil {
		return nil, err
	}
	duplicates := false
	if raw := item[keyCreateDuplicates]; raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return nil, validation.Errorf(validation.Join(path, keyCreateDuplicates), "expected a Boolean")
		}
		duplicates = b
	}
	targets, err := p.filters.Branches(target, nodeWhere, validation.Join(wherePath, keyNode))
	if err != nil {
		return nil, err
	}

	steps := make([]*Step, 0, len(targets))
	for _, t := range targets {
		step := &Step{Kind: StepConnect, Path: path, Entity: t.Entity, Var: p.names.Next("this"), Parent: parent.Var, Relationship: rel}
		authFilter, err := p.authz.Filter(t.Entity, schema.OpCreateRelationship)
		if err != nil {
			return nil, err
		}
		step.Where = filter.Conjoin(t.Where, authFilter)
		link, err := p.link(ctx, parent, rel, step, item[keyEdge], validation.Join(path, keyEdge))
		if err != nil {
			return nil, err
		}
		link.CreateDuplicates = duplicates
		step.RelVar = link.RelVar
		step.Steps = append(step.Steps, link)

		nested, err := p.nestedOps(ctx, step, opConnect, item[opConnect], validation.Join(path, opConnect))
		if err != nil {
			return nil, err
		}
		step.Steps = append(step.Steps, nested...)
		steps = append(steps, step)
	}
	return steps, nil
}

// nestedOps plans `connect: {rel: ...}` or `disconnect: {rel: ...}` input
// of a connected or disconnected node. The input may be a list of such
// objects.
func (p *Planner) nestedOps(ctx context.Context, step *Step, op string, value any, path string) ([]*Step, error) {
	items, paths, err := objects(value, path)
	if err != nil {
		return nil, err
	}
	var steps []*Step
	for i, item := range items {
		rels, err := relationshipsOnly(step.Entity, item, paths[i])
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			out, err := p.relationshipOp(ctx, step, rel, op, item[rel.Name], validation.Join(paths[i], rel.Name))
			if err != nil {
				return nil, err
			}
			steps = append(steps, out...)
		}
	}
	return steps, nil
}

// connectOrCreate plans `{where: {node: {<unique>}}, onCreate: {node,
// edge}}`: the target is merged on its unique properties, then merged into
// a relationship with parent.
func (p *Planner) connectOrCreate(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, item map[string]any, path string) (*Step, error) {
	if target.IsAbstract() {
		return nil, validation.Errorf(path, "connectOrCreate is not supported for abstract type %s", target.Name)
	}
	if err := checkKeys(item, path, keyWhere, keyOnCreate); err != nil {
		return nil, err
	}
	if err := p.authz.Authenticate(target, schema.OpCreate); err != nil {
		return nil, err
	}
	wherePath := validation.Join(path, keyWhere)
	where, err := asMap(item[keyWhere], wherePath)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(where, wherePath, keyNode); err != nil {
		return nil, err
	}
	nodePath := validation.Join(wherePath, keyNode)
	unique, err := asMap(where[keyNode], nodePath)
	if err != nil {
		return nil, err
	}
	if len(unique) == 0 {
		return nil, validation.Errorf(nodePath, "expected a unique field of %s", target.Name)
	}

	step := &Step{Kind: StepConnectOrCreate, Path: path, Entity: target, Var: p.names.Next("this"), Parent: parent.Var, Relationship: rel}
	for _, key := range sortedKeys(unique) {
		attr, ok := target.Attribute(key)
		if !ok || !attr.Unique {
			return nil, validation.Errorf(validation.Join(nodePath, key), "%s.%s is not unique", target.Name, key)
		}
		if unique[key] == nil {
			return nil, validation.Errorf(validation.Join(nodePath, key), "%s cannot be null", key)
		}
		a, err := p.assignment(attr, AssignSet, unique[key], validation.Join(nodePath, key))
		if err != nil {
			return nil, err
		}
		step.Merge = append(step.Merge, a)
	}

	createPath := validation.Join(path, keyOnCreate)
	onCreate, err := asMap(item[keyOnCreate], createPath)
	if err != nil {
		return nil, err
	}
	if err := checkKeys(onCreate, createPath, keyNode, keyEdge); err != nil {
		return nil, err
	}
	nodeInput, err := asMap(onCreate[keyNode], validation.Join(createPath, keyNode))
	if err != nil {
		return nil, err
	}
	combined := make(map[string]any, len(nodeInput)+len(unique))
	for k, v := range nodeInput {
		combined[k] = v
	}
	for k, v := range unique {
		if _, dup := combined[k]; dup {
			return nil, validation.Errorf(validation.Join(validation.Join(createPath, keyNode), k), "%s is already set by where", k)
		}
		combined[k] = v
	}
	set, err := p.createSet(ctx, target.Name, target, combined, validation.Join(createPath, keyNode))
	if err != nil {
		return nil, err
	}
	for _, a := range set {
		if _, merged := unique[a.Field]; !merged {
			step.Set = append(step.Set, a)
		}
	}
	if err := p.validateGuard(step, target, schema.OpCreate, schema.WhenAfter, &step.After); err != nil {
		return nil, err
	}
	if err := p.attributeGuards(step, schema.OpCreate); err != nil {
		return nil, err
	}
	link, err := p.link(ctx, parent, rel, step, onCreate[keyEdge], validation.Join(createPath, keyEdge))
	if err != nil {
		return nil, err
	}
	step.RelVar = link.RelVar
	step.Steps = []*Step{link}
	return step, nil
}

// nestedUpdate plans `{where: {node, edge}, update: {node, edge}}`.
func (p *Planner) nestedUpdate(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, where, update map[string]any, path string) ([]*Step, error) {
	updatePath := validation.Join(path, opUpdate)
	if err := checkKeys(update, updatePath, keyNode, keyEdge); err != nil {
		return nil, err
	}
	targets, err := p.connectionTargets(rel, target, where, validation.Join(path, keyWhere))
	if err != nil {
		return nil, err
	}
	nodeInput, err := asMap(update[keyNode], validation.Join(updatePath, keyNode))
	if err != nil {
		return nil, err
	}
	edgeInput, err := asMap(update[keyEdge], validation.Join(updatePath, keyEdge))
	if err != nil {
		return nil, err
	}
	props := p.properties(rel)
	if props == nil && len(edgeInput) > 0 {
		return nil, validation.Errorf(validation.Join(updatePath, keyEdge), "relationship %s has no properties", rel.Name)
	}

	steps := make([]*Step, 0, len(targets))
	for _, t := range targets {
		if err := p.authz.Authenticate(t.Entity, schema.OpUpdate); err != nil {
			return nil, err
		}
		step := &Step{
			Kind:         StepUpdateNode,
			Path:         path,
			Entity:       t.Entity,
			Var:          p.names.Next("this"),
			Parent:       parent.Var,
			Relationship: rel,
			RelVar:       p.names.Next("edge"),
			Properties:   props,
		}
		authFilter, err := p.authz.Filter(t.Entity, schema.OpUpdate)
		if err != nil {
			return nil, err
		}
		step.Where = filter.Conjoin(t.Where, authFilter)
		if err := p.validateGuard(step, t.Entity, schema.OpUpdate, schema.WhenBefore, &step.Before); err != nil {
			return nil, err
		}
		if err := p.updateNode(ctx, step, nodeInput, validation.Join(updatePath, keyNode)); err != nil {
			return nil, err
		}
		if len(edgeInput) > 0 {
			edgePath := validation.Join(updatePath, keyEdge)
			for _, key := range sortedKeys(edgeInput) {
				if _, _, ok := parseUpdateKey(props, key); !ok {
					return nil, validation.Errorf(validation.Join(edgePath, key), "unknown field %s on %s", key, props.Name)
				}
			}
			set, err := p.updateSet(ctx, props.Name, props, edgeInput, edgePath)
			if err != nil {
				return nil, err
			}
			step.Steps = append(step.Steps, &Step{
				Kind:         StepUpdateRelationship,
				Path:         edgePath,
				Entity:       t.Entity,
				Var:          step.Var,
				Parent:       parent.Var,
				Relationship: rel,
				RelVar:       step.RelVar,
				Properties:   props,
				Set:          set,
			})
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// disconnect plans `{where: {node, edge}, disconnect}`.
func (p *Planner) disconnect(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, item map[string]any, path string) ([]*Step, error) {
	if err := checkKeys(item, path, keyWhere, opDisconnect); err != nil {
		return nil, err
	}
	where, err := asMap(item[keyWhere], validation.Join(path, keyWhere))
	if err != nil {
		return nil, err
	}
	targets, err := p.connectionTargets(rel, target, where, validation.Join(path, keyWhere))
	if err != nil {
		return nil, err
	}
	steps := make([]*Step, 0, len(targets))
	for _, t := range targets {
		step := &Step{
			Kind:         StepDisconnect,
			Path:         path,
			Entity:       t.Entity,
			Var:          p.names.Next("this"),
			Parent:       parent.Var,
			Relationship: rel,
			RelVar:       p.names.Next("edge"),
			Properties:   p.properties(rel),
		}
		authFilter, err := p.authz.Filter(t.Entity, schema.OpDeleteRelationship)
		if err != nil {
			return nil, err
		}
		step.Where = filter.Conjoin(t.Where, authFilter)
		nested, err := p.nestedOps(ctx, step, opDisconnect, item[opDisconnect], validation.Join(path, opDisconnect))
		if err != nil {
			return nil, err
		}
		step.Steps = append(step.Steps, nested...)

		unlink := &Step{
			Kind:         StepDeleteRelationship,
			Path:         path,
			Entity:       t.Entity,
			Var:          step.Var,
			Parent:       parent.Var,
			Relationship: rel,
			RelVar:       step.RelVar,
			Properties:   step.Properties,
		}
		if err := p.relationshipGuards(unlink, parent.Entity, schema.OpDeleteRelationship); err != nil {
			return nil, err
		}
		step.Steps = append(step.Steps, unlink)
		steps = append(steps, step)
	}
	return steps, nil
}

// deleteRelated plans a nested `{where: {node, edge}, delete}`.
func (p *Planner) deleteRelated(ctx context.Context, parent *Step, rel *schema.Relationship, target *schema.Entity, item map[string]any, path string) ([]*Step, error) {
	if err := checkKeys(item, path, keyWhere, opDelete); err != nil {
		return nil, err
	}
	where, err := asMap(item[keyWhere], validation.Join(path, keyWhere))
	if err != nil {
		return nil, err
	}
	targets, err := p.connectionTargets(rel, target, where, validation.Join(path, keyWhere))
	if err != nil {
		return nil, err
	}
	nested, err := asMap(item[opDelete], validation.Join(path, opDelete))
	if err != nil {
		return nil, err
	}
	steps := make([]*Step, 0, len(targets))
	for _, t := range targets {
		step, err := p.deleteStep(parent, rel, t.Entity, t.Where, path)
		if err != nil {
			return nil, err
		}
		if err := p.deleteChildren(ctx, step, nested, validation.Join(path, opDelete)); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// deleteStep creates a DeleteNode step for related nodes of entity,
// applying DELETE authentication, filter and BEFORE validation.
func (p *Planner) deleteStep(parent *Step, rel *schema.Relationship, entity *schema.Entity, where filter.Predicate, path string) (*Step, error) {
	if err := p.authz.Authenticate(entity, schema.OpDelete); err != nil {
		return nil, err
	}
	step := &Step{
		Kind:         StepDeleteNode,
		Path:         path,
		Entity:       entity,
		Var:          p.names.Next("this"),
		Parent:       parent.Var,
		Relationship: rel,
		RelVar:       p.names.Next("edge"),
	}
	authFilter, err := p.authz.Filter(entity, schema.OpDelete)
	if err != nil {
		return nil, err
	}
	step.Where = filter.Conjoin(where, authFilter)
	if err := p.validateGuard(step, entity, schema.OpDelete, schema.WhenBefore, &step.Before); err != nil {
		return nil, err
	}
	return step, nil
}

// deleteChildren plans the nested delete input of a deleted node, then its
// CASCADE and RESTRICT relationships.
func (p *Planner) deleteChildren(ctx context.Context, step *Step, nested map[string]any, path string) error {
	rels, err := relationshipsOnly(step.Entity, nested, path)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		out, err := p.relationshipOp(ctx, step, rel, opDelete, nested[rel.Name], validation.Join(path, rel.Name))
		if err != nil {
			return err
		}
		step.Steps = append(step.Steps, out...)
	}
	return p.cascade(step, map[string]bool{step.Entity.Name: true})
}

// cascade adds a DeleteNode step for every CASCADE relationship and
// records RESTRICT relationships. Entities already on the cascade chain are
// not revisited.
func (p *Planner) cascade(step *Step, chain map[string]bool) error {
	for _, rel := range step.Entity.Relationships() {
		switch rel.OnDelete {
		case schema.DeleteRestrict:
			step.Restrict = append(step.Restrict, rel)
		case schema.DeleteCascade:
			target, ok := p.model.Entity(rel.Target)
			if !ok {
				continue
			}
			for _, concrete := range p.model.ConcreteTypes(target) {
				if chain[concrete.Name] {
					continue
				}
				child, err := p.deleteStep(step, rel, concrete, nil, validation.Join(step.Path, rel.Name))
				if err != nil {
					return err
				}
				next := make(map[string]bool, len(chain)+1)
				for name := range chain {
					next[name] = true
				}
				next[concrete.Name] = true
				if err := p.cascade(child, next); err != nil {
					return err
				}
				step.Steps = append(step.Steps, child)
			}
		}
	}
	return nil
}

// link plans the relationship attaching node to parent, with its edge
// properties and relationship authorization.
func (p *Planner) link(ctx context.Context, parent *Step, rel *schema.Relationship, node *Step, edge any, path string) (*Step, error) {
	props := p.properties(rel)
	input, err := asMap(edge, path)
	if err != nil {
		return nil, err
	}
	if props == nil && len(input) > 0 {
		return nil, validation.Errorf(path, "relationship %s has no properties", rel.Name)
	}
	step := &Step{
		Kind:         StepCreateRelationship,
		Path:         path,
		Entity:       node.Entity,
		Var:          node.Var,
		Parent:       parent.Var,
		Relationship: rel,
		RelVar:       p.names.Next("edge"),
		Properties:   props,
	}
	if props != nil {
		if step.Set, err = p.createSet(ctx, props.Name, props, input, path); err != nil {
			return nil, err
		}
	}
	if err := p.relationshipGuards(step, parent.Entity, schema.OpCreateRelationship); err != nil {
		return nil, err
	}
	return step, nil
}

// relationshipGuards applies CREATE_RELATIONSHIP or DELETE_RELATIONSHIP
// rules of the target, the source and the relationship field itself.
func (p *Planner) relationshipGuards(step *Step, source *schema.Entity, op schema.Operation) error {
	for _, e := range []*schema.Entity{step.Entity, source} {
		if err := p.authz.Authenticate(e, op); err != nil {
			return err
		}
	}
	for _, when := range []schema.When{schema.WhenBefore, schema.WhenAfter} {
		guards := &step.Before
		if when == schema.WhenAfter {
			guards = &step.After
		}
		target, err := p.authz.Validate(step.Entity, op, when)
		if err != nil {
			return err
		}
		if target != nil {
			*guards = append(*guards, Guard{Var: step.Var, RelVar: step.RelVar, Pred: target})
		}
		owner, err := p.authz.Validate(source, op, when)
		if err != nil {
			return err
		}
		if owner != nil {
			*guards = append(*guards, Guard{Var: step.Parent, Pred: owner})
		}
		field, err := p.authz.Relationship(source, step.Relationship, op, when)
		if err != nil {
			return err
		}
		if field != nil {
			*guards = append(*guards, Guard{Var: step.Parent, RelVar: step.RelVar, Pred: field})
		}
	}
	return nil
}

// connectionTargets compiles a `{node, edge}` where for one target of rel.
// Union targets are resolved per member.
func (p *Planner) connectionTargets(rel *schema.Relationship, target *schema.Entity, where map[string]any, path string) ([]filter.Target, error) {
	if declared, ok := p.model.Entity(rel.Target); ok && declared.Kind == schema.KindUnion {
		where = map[string]any{target.Name: where}
	}
	return p.filters.Connection(rel, where, path)
}

func (p *Planner) properties(rel *schema.Relationship) *schema.RelationshipProperties {
	if rel.Properties == "" {
		return nil
	}
	props, _ := p.model.Properties(rel.Properties)
	return props
}
