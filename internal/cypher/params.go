package cypher

import "fmt"

// Params collects statement parameters. Names are prefixed with the
// variable they belong to and numbered, so they never collide.
type Params struct {
	values map[string]any
	next   int
}

// NewParams creates an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Add binds value and returns its placeholder, e.g. "$this0_param3".
func (p *Params) Add(scope string, value any) string {
	name := fmt.Sprintf("%s_param%d", scope, p.next)
	p.next++
	p.values[name] = value
	return "$" + name
}

// Set binds a fixed parameter name.
func (p *Params) Set(name string, value any) string {
	p.values[name] = value
	return "$" + name
}

// Values returns the bound parameters.
func (p *Params) Values() map[string]any {
	return p.values
}
