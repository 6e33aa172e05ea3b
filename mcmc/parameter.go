package mcmc

import (
	"fmt"
	"math"
	"strconv"
)

// FloatParameter is a real-valued state node with a prior.
type FloatParameter interface {
	Name() string
	Prior() float64
	Store()
	Restore()
	String() string
	SetMin(float64)
	SetMax(float64)
	GetMin() float64
	GetMax() float64
	SetPriorFunc(func(float64) float64)
	Get() float64
	Set(float64)
	InRange() bool
	ValueInRange(float64) bool
}

type FloatParameters []FloatParameter

func (p *FloatParameters) Append(par ...FloatParameter) {
	*p = append(*p, par...)
}

// ByName returns the parameter with the name or nil.
func (p FloatParameters) ByName(name string) FloatParameter {
	for _, par := range p {
		if par.Name() == name {
			return par
		}
	}
	return nil
}

func (p FloatParameters) InRange() bool {
	for _, par := range p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// LogPrior returns the sum of the parameter priors.
func (p FloatParameters) LogPrior() (lp float64) {
	for _, par := range p {
		lp += par.Prior()
	}
	return
}

func (p FloatParameters) Store() {
	for _, par := range p {
		par.Store()
	}
}

func (p FloatParameters) Restore() {
	for _, par := range p {
		par.Restore()
	}
}

func (p FloatParameters) NamesString() (s string) {
	for i, par := range p {
		if i != 0 {
			s += "\t"
		}
		s += par.Name()
	}
	return
}

func (p FloatParameters) ValuesString() (s string) {
	for i, par := range p {
		if i != 0 {
			s += "\t"
		}
		s += par.String()
	}
	return
}

type BasicFloatParameter struct {
	*float64
	old       float64
	name      string
	priorFunc func(float64) float64
	min       float64
	max       float64
}

// NewBasicFloatParameter creates an unbounded parameter with a flat
// improper prior.
func NewBasicFloatParameter(par *float64, name string) *BasicFloatParameter {
	return &BasicFloatParameter{
		float64:   par,
		old:       *par,
		name:      name,
		priorFunc: func(float64) float64 { return 0 },
		min:       math.Inf(-1),
		max:       math.Inf(+1),
	}
}

func (p *BasicFloatParameter) SetMin(min float64) {
	p.min = min
}

func (p *BasicFloatParameter) SetMax(max float64) {
	p.max = max
}

func (p *BasicFloatParameter) SetPriorFunc(f func(float64) float64) {
	p.priorFunc = f
}

func (p *BasicFloatParameter) Get() float64 {
	return *p.float64
}

func (p *BasicFloatParameter) Set(v float64) {
	*p.float64 = v
}

func (p *BasicFloatParameter) GetMin() float64 {
	return p.min
}

func (p *BasicFloatParameter) GetMax() float64 {
	return p.max
}

func (p *BasicFloatParameter) ValueInRange(v float64) bool {
	if v < p.min || v > p.max {
		return false
	}
	return true
}

func (p *BasicFloatParameter) InRange() bool {
	return p.ValueInRange(*p.float64)
}

func (p *BasicFloatParameter) Name() string {
	return p.name
}

// Prior returns the log prior density, -Inf outside of the bounds.
func (p *BasicFloatParameter) Prior() float64 {
	if !p.InRange() {
		return math.Inf(-1)
	}
	return p.priorFunc(*p.float64)
}

func (p *BasicFloatParameter) Store() {
	p.old = *p.float64
}

func (p *BasicFloatParameter) Restore() {
	*p.float64 = p.old
}

func (p *BasicFloatParameter) String() string {
	return strconv.FormatFloat(*p.float64, 'f', 6, 64)
}

// Vector is a multi-dimensional parameter. Its elements are named
// name.1, name.2 and so on.
type Vector struct {
	name     string
	values   []float64
	Elements FloatParameters
}

// NewVector creates a vector parameter backed by values.
func NewVector(name string, values []float64) *Vector {
	v := &Vector{
		name:     name,
		values:   values,
		Elements: make(FloatParameters, len(values)),
	}
	for i := range values {
		v.Elements[i] = NewBasicFloatParameter(&values[i], fmt.Sprintf("%s.%d", name, i+1))
	}
	return v
}

func (v *Vector) Name() string {
	return v.name
}

func (v *Vector) Dim() int {
	return len(v.values)
}

// Values returns the backing slice.
func (v *Vector) Values() []float64 {
	return v.values
}

// SetMin sets the lower bound for all the elements.
func (v *Vector) SetMin(min float64) {
	for _, e := range v.Elements {
		e.SetMin(min)
	}
}

// SetMax sets the upper bound for all the elements.
func (v *Vector) SetMax(max float64) {
	for _, e := range v.Elements {
		e.SetMax(max)
	}
}

// SetPriorFunc sets the same prior for all the elements.
func (v *Vector) SetPriorFunc(f func(float64) float64) {
	for _, e := range v.Elements {
		e.SetPriorFunc(f)
	}
}

// Prior returns the sum of the element priors.
func (v *Vector) Prior() float64 {
	return v.Elements.LogPrior()
}
