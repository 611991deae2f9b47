package cases

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/accelmark/opcheck/internal/tensor"
)

// Generator produces the input tensors of a seeded case from the operator
// parameters. Generators must be deterministic in the supplied source.
type Generator func(params map[string]int64, rng *rand.Rand) (map[string]*tensor.HostBuffer, error)

var (
	generatorMu sync.RWMutex
	generators  = make(map[string]Generator)
)

// RegisterGenerator installs the input generator for an operator. Operator
// packages call this from init.
func RegisterGenerator(operator string, g Generator) {
	generatorMu.Lock()
	defer generatorMu.Unlock()
	if _, dup := generators[operator]; dup {
		panic(fmt.Sprintf("cases: generator for %q registered twice", operator))
	}
	generators[operator] = g
}

func generate(operator string, params map[string]int64, seed int64) (map[string]*tensor.HostBuffer, error) {
	generatorMu.RLock()
	g, ok := generators[operator]
	generatorMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no input generator for operator %q", operator)
	}
	return g(params, rand.New(rand.NewSource(seed)))
}
