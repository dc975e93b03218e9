package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 256

// Cache keeps compiled filter programs, keyed by their source. Clients tend to send the same
// expression with every broadcast, so compiling once per expression is enough.
type Cache struct {
	programs *lru.ARCCache
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	programs, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &Cache{programs: programs}, nil
}

// Compile returns the compiled program for src. An empty src yields a nil program which matches
// every recipient.
func (c *Cache) Compile(src string) (*vm.Program, error) {
	if src == "" {
		return nil, nil
	}
	if c != nil {
		if prog, ok := c.programs.Get(src); ok {
			return prog.(*vm.Program), nil
		}
	}
	prog, err := Compile(src)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.programs.Add(src, prog)
	}
	return prog, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	return c.programs.Len()
}

// Compile compiles src against Env, the result has to be a boolean.
func Compile(src string) (*vm.Program, error) {
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("could not compile filter: %w", err)
	}
	return prog, nil
}

// Match runs prog against env. A nil program matches everything, a failing one matches nothing.
func Match(prog *vm.Program, env Env) bool {
	if prog == nil {
		return true
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	ok, _ := res.(bool)
	return ok
}
