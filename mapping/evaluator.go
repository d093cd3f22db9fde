package mapping

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

// Evaluator compiles and caches JMESPath expressions.
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

var defaultEvaluator = NewEvaluator()

// NewEvaluator creates an evaluator with an empty cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Evaluate runs expression against data. Raw records are searched as plain
// JSON objects.
func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	if rec, ok := data.(hub.Raw); ok {
		data = map[string]any(rec)
	}
	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expression, err)
	}
	return result, nil
}

// Validate checks that expression compiles.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()
	return compiled, nil
}
