package conformance

import (
	"fmt"
	"os"
	"strings"

	"loom/builtin"
	"loom/kv"
	"loom/value"
	"loom/vm"
	"loom/world"
)

// TestResult is the outcome of running a single loaded test case.
type TestResult struct {
	Test       LoadedTest
	Passed     bool
	Skipped    bool
	SkipReason string
	Error      error
}

// Runner drives a fresh world.Store through every loaded test, grounded on
// the teacher's conformance/runner.go shape but running loom's compiler and
// bytecode vm against a world.Transaction instead of barn's AST-walking
// eval.Evaluator.
type Runner struct {
	dbPath      string
	store       *world.Store
	builtins    *builtin.Registry
	player      value.ObjID
	setupSuites map[string]bool
}

// NewRunner creates a runner over a fresh, temp-file-backed world (no
// textdump/object-definition persistence is in scope, so there is no
// legacy database to load — every run starts from an empty world seeded
// with a single wizard player).
func NewRunner() *Runner {
	f, err := os.CreateTemp("", "loom-conformance-*.db")
	if err != nil {
		return &Runner{builtins: builtin.NewRegistry(), setupSuites: make(map[string]bool)}
	}
	f.Close()
	return NewRunnerWithDB(f.Name())
}

// NewRunnerWithDB creates a runner over a world database at dbPath,
// seeding a wizard player as #0.
func NewRunnerWithDB(dbPath string) *Runner {
	r := &Runner{dbPath: dbPath, builtins: builtin.NewRegistry(), setupSuites: make(map[string]bool)}

	kvs, err := kv.Open(dbPath)
	if err != nil {
		return r
	}
	store, err := world.Open(kvs)
	if err != nil {
		return r
	}
	r.store = store

	txn, err := store.Begin()
	if err != nil {
		return r
	}
	wizard, err := txn.Create(value.Nothing, value.Nothing, value.ObjKindNumbered)
	if err != nil {
		return r
	}
	txn.SetFlags(wizard, world.FlagWizard|world.FlagProgrammer)
	txn.SetName(wizard, "Wizard")
	txn.SetOwner(wizard, wizard)
	if _, err := txn.Commit(); err != nil {
		return r
	}
	r.player = wizard
	return r
}

// runSetupBlock evaluates a setup or teardown snippet under the block's
// requested permission level.
func (r *Runner) runSetupBlock(txn *world.Transaction, block *SetupBlock, perms value.ObjID) (value.ObjID, *value.Error) {
	if block == nil {
		return perms, nil
	}
	code := block.Statement
	if code == "" {
		code = block.Code
	}
	if code == "" {
		return perms, nil
	}
	if block.Permission == "wizard" {
		perms = r.player
	}
	vmachine := vm.New(txn, r.builtins)
	_, verr := vmachine.Eval(r.player, r.player, r.player, perms, code)
	return perms, verr
}

// Run executes a single test case.
func (r *Runner) Run(test LoadedTest) TestResult {
	if skipped, reason := test.Test.IsSkipped(); skipped {
		return TestResult{Test: test, Skipped: true, SkipReason: reason}
	}
	if r.store == nil {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("no world store available")}
	}

	txn, err := r.store.Begin()
	if err != nil {
		return TestResult{Test: test, Passed: false, Error: err}
	}

	perms := r.player

	if test.Suite.Setup != nil && !r.setupSuites[test.File] {
		if _, verr := r.runSetupBlock(txn, test.Suite.Setup, perms); verr != nil {
			return TestResult{Test: test, Passed: false, Error: fmt.Errorf("suite setup failed: %s", verr.DefaultMessage())}
		}
		r.setupSuites[test.File] = true
	}

	if _, verr := r.runSetupBlock(txn, test.Test.Setup, perms); verr != nil {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("test setup failed: %s", verr.DefaultMessage())}
	}

	var code string
	switch {
	case test.Test.Statement != "":
		code = test.Test.Statement
	case test.Test.Code != "":
		code = "return (" + test.Test.Code + ");"
	default:
		return TestResult{Test: test, Skipped: true, SkipReason: "no code/statement"}
	}

	vmachine := vm.New(txn, r.builtins)
	result, verr := vmachine.Eval(r.player, r.player, r.player, perms, code)

	passed, cerr := r.checkExpectation(test.Test, result, verr)
	return TestResult{Test: test, Passed: passed, Error: cerr}
}

// RunAll executes every loaded test.
func (r *Runner) RunAll(tests []LoadedTest) []TestResult {
	results := make([]TestResult, len(tests))
	for i, test := range tests {
		results[i] = r.Run(test)
	}
	return results
}

// SummaryStats tallies a batch of results.
type SummaryStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

func ComputeStats(results []TestResult) SummaryStats {
	stats := SummaryStats{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			stats.Skipped++
		case r.Passed:
			stats.Passed++
		default:
			stats.Failed++
		}
	}
	return stats
}

func FormatStats(stats SummaryStats) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)",
		stats.Passed, stats.Failed, stats.Skipped, stats.Total)
}

// checkExpectation compares a test's expectation against the eval outcome.
func (r *Runner) checkExpectation(test TestCase, result value.Value, verr *value.Error) (bool, error) {
	expect := test.Expect

	if expect.Error != "" {
		expectedErr, ok := errorNameToCode(expect.Error)
		if !ok {
			return false, fmt.Errorf("unknown error code: %s", expect.Error)
		}
		if verr == nil {
			return false, fmt.Errorf("expected error %s, got value: %v", expect.Error, result)
		}
		if verr.Code != expectedErr {
			return false, fmt.Errorf("expected error %s, got %s", expect.Error, verr.Code)
		}
		return true, nil
	}

	if verr != nil {
		return false, fmt.Errorf("unexpected error: %s", verr.Code)
	}

	if expect.Value != nil {
		expectedVal, err := convertYAMLValue(expect.Value)
		if err != nil {
			return false, fmt.Errorf("failed to convert expected value: %w", err)
		}
		if result == nil {
			return false, fmt.Errorf("expected %v, got nil", expectedVal)
		}
		if !result.Equal(expectedVal) {
			return false, fmt.Errorf("expected %v, got %v", expectedVal, result)
		}
		return true, nil
	}

	if expect.Type != "" {
		expectedType, ok := typeNameToCode(expect.Type)
		if !ok {
			return false, fmt.Errorf("unknown type: %s", expect.Type)
		}
		if result.Type() != expectedType {
			return false, fmt.Errorf("expected type %s, got %s", expect.Type, result.Type())
		}
		return true, nil
	}

	return false, fmt.Errorf("no expectation specified")
}

// convertYAMLValue converts a decoded YAML scalar/collection into a runtime Value.
func convertYAMLValue(v interface{}) (value.Value, error) {
	switch val := v.(type) {
	case int:
		return value.Int(val), nil
	case int64:
		return value.Int(val), nil
	case float64:
		return value.Float(val), nil
	case string:
		if len(val) > 0 && val[0] == '#' {
			var id int64
			if _, err := fmt.Sscanf(val, "#%d", &id); err == nil {
				return value.Numbered(id), nil
			}
		}
		return value.Str(val), nil
	case bool:
		return value.Bool(val), nil
	case []interface{}:
		elems := make([]value.Value, len(val))
		for i, e := range val {
			cv, err := convertYAMLValue(e)
			if err != nil {
				return nil, err
			}
			elems[i] = cv
		}
		return value.NewList(elems), nil
	case map[string]interface{}:
		pairs := make([][2]value.Value, 0, len(val))
		for k, v := range val {
			vv, err := convertYAMLValue(v)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, [2]value.Value{value.Str(k), vv})
		}
		return value.NewMap(pairs), nil
	case map[interface{}]interface{}:
		pairs := make([][2]value.Value, 0, len(val))
		for k, v := range val {
			kv, err := convertYAMLValue(k)
			if err != nil {
				return nil, err
			}
			vv, err := convertYAMLValue(v)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, [2]value.Value{kv, vv})
		}
		return value.NewMap(pairs), nil
	default:
		return nil, fmt.Errorf("unsupported YAML type: %T", v)
	}
}

func errorNameToCode(name string) (value.ErrorCode, bool) {
	name = strings.ToUpper(name)
	for c := value.E_NONE; c <= value.E_FLOAT; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

func typeNameToCode(name string) (value.TypeCode, bool) {
	switch strings.ToLower(name) {
	case "int":
		return value.TYPE_INT, true
	case "obj":
		return value.TYPE_OBJ, true
	case "str":
		return value.TYPE_STR, true
	case "err":
		return value.TYPE_ERR, true
	case "list":
		return value.TYPE_LIST, true
	case "float":
		return value.TYPE_FLOAT, true
	case "map":
		return value.TYPE_MAP, true
	case "anon":
		return value.TYPE_ANON, true
	case "bool":
		return value.TYPE_BOOL, true
	default:
		return 0, false
	}
}
