package conformance

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/builtin"
	"loom/kv"
	"loom/lang"
	"loom/task"
	"loom/value"
	"loom/world"
)

// newTestStore builds a fresh, temp-file-backed world with a single wizard
// player seeded as #0 — shared setup for the literal end-to-end scenarios.
func newTestStore(t *testing.T) (*world.Store, value.ObjID) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "scenario-*.db")
	require.NoError(t, err)
	f.Close()

	kvs, err := kv.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { kvs.Close() })

	store, err := world.Open(kvs)
	require.NoError(t, err)

	txn, err := store.Begin()
	require.NoError(t, err)
	wizard, err := txn.Create(value.Nothing, value.Nothing, value.ObjKindNumbered)
	require.NoError(t, err)
	txn.SetFlags(wizard, world.FlagWizard|world.FlagProgrammer)
	txn.SetOwner(wizard, wizard)
	_, err = txn.Commit()
	require.NoError(t, err)

	return store, wizard
}

func evalExpr(t *testing.T, store *world.Store, player value.ObjID, src string) (value.Value, *value.Error) {
	t.Helper()
	sched := task.NewScheduler(store, builtin.NewRegistry(), 1)
	tsk := sched.Submit(player, task.TaskEval, noopSession{}, sched.EvalStarter(player, player, player, player, src, noopSession{}))
	require.NoError(t, sched.RunSync(tsk))
	return tsk.Result, tsk.Err
}

type noopSession struct{}

func (noopSession) Notify(value.ObjID, string) {}
func (noopSession) Disconnect(value.ObjID)     {}

// Scenario 1: operator precedence.
func TestScenarioArithmeticPrecedence(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, "return 1 + 2 * 3;")
	require.Nil(t, err)
	assert.Equal(t, value.Int(7), v)
}

// Scenario 2: scatter assignment with optional default and rest capture.
func TestScenarioScatterAssign(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, "{a, ?b=10, @rest} = {1}; return {a,b,rest};")
	require.Nil(t, err)
	assert.Equal(t, value.NewList([]value.Value{value.Int(1), value.Int(10), value.NewList(nil)}), v)
}

// Scenario 3: lambda creation and application.
func TestScenarioLambda(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, "let f = {x} => x*x; return {f(3), f(4)};")
	require.Nil(t, err)
	assert.Equal(t, value.NewList([]value.Value{value.Int(9), value.Int(16)}), v)
}

// Scenario 4: try/except catches by error kind, carries the error value out.
func TestScenarioTryExceptDivByZero(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, "try return 1/0; except e (E_DIV) return e; endtry")
	require.Nil(t, err)
	ev, ok := v.(value.Error)
	require.True(t, ok, "expected an error value, got %v", v)
	assert.Equal(t, value.E_DIV, ev.Code)
}

// Scenario 5: verb inheritance via chparent.
func TestScenarioVerbInheritance(t *testing.T) {
	store, wizard := newTestStore(t)
	txn, err := store.Begin()
	require.NoError(t, err)

	a, err := txn.Create(wizard, value.Nothing, value.ObjKindNumbered)
	require.NoError(t, err)
	b, err := txn.Create(wizard, value.Nothing, value.ObjKindNumbered)
	require.NoError(t, err)
	txn.SetParentOverride(b, a)

	assert.Empty(t, txn.VerbDefs(b))

	prog, err := lang.CompileVerbWithRegistry(mustParse(t, `return "hi";`), nil, builtin.NewRegistry())
	require.NoError(t, err)
	idx := txn.AddVerb(a, world.VerbDef{UUID: "greet-1", Names: []string{"greet"}, Owner: wizard, Args: world.VerbArgs{This: "this", That: "none"}})
	require.GreaterOrEqual(t, idx, 0)
	require.NoError(t, txn.SetVerbProgram(a, "greet-1", prog))

	_, err2 := txn.Commit()
	require.NoError(t, err2)

	v, verr := evalExpr(t, store, wizard, "return "+b.String()+":greet();")
	require.Nil(t, verr)
	assert.Equal(t, value.Str("hi"), v)
}

func mustParse(t *testing.T, src string) []lang.Stmt {
	t.Helper()
	stmts, err := lang.NewParser(src).ParseProgram()
	require.NoError(t, err)
	return stmts
}

// Scenario 6: two concurrent property-increment tasks conflict; the loser
// retries under a fresh snapshot and both increments land (spec §4.2.1/§5
// "Conflict policy").
func TestScenarioConflictRetry(t *testing.T) {
	store, wizard := newTestStore(t)
	txn, err := store.Begin()
	require.NoError(t, err)
	obj, err := txn.Create(wizard, value.Nothing, value.ObjKindNumbered)
	require.NoError(t, err)
	require.NoError(t, txn.AddProperty(obj, "p", wizard, world.PropertyPerms{}, value.Int(0)))
	_, err = txn.Commit()
	require.NoError(t, err)

	sched := task.NewScheduler(store, builtin.NewRegistry(), 4)
	src := obj.String() + ".p = " + obj.String() + ".p + 1; return 0;"

	t1 := sched.Submit(wizard, task.TaskCommand, noopSession{}, sched.EvalStarter(wizard, wizard, wizard, wizard, src, noopSession{}))
	t2 := sched.Submit(wizard, task.TaskCommand, noopSession{}, sched.EvalStarter(wizard, wizard, wizard, wizard, src, noopSession{}))

	done := make(chan error, 2)
	go func() { done <- sched.RunSync(t1) }()
	go func() { done <- sched.RunSync(t2) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	txn2, err := store.Begin()
	require.NoError(t, err)
	val, err := txn2.GetPropertyValue(obj, "p")
	require.NoError(t, err)
	assert.Equal(t, value.Int(2), val)
}

// Scenario 7: fork(0) defers its body to a sibling task — the forking
// task's own commit observes no narrative output, and the forked task
// emits it afterward (spec §4.6.4 fork, §8 scenario 7). Exercises both
// notify()'s Session delivery and player's implicit-variable binding
// surviving into the fork's captured register snapshot.
func TestScenarioForkDefersNarrative(t *testing.T) {
	store, player := newTestStore(t)
	sched := task.NewScheduler(store, builtin.NewRegistry(), 2)

	var notified []string
	var mu sync.Mutex
	sess := &recordingSession{record: func(text string) {
		mu.Lock()
		notified = append(notified, text)
		mu.Unlock()
	}}

	src := `fork (0) notify(player, "hello"); endfork return 0;`
	start := sched.EvalStarter(player, player, player, player, src, sess)
	tsk := sched.Submit(player, task.TaskEval, sess, start)
	require.NoError(t, sched.RunSync(tsk))
	require.Nil(t, tsk.Err)

	mu.Lock()
	sawAtCommit := append([]string(nil), notified...)
	mu.Unlock()
	assert.Empty(t, sawAtCommit, "forking task must not observe the fork body's effects")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello"}, notified)
}

type recordingSession struct {
	record func(string)
}

func (s *recordingSession) Notify(_ value.ObjID, text string) { s.record(text) }
func (s *recordingSession) Disconnect(value.ObjID)             {}

// Boundary: for-range from MAX-1 to MAX visits both ends and stops, rather
// than wrapping past MaxInt64 and running away (spec §4.6.5, §8).
func TestScenarioForRangeMaxBoundary(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, `let seen = {};
for x in [9223372036854775806..9223372036854775807]
  seen = {@seen, x};
endfor
return seen;`)
	require.Nil(t, err)
	assert.Equal(t, value.NewList([]value.Value{
		value.Int(9223372036854775806),
		value.Int(9223372036854775807),
	}), v)
}

// Boundary: for-range from MIN to MIN+1 visits both ends and stops, rather
// than underflowing past MinInt64 (spec §4.6.5, §8).
func TestScenarioForRangeMinBoundary(t *testing.T) {
	store, player := newTestStore(t)
	v, err := evalExpr(t, store, player, `let seen = {};
for x in [-9223372036854775807 - 1..-9223372036854775807]
  seen = {@seen, x};
endfor
return seen;`)
	require.Nil(t, err)
	assert.Equal(t, value.NewList([]value.Value{
		value.Int(-9223372036854775808),
		value.Int(-9223372036854775807),
	}), v)
}
