package task

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"loom/builtin"
	"loom/value"
	"loom/vm"
	"loom/world"
)

// DefaultMaxTicks / DefaultWallBudget are the fallback per-task budgets a
// Scheduler applies when a caller doesn't specify its own (spec §5
// "Timeouts").
const (
	DefaultMaxTicks   = 100_000
	DefaultWallBudget = 5 * time.Second
)

// Scheduler runs tasks on a worker pool bounded by a semaphore of
// maxWorkers slots (see NewScheduler; spec §5"a thread pool executes tasks; each task is pinned to
// whatever thread picked it up for the duration of one burst"). Grounded on
// the teacher's task.Manager singleton, generalized from a single global map
// to an explicit per-Store scheduler instance and from the teacher's
// unbounded goroutine-per-task model to a bounded worker pool.
type Scheduler struct {
	store    *world.Store
	builtins *builtin.Registry

	mu         sync.RWMutex
	tasks      map[int64]*Task
	nextTaskID int64

	sem chan struct{} // bounds concurrent task bursts
}

// NewScheduler builds a Scheduler over store, bounded to maxWorkers
// concurrent task bursts (spec §5 "Scheduling model").
func NewScheduler(store *world.Store, registry *builtin.Registry, maxWorkers int) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Scheduler{
		store: store, builtins: registry,
		tasks: make(map[int64]*Task),
		sem:   make(chan struct{}, maxWorkers),
	}
}

func (s *Scheduler) nextID() int64 {
	return atomic.AddInt64(&s.nextTaskID, 1)
}

// Submit creates and enqueues a new task. The caller supplies start, which
// rebuilds the starting activation fresh on every attempt (including
// ConflictRetry restarts).
func (s *Scheduler) Submit(player value.ObjID, kind TaskKind, sess Session, start Starter) *Task {
	t := New(s.nextID(), player, kind, s.store, s.builtins, sess, DefaultMaxTicks, DefaultWallBudget, start)
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return t
}

// RunSync runs t's burst on this goroutine, acquiring a pool slot first so
// overall concurrency stays bounded. Used for foreground command tasks,
// which must finish (or suspend) before the connection reads its next line.
func (s *Scheduler) RunSync(t *Task) error {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	return t.Run()
}

// RunAsync schedules t to run on the pool without blocking the caller — the
// shape fork(delay) and background tasks need. g collects any scheduling
// (not task-level) error via errgroup so a caller that wants to wait for a
// batch of forks can.
func (s *Scheduler) RunAsync(g *errgroup.Group, t *Task) {
	g.Go(func() error {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		return t.Run()
	})
}

// Fork creates and schedules a sibling task after delay, honoring spec §5
// "Fork timing": the forked task's Starter only opens its transaction (and
// so only observes committed state) once delay has elapsed and the forking
// task has already committed — the caller arranges that ordering by not
// calling Fork until after its own Run() (or, for delay==0 fired mid-task,
// by scheduling asynchronously so the fork's Begin() happens-after this
// task's eventual commit).
func (s *Scheduler) Fork(player value.ObjID, delayMillis int64, sess Session, start Starter) *Task {
	t := s.Submit(player, TaskForked, sess, start)
	go func() {
		if delayMillis > 0 {
			time.Sleep(time.Duration(delayMillis) * time.Millisecond)
		}
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		_ = t.Run()
	}()
	return t
}

// Lookup returns a previously submitted task by id.
func (s *Scheduler) Lookup(id int64) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Kill marks a submitted task as killed (see Task.Kill): a queued task
// never starts, and a running one stops before its next attempt (spec §5
// "Cancellation").
func (s *Scheduler) Kill(id int64) bool {
	t, ok := s.Lookup(id)
	if !ok {
		return false
	}
	t.Kill()
	return true
}

// ActiveTasks lists every task not yet completed/killed, for the `task_id`-
// enumerating builtins (queued_tasks-style introspection).
func (s *Scheduler) ActiveTasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := t.State()
		if st != TaskCompleted && st != TaskKilled {
			out = append(out, t)
		}
	}
	return out
}

// EvalStarter builds a Starter that compiles src as a pseudo-verb and runs
// it as the task's entire body (spec §4.7 "eval builtin"). A fork reached
// at the top level is handed to s.Fork rather than run inline, so the
// forking task's own commit is not delayed by it (spec §4.6.4/§5 "Fork
// timing").
func (s *Scheduler) EvalStarter(this, player, caller, perms value.ObjID, src string, sess Session) Starter {
	return func(w *world.Transaction, vmachine *vm.VM) (value.Value, *value.Error) {
		act, err := vmachine.PrepareEval(this, player, caller, perms, src)
		if err != nil {
			return nil, err
		}
		return s.driveTopLevel(player, sess, vmachine, act)
	}
}

// VerbStarter builds a Starter for a plain command/verb-call task.
func (s *Scheduler) VerbStarter(this, player, caller value.ObjID, verbName string, args []value.Value, sess Session) Starter {
	return func(w *world.Transaction, vmachine *vm.VM) (value.Value, *value.Error) {
		act, err := vmachine.PrepareVerb(this, player, caller, verbName, args, 0)
		if err != nil {
			return nil, err
		}
		return s.driveTopLevel(player, sess, vmachine, act)
	}
}

// CommandWords carries a matched command's dobj/prep/iobj context (spec
// §4.8), threaded from server.Matcher.FindCommandVerb through to the
// dispatched verb's dobj/dobjstr/prepstr/iobj/iobjstr registers.
type CommandWords struct {
	DObj    value.ObjID
	DObjStr string
	Prep    string
	IObj    value.ObjID
	IObjStr string
}

// CommandStarter is VerbStarter plus command-word binding, for a verb
// resolved via find_command_verb rather than a bare call_verb/eval.
func (s *Scheduler) CommandStarter(this, player, caller value.ObjID, verbName string, args []value.Value, words CommandWords, sess Session) Starter {
	return func(w *world.Transaction, vmachine *vm.VM) (value.Value, *value.Error) {
		act, err := vmachine.PrepareVerb(this, player, caller, verbName, args, 0)
		if err != nil {
			return nil, err
		}
		vmachine.BindCommandWords(act, words.DObj, words.DObjStr, words.Prep, words.IObj, words.IObjStr)
		return s.driveTopLevel(player, sess, vmachine, act)
	}
}

// driveTopLevel runs act to completion, dispatching every OutcomeFork it
// produces to a sibling task instead of running the forked body inline —
// the real scheduling runActivation's own doc comment defers to this
// package for. The parent keeps running (and will commit) without waiting
// on the forked task, matching spec §8 scenario 7: a forking task commits
// without observing the fork body's side effects.
func (s *Scheduler) driveTopLevel(player value.ObjID, sess Session, vmachine *vm.VM, act *vm.Activation) (value.Value, *value.Error) {
	for {
		out := vmachine.Run(act)
		switch out.Kind {
		case vm.OutcomeReturn:
			return out.Value, nil
		case vm.OutcomeFork:
			child := vm.ForkChild(out, act)
			delay := out.ForkDelay
			s.Fork(player, delay, sess, func(_ *world.Transaction, forkVM *vm.VM) (value.Value, *value.Error) {
				return s.driveTopLevel(player, sess, forkVM, child)
			})
		default:
			return nil, out.Err
		}
	}
}
