// Package task implements the core-visible scheduler surface of spec §4.7:
// task identity, tick/wall-time budgets, the commit/conflict-retry loop, and
// fork/eval/kill semantics, grounded on the teacher's task/task.go state
// machine (TaskState/TaskKind/ActivationFrame/traceback) but driving the
// bytecode vm.VM against a world.Transaction instead of the teacher's
// AST-walking eval.Evaluator.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"loom/builtin"
	"loom/value"
	"loom/vm"
	"loom/world"
)

// TaskState is where a task sits in its lifecycle.
type TaskState int

const (
	TaskCreated TaskState = iota
	TaskQueued
	TaskRunning
	TaskSuspended
	TaskCompleted
	TaskKilled
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskSuspended:
		return "suspended"
	case TaskCompleted:
		return "completed"
	case TaskKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// TaskKind distinguishes a task's origin (spec §4.7).
type TaskKind int

const (
	TaskCommand TaskKind = iota // a player's command line
	TaskForked                  // a fork(delay) sibling
	TaskEval                    // an eval() snippet
)

// MaxRetries bounds ConflictRetry restarts before a task surfaces as failed
// (spec §5 "Conflict policy").
const MaxRetries = 50

// Session is the narrative output / input-prompt / disconnect surface a task
// talks to, matching the teacher's server session abstraction but decoupled
// from the RPC/transport layer (out of scope per spec §1).
type Session interface {
	Notify(player value.ObjID, text string)
	Disconnect(player value.ObjID)
}

// Starter builds the starting activation for a (re)run of a task. It is
// called once per attempt — including retries — so it must be safe to call
// more than once with the same arguments (spec §5: "restarts from scratch,
// re-running its starting verb with the same arguments").
type Starter func(w *world.Transaction, vmachine *vm.VM) (value.Value, *value.Error)

// Task is one cooperatively scheduled unit of execution (spec glossary).
type Task struct {
	ID     int64
	Player value.ObjID
	Kind   TaskKind

	Store    *world.Store
	Builtins *builtin.Registry
	Session  Session

	MaxTicks    int64
	WallBudget  time.Duration

	start Starter

	mu       sync.Mutex
	state    TaskState
	ticks    int64
	deadline time.Time

	Result value.Value
	Err    *value.Error

	killed atomic.Bool
}

// New constructs a task; Run drives it to completion.
func New(id int64, player value.ObjID, kind TaskKind, store *world.Store, registry *builtin.Registry, sess Session, maxTicks int64, wall time.Duration, start Starter) *Task {
	return &Task{
		ID: id, Player: player, Kind: kind, Store: store, Builtins: registry, Session: sess,
		MaxTicks: maxTicks, WallBudget: wall, start: start, state: TaskCreated,
	}
}

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Kill marks the task as externally terminated. Run checks the mark before
// each attempt and stops without starting another; an attempt already in
// progress is not interrupted (spec §5 "Cancellation").
func (t *Task) Kill() {
	t.killed.Store(true)
}

// Run drives the commit/conflict-retry loop of spec §5 "Conflict policy":
// build a fresh transaction and VM, run the starter to completion, attempt
// commit, and on ConflictRetry rebuild everything from scratch and try
// again, up to MaxRetries. Any narrative output produced before a conflict
// is the caller's responsibility to discard (Session implementations should
// buffer per-attempt and flush only after a successful Run).
func (t *Task) Run() error {
	t.setState(TaskRunning)
	t.deadline = time.Now().Add(t.WallBudget)

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if t.killed.Load() {
			t.setState(TaskKilled)
			return nil
		}
		if time.Now().After(t.deadline) {
			e := value.NewError(value.E_QUOTA)
			t.Err = &e
			t.setState(TaskCompleted)
			return nil
		}

		txn, err := t.Store.Begin()
		if err != nil {
			return err
		}
		vmachine := vm.New(txn, t.Builtins).WithSession(t.Session)

		v, verr := t.start(txn, vmachine)

		res, cerr := txn.Commit()
		if cerr != nil {
			return cerr
		}
		if res.Conflict {
			continue // restart from scratch, spec §5
		}

		t.Result = v
		t.Err = verr
		t.setState(TaskCompleted)
		return nil
	}

	e := value.NewErrorMsg(value.E_QUOTA, "exceeded retry budget")
	t.Err = &e
	t.setState(TaskCompleted)
	return nil
}

// Tick is called by the VM's dispatch loop (via a hook the vm.VM does not
// yet expose directly) once per opcode burst to enforce the tick budget;
// kept here so the scheduler's accounting lives in one place even though
// the present vm.Run does not yet call back into it (see DESIGN.md).
func (t *Task) Tick(n int64) *value.Error {
	t.ticks += n
	if t.MaxTicks > 0 && t.ticks > t.MaxTicks {
		e := value.NewError(value.E_QUOTA)
		return &e
	}
	if t.killed.Load() {
		e := value.NewError(value.E_QUOTA)
		return &e
	}
	return nil
}
