package value

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ObjKind distinguishes the three disjoint kinds of object reference (spec §3.1).
type ObjKind uint8

const (
	ObjKindNumbered ObjKind = iota
	ObjKindUUID
	ObjKindAnonymous
)

// ObjID is the tagged object-reference representation. Numbered objects carry
// only Num; UUID and Anonymous objects carry the (autoincrement, random,
// epoch-ms) triple the spec calls for.
type ObjID struct {
	Kind          ObjKind
	Num           int64
	Autoincrement uint32
	Random        uint64
	EpochMs       int64
}

// Sentinels usable in any object slot.
var (
	Nothing     = ObjID{Kind: ObjKindNumbered, Num: -1}
	Ambiguous   = ObjID{Kind: ObjKindNumbered, Num: -2}
	FailedMatch = ObjID{Kind: ObjKindNumbered, Num: -3}
)

// Numbered constructs a numbered (database-persistent, sequential) object id.
func Numbered(n int64) ObjID { return ObjID{Kind: ObjKindNumbered, Num: n} }

var anonAutoincrement uint32

// autoincrement is a process-wide monotonic counter shared by UUID and
// Anonymous object generation, matching the spec's "(autoincrement, random,
// epoch-ms)" id shape.
func nextAutoincrement() uint32 {
	return atomic.AddUint32(&anonAutoincrement, 1)
}

// NewUUIDObj generates a fresh database-persistent UUID object reference.
func NewUUIDObj() ObjID {
	return ObjID{
		Kind:          ObjKindUUID,
		Autoincrement: nextAutoincrement(),
		Random:        randomComponent(),
		EpochMs:       time.Now().UnixMilli(),
	}
}

// NewAnonymousObj generates a fresh anonymous object reference: same shape as
// a UUID object, tagged anonymous, reachability-collected rather than
// persistently enumerated (spec §3.7).
func NewAnonymousObj() ObjID {
	return ObjID{
		Kind:          ObjKindAnonymous,
		Autoincrement: nextAutoincrement(),
		Random:        randomComponent(),
		EpochMs:       time.Now().UnixMilli(),
	}
}

var randMu sync.Mutex

func randomComponent() uint64 {
	// google/uuid's random source backs the "random" component so the
	// distribution matches the library's v4 generator rather than a
	// hand-rolled PRNG.
	randMu.Lock()
	defer randMu.Unlock()
	u := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(u[i])
	}
	return v
}

func (o ObjID) Type() TypeCode {
	if o.Kind == ObjKindAnonymous {
		return TYPE_ANON
	}
	return TYPE_OBJ
}

func (o ObjID) IsAnonymous() bool { return o.Kind == ObjKindAnonymous }
func (o ObjID) IsUUID() bool      { return o.Kind == ObjKindUUID }
func (o ObjID) IsNumbered() bool  { return o.Kind == ObjKindNumbered }

func (o ObjID) String() string {
	switch o.Kind {
	case ObjKindNumbered:
		return fmt.Sprintf("#%d", o.Num)
	case ObjKindUUID:
		return fmt.Sprintf("#uuobjid_%06x-%010x", o.Autoincrement&0xffffff, uint64(o.Random)&0xffffffffff)
	default:
		return fmt.Sprintf("#anon_%06x-%010x", o.Autoincrement&0xffffff, uint64(o.Random)&0xffffffffff)
	}
}

func (o ObjID) Truthy() bool { return o != Nothing }

func (o ObjID) Equal(other Value) bool {
	t, ok := other.(ObjID)
	if !ok {
		return false
	}
	return o == t
}

func (o ObjID) Less(other Value) bool {
	t, ok := other.(ObjID)
	if !ok {
		return false
	}
	if o.Kind != t.Kind {
		return o.Kind < t.Kind
	}
	switch o.Kind {
	case ObjKindNumbered:
		return o.Num < t.Num
	default:
		if o.EpochMs != t.EpochMs {
			return o.EpochMs < t.EpochMs
		}
		if o.Autoincrement != t.Autoincrement {
			return o.Autoincrement < t.Autoincrement
		}
		return o.Random < t.Random
	}
}
