package journal

import (
	"fmt"

	"github.com/jward/flowgraph/internal/chain"
	"github.com/jward/flowgraph/internal/graph"
	"github.com/jward/flowgraph/internal/trace"
)

// Recorder tees a trace event stream into the journal before forwarding
// it to the wrapped sink. Journal write failures are reported through
// the error hook and do not block the inner sink: the live graph stays
// authoritative even when the log disk is unhappy.
type Recorder struct {
	inner   trace.Sink
	j       *Journal
	session string
	onErr   func(error)
}

var _ trace.Sink = (*Recorder)(nil)

// NewRecorder wraps inner so every event is journaled under session.
// onErr may be nil.
func NewRecorder(j *Journal, session string, inner trace.Sink, onErr func(error)) *Recorder {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &Recorder{inner: inner, j: j, session: session, onErr: onErr}
}

func (r *Recorder) record(ev *Event) {
	ev.Session = r.session
	if err := r.j.Record(ev); err != nil {
		r.onErr(err)
	}
}

func valueRepr(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func (r *Recorder) StatementBegin(id int) {
	r.record(&Event{Kind: trace.KindStatementBegin, Statement: id})
	r.inner.StatementBegin(id)
}

func (r *Recorder) Load(ev trace.LoadEvent) {
	repr, has := valueRepr(ev.Value)
	r.record(&Event{
		Kind:      trace.KindLoad,
		Object:    uint64(ev.Object),
		Class:     uint64(ev.Class),
		OwnerName: ev.ObjectName,
		KeyName:   ev.Key.Name,
		KeyIndex:  ev.Key.Index,
		IsIndex:   ev.Key.IsIndex,
		Subscript: ev.Subscript,
		InCall:    ev.InCall,
		HasValue:  has,
		ValueRepr: repr,
		ValueID:   uint64(ev.ValueID),
	})
	r.inner.Load(ev)
}

func (r *Recorder) Store(ev trace.StoreEvent) {
	repr, has := valueRepr(ev.Value)
	r.record(&Event{
		Kind:      trace.KindStore,
		Object:    uint64(ev.Object),
		Class:     uint64(ev.Class),
		OwnerName: ev.ObjectName,
		KeyName:   ev.Key.Name,
		KeyIndex:  ev.Key.Index,
		IsIndex:   ev.Key.IsIndex,
		Subscript: ev.Subscript,
		HasValue:  has,
		ValueRepr: repr,
		ValueID:   uint64(ev.ValueID),
	})
	r.inner.Store(ev)
}

func (r *Recorder) CallEnter(callee string) {
	r.record(&Event{Kind: trace.KindCallEnter, Callee: callee})
	r.inner.CallEnter(callee)
}

func (r *Recorder) CallExit(ret any, retID graph.ObjectID) {
	repr, has := valueRepr(ret)
	r.record(&Event{
		Kind:      trace.KindCallExit,
		HasValue:  has,
		ValueRepr: repr,
		ValueID:   uint64(retID),
	})
	r.inner.CallExit(ret, retID)
}

func (r *Recorder) StatementEnd(id int) {
	r.record(&Event{Kind: trace.KindStatementEnd, Statement: id})
	r.inner.StatementEnd(id)
}

func (r *Recorder) Abort() {
	r.record(&Event{Kind: trace.KindAbort})
	r.inner.Abort()
}

// ReplayInto drives a sink with a session's recorded events. Values come
// back as their string reprs; identity (object and value ids) survives
// exactly, which is what the graph keys on.
func (j *Journal) ReplayInto(session string, sink trace.Sink) error {
	return j.Replay(session, func(ev Event) error {
		switch ev.Kind {
		case trace.KindStatementBegin:
			sink.StatementBegin(ev.Statement)
		case trace.KindLoad:
			sink.Load(trace.LoadEvent{
				Object:     graph.ObjectID(ev.Object),
				Class:      graph.ObjectID(ev.Class),
				ObjectName: ev.OwnerName,
				Key:        eventKey(ev),
				Subscript:  ev.Subscript,
				InCall:     ev.InCall,
				Value:      eventValue(ev),
				ValueID:    graph.ObjectID(ev.ValueID),
			})
		case trace.KindStore:
			sink.Store(trace.StoreEvent{
				Object:     graph.ObjectID(ev.Object),
				Class:      graph.ObjectID(ev.Class),
				ObjectName: ev.OwnerName,
				Key:        eventKey(ev),
				Subscript:  ev.Subscript,
				Value:      eventValue(ev),
				ValueID:    graph.ObjectID(ev.ValueID),
			})
		case trace.KindCallEnter:
			sink.CallEnter(ev.Callee)
		case trace.KindCallExit:
			sink.CallExit(eventValue(ev), graph.ObjectID(ev.ValueID))
		case trace.KindStatementEnd:
			sink.StatementEnd(ev.Statement)
		case trace.KindAbort:
			sink.Abort()
		default:
			return fmt.Errorf("unknown event kind %q at ordinal %d", ev.Kind, ev.Ordinal)
		}
		return nil
	})
}

func eventKey(ev Event) chain.Key {
	if ev.IsIndex {
		return chain.IndexKey(ev.KeyIndex)
	}
	return chain.NameKey(ev.KeyName)
}

func eventValue(ev Event) any {
	if !ev.HasValue {
		return nil
	}
	return ev.ValueRepr
}
