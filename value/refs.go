package value

// CollectObjRefs walks v's structure (list elements, map keys/values,
// flyweight delegate/slots/contents) and appends every ObjID it finds to
// out. Used by the world package's anonymous-object GC sweep (spec §3.7) to
// find every live reference to an anonymous object.
func CollectObjRefs(v Value, out []ObjID) []ObjID {
	switch t := v.(type) {
	case ObjID:
		out = append(out, t)
	case List:
		for _, e := range t.Elements() {
			out = CollectObjRefs(e, out)
		}
	case Map:
		for _, p := range t.Pairs() {
			out = CollectObjRefs(p[0], out)
			out = CollectObjRefs(p[1], out)
		}
	case Flyweight:
		out = append(out, t.Delegate)
		for _, p := range t.Slots.Pairs() {
			out = CollectObjRefs(p[1], out)
		}
		for _, e := range t.Contents.Elements() {
			out = CollectObjRefs(e, out)
		}
	}
	return out
}
