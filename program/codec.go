package program

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"loom/value"
)

// Wire format: magic, version, feature-flags, then one length-prefixed
// section per Program field, in declaration order. Lambdas nest recursively
// using the same framing. Decode(Encode(p)) == p is the round-trip law this
// format exists to satisfy (spec §4.5.2) — every section is self-describing
// so a future version can add sections after this one without breaking old
// readers that skip unknown trailing bytes.
var magic = [4]byte{'L', 'O', 'O', 'M'}

const formatVersion = 1

type writer struct{ buf []byte }

func (w *writer) u8(v byte)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) u8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, errors.New("program: truncated (u8)")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errors.New("program: truncated (u32)")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errors.New("program: truncated (u64)")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, errors.New("program: truncated (bytes)")
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

// Encode serializes p into the versioned binary wire format.
func Encode(p *Program) ([]byte, error) {
	w := &writer{}
	w.buf = append(w.buf, magic[:]...)
	w.u8(formatVersion)
	w.u32(p.FeatureFlags)
	w.u64(uint64(p.ID))
	w.bytes(p.Code)

	lines := &writer{}
	lines.u32(uint32(len(p.Lines)))
	for _, l := range p.Lines {
		lines.u32(uint32(l.CodeOffset))
		lines.u32(uint32(l.Line))
	}
	w.bytes(lines.buf)

	lits := &writer{}
	lits.u32(uint32(len(p.Literals)))
	for _, v := range p.Literals {
		enc, err := value.Encode(v)
		if err != nil {
			return nil, errors.Wrap(err, "program: literal")
		}
		lits.bytes(enc)
	}
	w.bytes(lits.buf)

	vn := &writer{}
	vn.u32(uint32(len(p.VarNames)))
	for _, v := range p.VarNames {
		vn.bytes([]byte(v.Name))
		vn.u32(uint32(v.Offset))
		vn.u32(uint32(v.Depth))
	}
	w.bytes(vn.buf)

	st := &writer{}
	st.u32(uint32(len(p.ScatterTables)))
	for _, table := range p.ScatterTables {
		st.u32(uint32(len(table)))
		for _, op := range table {
			st.u8(byte(op.Kind))
			st.u32(uint32(op.Offset))
			st.u32(uint32(op.Depth))
			st.u32(uint32(int32(op.DefaultStart)))
		}
	}
	w.bytes(st.buf)

	fo := &writer{}
	fo.u32(uint32(len(p.ForOperands)))
	for _, f := range p.ForOperands {
		fo.u32(uint32(f.ValueOffset))
		fo.u32(uint32(f.ValueDepth))
		fo.u32(uint32(f.KeyOffset))
		fo.u32(uint32(f.KeyDepth))
		if f.HasKey {
			fo.u8(1)
		} else {
			fo.u8(0)
		}
	}
	w.bytes(fo.buf)

	eo := &writer{}
	eo.u32(uint32(len(p.ErrorOperands)))
	for _, codes := range p.ErrorOperands {
		eo.u32(uint32(len(codes)))
		for _, c := range codes {
			eo.u32(uint32(c))
		}
	}
	w.bytes(eo.buf)

	fv := &writer{}
	fv.u32(uint32(len(p.ForkVectors)))
	for _, f := range p.ForkVectors {
		fv.bytes(f.Code)
		fv.u32(uint32(len(f.Lines)))
		for _, l := range f.Lines {
			fv.u32(uint32(l.CodeOffset))
			fv.u32(uint32(l.Line))
		}
	}
	w.bytes(fv.buf)

	lam := &writer{}
	lam.u32(uint32(len(p.Lambdas)))
	for _, sub := range p.Lambdas {
		enc, err := Encode(sub)
		if err != nil {
			return nil, err
		}
		lam.bytes(enc)
	}
	w.bytes(lam.buf)

	w.u32(uint32(p.NumRegisters))

	src := &writer{}
	src.u32(uint32(len(p.Source)))
	for _, line := range p.Source {
		src.bytes([]byte(line))
	}
	w.bytes(src.buf)

	ps := &writer{}
	ps.u32(uint32(len(p.ParamScatter)))
	for _, op := range p.ParamScatter {
		ps.u8(byte(op.Kind))
		ps.u32(uint32(op.Offset))
		ps.u32(uint32(op.Depth))
		ps.u32(uint32(int32(op.DefaultStart)))
	}
	w.bytes(ps.buf)

	cn := &writer{}
	cn.u32(uint32(len(p.CaptureNames)))
	for _, name := range p.CaptureNames {
		cn.bytes([]byte(name))
	}
	w.bytes(cn.buf)

	w.bytes([]byte(p.SelfName))
	if p.HasSelf {
		w.u8(1)
	} else {
		w.u8(0)
	}

	return w.buf, nil
}

// Decode parses the wire format produced by Encode.
func Decode(b []byte) (*Program, error) {
	r := &reader{buf: b}
	if len(b) < 4 || string(b[:4]) != string(magic[:]) {
		return nil, errors.New("program: bad magic")
	}
	r.pos = 4
	ver, err := r.u8()
	if err != nil {
		return nil, err
	}
	if ver != formatVersion {
		return nil, errors.Errorf("program: unsupported version %d", ver)
	}
	p := &Program{}
	if p.FeatureFlags, err = r.u32(); err != nil {
		return nil, err
	}
	id, err := r.u64()
	if err != nil {
		return nil, err
	}
	p.ID = int64(id)

	if p.Code, err = r.bytes(); err != nil {
		return nil, err
	}

	linesBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	lr := &reader{buf: linesBuf}
	n, err := lr.u32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		off, _ := lr.u32()
		line, _ := lr.u32()
		p.Lines = append(p.Lines, LineEntry{CodeOffset: int(off), Line: int(line)})
	}

	litsBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	lir := &reader{buf: litsBuf}
	n, _ = lir.u32()
	for i := uint32(0); i < n; i++ {
		enc, err := lir.bytes()
		if err != nil {
			return nil, err
		}
		v, err := value.Decode(enc)
		if err != nil {
			return nil, errors.Wrap(err, "program: literal")
		}
		p.Literals = append(p.Literals, v)
	}

	vnBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	vr := &reader{buf: vnBuf}
	n, _ = vr.u32()
	for i := uint32(0); i < n; i++ {
		name, _ := vr.bytes()
		off, _ := vr.u32()
		depth, _ := vr.u32()
		p.VarNames = append(p.VarNames, VarName{Name: string(name), Offset: int(off), Depth: int(depth)})
	}

	stBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	sr := &reader{buf: stBuf}
	n, _ = sr.u32()
	for i := uint32(0); i < n; i++ {
		cnt, _ := sr.u32()
		var table []ScatterOperand
		for j := uint32(0); j < cnt; j++ {
			kind, _ := sr.u8()
			off, _ := sr.u32()
			depth, _ := sr.u32()
			def, _ := sr.u32()
			table = append(table, ScatterOperand{Kind: ScatterKind(kind), Offset: int(off), Depth: int(depth), DefaultStart: int(int32(def))})
		}
		p.ScatterTables = append(p.ScatterTables, table)
	}

	foBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	fr := &reader{buf: foBuf}
	n, _ = fr.u32()
	for i := uint32(0); i < n; i++ {
		vo, _ := fr.u32()
		vd, _ := fr.u32()
		ko, _ := fr.u32()
		kd, _ := fr.u32()
		hk, _ := fr.u8()
		p.ForOperands = append(p.ForOperands, ForOperand{
			ValueOffset: int(vo), ValueDepth: int(vd),
			KeyOffset: int(ko), KeyDepth: int(kd), HasKey: hk != 0,
		})
	}

	eoBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	er := &reader{buf: eoBuf}
	n, _ = er.u32()
	for i := uint32(0); i < n; i++ {
		cnt, _ := er.u32()
		var codes []value.ErrorCode
		for j := uint32(0); j < cnt; j++ {
			c, _ := er.u32()
			codes = append(codes, value.ErrorCode(c))
		}
		p.ErrorOperands = append(p.ErrorOperands, codes)
	}

	fvBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	fvr := &reader{buf: fvBuf}
	n, _ = fvr.u32()
	for i := uint32(0); i < n; i++ {
		code, _ := fvr.bytes()
		lineCount, _ := fvr.u32()
		var lines []LineEntry
		for j := uint32(0); j < lineCount; j++ {
			off, _ := fvr.u32()
			line, _ := fvr.u32()
			lines = append(lines, LineEntry{CodeOffset: int(off), Line: int(line)})
		}
		p.ForkVectors = append(p.ForkVectors, ForkVector{Code: code, Lines: lines})
	}

	lamBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	lamR := &reader{buf: lamBuf}
	n, _ = lamR.u32()
	for i := uint32(0); i < n; i++ {
		enc, err := lamR.bytes()
		if err != nil {
			return nil, err
		}
		sub, err := Decode(enc)
		if err != nil {
			return nil, err
		}
		p.Lambdas = append(p.Lambdas, sub)
	}

	numRegs, err := r.u32()
	if err != nil {
		return nil, err
	}
	p.NumRegisters = int(numRegs)

	srcBuf, err := r.bytes()
	if err != nil {
		return nil, err
	}
	srcR := &reader{buf: srcBuf}
	n, _ = srcR.u32()
	for i := uint32(0); i < n; i++ {
		line, _ := srcR.bytes()
		p.Source = append(p.Source, string(line))
	}

	// Sections below were added after format version 1 shipped; a program
	// encoded by an older build simply ends here, so tolerate their absence.
	if r.pos >= len(r.buf) {
		return p, nil
	}

	psBuf, err := r.bytes()
	if err != nil {
		return p, nil
	}
	psR := &reader{buf: psBuf}
	n, _ = psR.u32()
	for i := uint32(0); i < n; i++ {
		kind, _ := psR.u8()
		off, _ := psR.u32()
		depth, _ := psR.u32()
		def, _ := psR.u32()
		p.ParamScatter = append(p.ParamScatter, ScatterOperand{Kind: ScatterKind(kind), Offset: int(off), Depth: int(depth), DefaultStart: int(int32(def))})
	}

	cnBuf, err := r.bytes()
	if err != nil {
		return p, nil
	}
	cnR := &reader{buf: cnBuf}
	n, _ = cnR.u32()
	for i := uint32(0); i < n; i++ {
		name, _ := cnR.bytes()
		p.CaptureNames = append(p.CaptureNames, string(name))
	}

	selfName, err := r.bytes()
	if err != nil {
		return p, nil
	}
	p.SelfName = string(selfName)
	if hasSelf, err := r.u8(); err == nil {
		p.HasSelf = hasSelf != 0
	}

	return p, nil
}
