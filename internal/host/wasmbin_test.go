package host

// Hand-assembled wasm guests for engine tests. The builder emits the binary
// module format directly so the tests need no guest toolchain.

// ── Binary encoding primitives ──

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			return append(out, b)
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wasmVec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func wasmSection(id byte, contents []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(contents)))...)
	return append(out, contents...)
}

func funcType(params, results int) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(params))...)
	for i := 0; i < params; i++ {
		out = append(out, 0x7f) // i32
	}
	out = append(out, uleb(uint64(results))...)
	for i := 0; i < results; i++ {
		out = append(out, 0x7f)
	}
	return out
}

// Instruction helpers.

func i32Const(v int64) []byte {
	return append([]byte{0x41}, sleb(v)...)
}

func i32Store() []byte {
	// align=2, offset=0
	return []byte{0x36, 0x02, 0x00}
}

func callFn(idx uint64) []byte {
	return append([]byte{0x10}, uleb(idx)...)
}

func codeEntry(body []byte) []byte {
	// no locals
	full := append(wasmVec(), body...)
	full = append(full, 0x0b) // end
	return append(uleb(uint64(len(full))), full...)
}

func dataSegment(offset int64, bytes []byte) []byte {
	out := []byte{0x00}
	out = append(out, i32Const(offset)...)
	out = append(out, 0x0b)
	out = append(out, uleb(uint64(len(bytes)))...)
	return append(out, bytes...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// ── Guests ──

// helloGuest records one audit event, pokes the embed capability (which
// always answers "not configured"), and returns Ok("Hello").
//
// Memory layout: outcome record at 0, embed ret area at 16, data strings
// from 1024. alloc hands the host a scratch region at 4096.
func helloGuest() []byte {
	const (
		offText     = 1024 // "Hello"
		offEvent    = 1032 // "app-started"
		offResource = 1046 // "hello"
		offDetail   = 1052 // "bootstrap"
	)

	types := wasmSection(1, wasmVec(
		funcType(6, 0), // t0: audit_record
		funcType(3, 1), // t1: embed
		funcType(1, 1), // t2: alloc
		funcType(0, 1), // t3: run
	))

	imports := wasmSection(2, wasmVec(
		cat(wasmName("fractal_app"), wasmName("audit_record"), []byte{0x00}, uleb(0)),
		cat(wasmName("fractal_app"), wasmName("embed"), []byte{0x00}, uleb(1)),
	))

	funcs := wasmSection(3, wasmVec(uleb(2), uleb(3)))

	mems := wasmSection(5, wasmVec([]byte{0x00, 0x01})) // 1 page min

	exports := wasmSection(7, wasmVec(
		cat(wasmName("memory"), []byte{0x02}, uleb(0)),
		cat(wasmName("alloc"), []byte{0x00}, uleb(2)),
		cat(wasmName("run"), []byte{0x00}, uleb(3)),
	))

	allocBody := i32Const(4096)

	runBody := cat(
		// audit_record("app-started", "hello", "bootstrap")
		i32Const(offEvent), i32Const(11),
		i32Const(offResource), i32Const(5),
		i32Const(offDetail), i32Const(9),
		callFn(0),
		// embed("Hello") -> code 1, message delivered through alloc
		i32Const(offText), i32Const(5), i32Const(16),
		callFn(1),
		[]byte{0x1a}, // drop
		// outcome record {tag: 0, ptr: offText, len: 5} at 0
		i32Const(0), i32Const(0), i32Store(),
		i32Const(4), i32Const(offText), i32Store(),
		i32Const(8), i32Const(5), i32Store(),
		i32Const(0),
	)

	code := wasmSection(10, wasmVec(codeEntry(allocBody), codeEntry(runBody)))

	data := wasmSection(11, wasmVec(
		dataSegment(offText, []byte("Hello")),
		dataSegment(offEvent, []byte("app-started")),
		dataSegment(offResource, []byte("hello")),
		dataSegment(offDetail, []byte("bootstrap")),
	))

	return cat(wasmHeader, types, imports, funcs, mems, exports, code, data)
}

// loopGuest spins forever without calling any capability; it can only end
// through fuel exhaustion or the epoch deadline.
func loopGuest() []byte {
	types := wasmSection(1, wasmVec(funcType(0, 1)))
	funcs := wasmSection(3, wasmVec(uleb(0)))
	exports := wasmSection(7, wasmVec(
		cat(wasmName("run"), []byte{0x00}, uleb(0)),
	))
	runBody := []byte{
		0x03, 0x40, // loop (void)
		0x0c, 0x00, // br 0
		0x0b, // end loop
		0x00, // unreachable
	}
	code := wasmSection(10, wasmVec(codeEntry(runBody)))
	return cat(wasmHeader, types, funcs, exports, code)
}

// noRunGuest is a valid module without a run export.
func noRunGuest() []byte {
	return append([]byte(nil), wasmHeader...)
}
