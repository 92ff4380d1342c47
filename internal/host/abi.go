package host

import (
	"encoding/binary"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

// The guest ABI.
//
// Capabilities are core-wasm imports under module "fractal_app". Strings and
// byte payloads travel through the guest's exported linear memory; the guest
// also exports "alloc(size: i32) -> i32" so the host can place result
// payloads, and "run() -> i32" returning a pointer to a 12-byte outcome
// record {tag: u32, ptr: u32, len: u32} where tag 0 is success-text and any
// other value is error-text.
//
// Imports:
//
//	audit_record(event_ptr, event_len, res_ptr, res_len, detail_ptr, detail_len)
//	query(sql_ptr, sql_len, ret_ptr) -> code
//	exec(sql_ptr, sql_len, rows_ptr, ret_ptr) -> code
//	insert(table_ptr, table_len, data_ptr, data_len, rows_ptr, ret_ptr) -> code
//	generate(req_ptr, req_len, ret_ptr) -> code          // JSON request/response
//	embed(text_ptr, text_len, ret_ptr) -> code
//	embed_batch(req_ptr, req_len, ret_ptr) -> code       // JSON string array
//
// A zero return code means success and the payload (possibly empty) is
// described by the two little-endian u32 words {ptr, len} the host wrote at
// ret_ptr. A non-zero code is the shared capability error code and the
// payload at ret_ptr is the UTF-8 error message. rows_ptr receives a
// little-endian u64.
const abiModule = "fractal_app"

// outcome is the decoded 12-byte record run() points at.
type outcome struct {
	tag  uint32
	text string
}

func guestMemory(c *wasmtime.Caller) (*wasmtime.Memory, error) {
	ext := c.GetExport("memory")
	if ext == nil {
		return nil, fmt.Errorf("guest exports no memory")
	}
	mem := ext.Memory()
	if mem == nil {
		return nil, fmt.Errorf("guest memory export is not a memory")
	}
	return mem, nil
}

func readGuestBytes(c *wasmtime.Caller, ptr, length int32) ([]byte, error) {
	mem, err := guestMemory(c)
	if err != nil {
		return nil, err
	}
	data := mem.UnsafeData(c)
	if ptr < 0 || length < 0 || int64(ptr)+int64(length) > int64(len(data)) {
		return nil, fmt.Errorf("guest pointer %d+%d out of bounds (%d)", ptr, length, len(data))
	}
	out := make([]byte, length)
	copy(out, data[ptr:int64(ptr)+int64(length)])
	return out, nil
}

func readGuestString(c *wasmtime.Caller, ptr, length int32) (string, error) {
	b, err := readGuestBytes(c, ptr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writePayload allocates guest memory for payload via the guest's alloc
// export, copies it, and writes {ptr, len} at retPtr.
func writePayload(c *wasmtime.Caller, retPtr int32, payload []byte) error {
	mem, err := guestMemory(c)
	if err != nil {
		return err
	}

	var ptr int32
	if len(payload) > 0 {
		allocExt := c.GetExport("alloc")
		if allocExt == nil || allocExt.Func() == nil {
			return fmt.Errorf("guest exports no alloc")
		}
		res, err := allocExt.Func().Call(c, int32(len(payload)))
		if err != nil {
			return fmt.Errorf("guest alloc failed: %w", err)
		}
		p, ok := res.(int32)
		if !ok {
			return fmt.Errorf("guest alloc returned %T", res)
		}
		ptr = p

		data := mem.UnsafeData(c)
		if ptr < 0 || int64(ptr)+int64(len(payload)) > int64(len(data)) {
			return fmt.Errorf("guest alloc returned out-of-bounds pointer %d", ptr)
		}
		copy(data[ptr:], payload)
	}

	data := mem.UnsafeData(c)
	if retPtr < 0 || int64(retPtr)+8 > int64(len(data)) {
		return fmt.Errorf("ret pointer %d out of bounds", retPtr)
	}
	binary.LittleEndian.PutUint32(data[retPtr:], uint32(ptr))
	binary.LittleEndian.PutUint32(data[retPtr+4:], uint32(len(payload)))
	return nil
}

func writeGuestU64(c *wasmtime.Caller, ptr int32, v uint64) error {
	mem, err := guestMemory(c)
	if err != nil {
		return err
	}
	data := mem.UnsafeData(c)
	if ptr < 0 || int64(ptr)+8 > int64(len(data)) {
		return fmt.Errorf("u64 pointer %d out of bounds", ptr)
	}
	binary.LittleEndian.PutUint64(data[ptr:], v)
	return nil
}

// readOutcome decodes the record run() returned a pointer to.
func readOutcome(store *wasmtime.Store, instance *wasmtime.Instance, retPtr int32) (*outcome, error) {
	ext := instance.GetExport(store, "memory")
	if ext == nil || ext.Memory() == nil {
		return nil, fmt.Errorf("guest exports no memory")
	}
	data := ext.Memory().UnsafeData(store)
	if retPtr < 0 || int64(retPtr)+12 > int64(len(data)) {
		return nil, fmt.Errorf("outcome pointer %d out of bounds", retPtr)
	}
	tag := binary.LittleEndian.Uint32(data[retPtr:])
	ptr := binary.LittleEndian.Uint32(data[retPtr+4:])
	length := binary.LittleEndian.Uint32(data[retPtr+8:])
	if int64(ptr)+int64(length) > int64(len(data)) {
		return nil, fmt.Errorf("outcome text %d+%d out of bounds", ptr, length)
	}
	return &outcome{tag: tag, text: string(data[ptr : ptr+length])}, nil
}
