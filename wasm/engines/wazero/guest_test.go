package wazero

// guestModule is the binary encoding of:
//
//	(module
//	  (import "env" "consume_fuel" (func $consume_fuel (param i64) (result i64)))
//	  (import "env" "invoke" (func $invoke (param i32 i32) (result i32)))
//	  (memory (export "memory") 1)
//	  (data (i32.const 0) "answer")
//	  (func (export "answer") (result i32) i32.const 42)
//	  (func (export "run") (result i32) i32.const 0 i32.const 6 call $invoke)
//	  (func (export "spend") (param i64) (result i64) local.get 0 call $consume_fuel))
var guestModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x10, 0x03, 0x60,
	0x01, 0x7e, 0x01, 0x7e, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00,
	0x01, 0x7f, 0x02, 0x21, 0x02, 0x03, 0x65, 0x6e, 0x76, 0x0c, 0x63, 0x6f,
	0x6e, 0x73, 0x75, 0x6d, 0x65, 0x5f, 0x66, 0x75, 0x65, 0x6c, 0x00, 0x00,
	0x03, 0x65, 0x6e, 0x76, 0x06, 0x69, 0x6e, 0x76, 0x6f, 0x6b, 0x65, 0x00,
	0x01, 0x03, 0x04, 0x03, 0x02, 0x02, 0x00, 0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x21, 0x04, 0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x06, 0x61, 0x6e, 0x73, 0x77, 0x65, 0x72, 0x00, 0x02, 0x03, 0x72, 0x75,
	0x6e, 0x00, 0x03, 0x05, 0x73, 0x70, 0x65, 0x6e, 0x64, 0x00, 0x04, 0x0a,
	0x16, 0x03, 0x04, 0x00, 0x41, 0x2a, 0x0b, 0x08, 0x00, 0x41, 0x00, 0x41,
	0x06, 0x10, 0x01, 0x0b, 0x06, 0x00, 0x20, 0x00, 0x10, 0x00, 0x0b, 0x0b,
	0x0c, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x06, 0x61, 0x6e, 0x73, 0x77, 0x65,
	0x72,
}
