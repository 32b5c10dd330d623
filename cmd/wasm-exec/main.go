// Command wasm-exec runs a single exported function of a WASM module with the
// engines and host functions of the task driver.
package main

func main() {
	Execute()
}
